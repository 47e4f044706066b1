package commands

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/use-agent/harvest/harvest"
	"github.com/use-agent/harvest/models"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// printReport writes the human-readable summary of one run.
func printReport(w io.Writer, res *harvest.Result, mode, dir string) {
	if res == nil {
		res = &harvest.Result{}
	}

	if mode == models.ModeImages || mode == models.ModeBoth {
		fmt.Fprintf(w, "Downloaded %d of %d images to %s\n", res.Downloaded(), len(res.Downloads), dir)
		for _, d := range res.Downloads {
			switch {
			case !d.OK():
				fmt.Fprintf(w, "  failed  %s: %v\n", d.SourceURL, d.Err)
			case d.Skipped:
				fmt.Fprintf(w, "  exists  %s\n", d.Path)
			}
		}
	}

	if mode == models.ModeProducts || mode == models.ModeBoth {
		fmt.Fprintf(w, "Found %d products\n", len(res.Products))
		if len(res.Products) == 0 {
			return
		}
		t := newTable(w)
		t.AppendHeader(table.Row{"#", "Title", "Price", "Image"})
		for i, p := range res.Products {
			t.AppendRow(table.Row{i + 1, p.Title, p.Price, p.Image})
		}
		t.Render()
	}
}
