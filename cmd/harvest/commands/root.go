package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/harvest"
	"github.com/use-agent/harvest/models"
)

// ExecuteContext runs the CLI and returns the process exit code.
func ExecuteContext(ctx context.Context) int {
	if err := newRootCmd(config.Load(), os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

type rootFlags struct {
	url       string
	maxImages int
	mode      string
}

func newRootCmd(cfg *config.Config, out io.Writer) *cobra.Command {
	var f rootFlags

	cmd := &cobra.Command{
		Use:   "harvest --url <page> [--output dir] [--max-images n] [--mode images|products|both]",
		Short: "harvest extracts images and product records from a web page.",
		Long: "harvest fetches one page, downloads the images it references and\n" +
			"infers product records (title, price, image) from the markup.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initLogger(cfg.Log, cmd.ErrOrStderr())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarvest(cmd.Context(), cfg, f, out)
		},
	}
	cmd.SetOut(out)

	flags := cmd.Flags()
	flags.StringVar(&f.url, "url", "", "page to harvest (required)")
	flags.StringVar(&cfg.Download.OutputDir, "output", cfg.Download.OutputDir, "directory images are saved to")
	flags.IntVar(&f.maxImages, "max-images", -1, "maximum number of images to download; negative means all")
	flags.StringVar(&f.mode, "mode", models.ModeImages, "what to extract: images, products or both")
	flags.IntVar(&cfg.Download.Workers, "workers", cfg.Download.Workers, "concurrent image downloads")
	flags.StringVar(&cfg.Download.Collision, "collision", cfg.Download.Collision, "existing file policy: suffix, overwrite, skip or fail")
	flags.StringVar(&cfg.Extract.ProductSelector, "product-selector", cfg.Extract.ProductSelector, "CSS selector for product containers instead of the class heuristic")
	flags.DurationVar(&cfg.Fetch.Timeout, "timeout", cfg.Fetch.Timeout, "per-request timeout")
	_ = cmd.MarkFlagRequired("url")

	pflags := cmd.PersistentFlags()
	pflags.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "debug, info, warn or error")
	pflags.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "text or json")

	cmd.AddCommand(newServeCmd(cfg))
	return cmd
}

func runHarvest(ctx context.Context, cfg *config.Config, f rootFlags, out io.Writer) error {
	mode := strings.ToLower(strings.TrimSpace(f.mode))
	switch mode {
	case models.ModeImages, models.ModeProducts, models.ModeBoth:
	default:
		return fmt.Errorf("invalid --mode %q: want images, products or both", f.mode)
	}

	h, err := harvest.New(engine.NewHTTPEngine(cfg.Fetch), cfg)
	if err != nil {
		return err
	}

	started := time.Now()
	res, err := h.Run(ctx, harvest.Options{
		URL:   f.url,
		Mode:  mode,
		Limit: f.maxImages,
		Dir:   cfg.Download.OutputDir,
	})
	if err != nil {
		// An unreachable page is reported, not fatal: the run simply found nothing.
		slog.Error("page could not be harvested", "url", f.url, "error", err)
	}

	printReport(out, res, mode, cfg.Download.OutputDir)
	slog.Debug("done", "elapsed", time.Since(started).Round(time.Millisecond))
	return nil
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig, w io.Writer) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}
