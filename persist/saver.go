// Package persist streams images to local storage.
package persist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/extract"
	"github.com/use-agent/harvest/metrics"
	"github.com/use-agent/harvest/models"
)

const (
	copyBufferSize = 32 << 10
	maxSuffix      = 10000
)

// Saver downloads images into a directory. It is safe for concurrent use;
// concurrent saves never write to the same destination path unless the
// policy is Overwrite.
type Saver struct {
	streamer engine.Streamer
	policy   CollisionPolicy
	maxBytes int64
	dirs     sync.Map // dir (string) -> *dirState
}

type dirState struct {
	once sync.Once
	err  error
}

// NewSaver creates a Saver that fetches through streamer.
func NewSaver(streamer engine.Streamer, cfg config.DownloadConfig) (*Saver, error) {
	policy, err := ParseCollisionPolicy(cfg.Collision)
	if err != nil {
		return nil, models.NewHarvestError(models.ErrCodeInvalidInput, err.Error(), err)
	}
	return &Saver{
		streamer: streamer,
		policy:   policy,
		maxBytes: cfg.MaxImageBytes,
	}, nil
}

// Policy returns the configured collision policy.
func (s *Saver) Policy() CollisionPolicy { return s.policy }

// SaveURL saves rawURL under its suggested filename.
func (s *Saver) SaveURL(ctx context.Context, rawURL, dir string) models.DownloadResult {
	return s.Save(ctx, models.ImageReference{
		SourceURL:         rawURL,
		SuggestedFilename: extract.SuggestFilename(rawURL),
	}, dir)
}

// Save streams ref into dir. Every failure is reported in the result;
// Save never panics on I/O errors and never returns a Go error.
func (s *Saver) Save(ctx context.Context, ref models.ImageReference, dir string) models.DownloadResult {
	res := s.save(ctx, ref, dir)
	switch {
	case !res.OK():
		metrics.DownloadsTotal.WithLabelValues("failed").Inc()
		slog.Warn("image download failed", "url", ref.SourceURL, "error", res.Err)
	case res.Skipped:
		metrics.DownloadsTotal.WithLabelValues("skipped").Inc()
		slog.Debug("image skipped, file exists", "url", ref.SourceURL, "path", res.Path)
	default:
		metrics.DownloadsTotal.WithLabelValues("saved").Inc()
		metrics.DownloadedBytes.Add(float64(res.Bytes))
		slog.Debug("image downloaded", "url", ref.SourceURL, "path", res.Path, "bytes", res.Bytes)
	}
	return res
}

func (s *Saver) save(ctx context.Context, ref models.ImageReference, dir string) models.DownloadResult {
	name := filepath.Base(ref.SuggestedFilename)
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		name = extract.SuggestFilename(ref.SourceURL)
	}
	if err := s.ensureDir(dir); err != nil {
		return models.Failure(ref.SourceURL, models.NewHarvestError(models.ErrCodePersist, "create output directory", err))
	}
	target := filepath.Join(dir, name)

	if s.policy == Skip || s.policy == Fail {
		if _, err := os.Stat(target); err == nil {
			return s.existing(ref.SourceURL, target)
		}
	}

	stream, err := s.streamer.Stream(ctx, ref.SourceURL)
	if err != nil {
		return models.Failure(ref.SourceURL, asFetchError(err))
	}
	defer stream.Body.Close()

	tmp, n, herr := s.writeTemp(dir, stream.Body)
	if herr != nil {
		return models.Failure(ref.SourceURL, herr)
	}

	path, existed, err := s.place(tmp, target)
	if err != nil {
		os.Remove(tmp)
		return models.Failure(ref.SourceURL, asPersistError(err))
	}
	if existed {
		os.Remove(tmp)
		return s.existing(ref.SourceURL, target)
	}
	return models.DownloadResult{SourceURL: ref.SourceURL, Path: path, Bytes: n}
}

// existing builds the result for a destination that is already taken.
func (s *Saver) existing(src, target string) models.DownloadResult {
	if s.policy == Fail {
		return models.Failure(src, models.NewHarvestError(models.ErrCodeCollision,
			"destination exists: "+target, fs.ErrExist))
	}
	return models.DownloadResult{SourceURL: src, Path: target, Skipped: true}
}

// ensureDir creates dir and its parents once per Saver.
func (s *Saver) ensureDir(dir string) error {
	v, _ := s.dirs.LoadOrStore(dir, &dirState{})
	st := v.(*dirState)
	st.once.Do(func() {
		st.err = os.MkdirAll(dir, 0o755)
	})
	return st.err
}

// Forget drops the cached creation state for dir. Callers that write to
// short-lived directories, such as one per job, call it when done so the
// Saver does not keep an entry per directory forever. A later Save into
// dir creates it again.
func (s *Saver) Forget(dir string) {
	s.dirs.Delete(dir)
}

// writeTemp copies body into a hidden temp file in dir.
func (s *Saver) writeTemp(dir string, body io.Reader) (string, int64, *models.HarvestError) {
	f, err := os.CreateTemp(dir, ".harvest-*.part")
	if err != nil {
		return "", 0, models.NewHarvestError(models.ErrCodePersist, "create temp file", err)
	}
	tmp := f.Name()
	fail := func(herr *models.HarvestError) (string, int64, *models.HarvestError) {
		f.Close()
		os.Remove(tmp)
		return "", 0, herr
	}

	src := &trackingReader{r: body}
	var r io.Reader = src
	if s.maxBytes > 0 {
		r = io.LimitReader(src, s.maxBytes+1)
	}

	n, err := io.CopyBuffer(f, r, make([]byte, copyBufferSize))
	if err != nil {
		if src.err != nil {
			return fail(models.NewHarvestError(models.ErrCodeFetch, "read image body", src.err))
		}
		return fail(models.NewHarvestError(models.ErrCodePersist, "write image", err))
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		return fail(models.NewHarvestError(models.ErrCodePersist,
			fmt.Sprintf("image exceeds %d bytes", s.maxBytes), nil))
	}
	if err := f.Chmod(0o644); err != nil {
		return fail(models.NewHarvestError(models.ErrCodePersist, "chmod temp file", err))
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", 0, models.NewHarvestError(models.ErrCodePersist, "close temp file", err)
	}
	return tmp, n, nil
}

// place moves tmp to its final path according to the policy. existed is
// true when Skip or Fail found the target taken.
func (s *Saver) place(tmp, target string) (path string, existed bool, err error) {
	switch s.policy {
	case Overwrite:
		return target, false, os.Rename(tmp, target)
	case Skip, Fail:
		ok, err := claim(target)
		if err != nil {
			return "", false, err
		}
		if !ok {
			return "", true, nil
		}
		return target, false, moveClaimed(tmp, target)
	default:
		ext := filepath.Ext(target)
		stem := strings.TrimSuffix(target, ext)
		for i := 0; i < maxSuffix; i++ {
			candidate := target
			if i > 0 {
				candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
			}
			ok, err := claim(candidate)
			if err != nil {
				return "", false, err
			}
			if ok {
				return candidate, false, moveClaimed(tmp, candidate)
			}
		}
		return "", false, fmt.Errorf("no free name for %s after %d attempts", target, maxSuffix)
	}
}

// claim atomically reserves path by creating it exclusively. The empty
// placeholder is replaced by the following rename.
func claim(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, err
	}
	return true, f.Close()
}

// moveClaimed renames tmp over a claimed placeholder, releasing the claim
// if the rename fails.
func moveClaimed(tmp, path string) error {
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// trackingReader remembers the last read error so copy failures can be
// attributed to the network rather than the disk.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}

func asFetchError(err error) *models.HarvestError {
	var he *models.HarvestError
	if errors.As(err, &he) {
		return he
	}
	return models.NewHarvestError(models.ErrCodeFetch, "fetch image", err)
}

func asPersistError(err error) *models.HarvestError {
	return models.NewHarvestError(models.ErrCodePersist, "place image file", err)
}
