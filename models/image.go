package models

// ImageReference is one discovered image: an absolute source URL paired with
// a filename suggestion for local storage. Suggestions are not unique; the
// persistence layer resolves collisions.
type ImageReference struct {
	SourceURL         string `json:"source_url"`
	SuggestedFilename string `json:"suggested_filename"`
}

// DownloadResult is the outcome of one image persistence attempt.
type DownloadResult struct {
	// SourceURL is the image that was fetched.
	SourceURL string `json:"source_url"`

	// Path is the destination file. Empty on failure.
	Path string `json:"path,omitempty"`

	// Bytes is the number of bytes written.
	Bytes int64 `json:"bytes,omitempty"`

	// Skipped is set when the collision policy kept an existing file
	// instead of downloading.
	Skipped bool `json:"skipped,omitempty"`

	// Err holds the failure reason; nil on success.
	Err *HarvestError `json:"-"`
}

// OK reports whether the download succeeded.
func (r DownloadResult) OK() bool {
	return r.Err == nil
}

// Failure builds a failed DownloadResult for src.
func Failure(src string, err *HarvestError) DownloadResult {
	return DownloadResult{SourceURL: src, Err: err}
}
