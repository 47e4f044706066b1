package models

// Harvest job states.
const (
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobPartial    = "partial"
	JobFailed     = "failed"
)

// HarvestResponse is the immediate response for POST /api/v1/harvest.
type HarvestResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// DownloadStatus is the API view of a DownloadResult.
type DownloadStatus struct {
	SourceURL string       `json:"source_url"`
	Path      string       `json:"path,omitempty"`
	Bytes     int64        `json:"bytes,omitempty"`
	Skipped   bool         `json:"skipped,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
}

// NewDownloadStatus converts a DownloadResult for JSON output.
func NewDownloadStatus(r DownloadResult) DownloadStatus {
	s := DownloadStatus{
		SourceURL: r.SourceURL,
		Path:      r.Path,
		Bytes:     r.Bytes,
		Skipped:   r.Skipped,
	}
	if r.Err != nil {
		s.Error = r.Err.ToDetail()
	}
	return s
}

// HarvestStatusResponse is the response for GET /api/v1/harvest/:id.
type HarvestStatusResponse struct {
	ID         string           `json:"id"`
	Status     string           `json:"status"`
	URL        string           `json:"url"`
	Mode       string           `json:"mode"`
	Downloaded int              `json:"downloaded"`
	Failed     int              `json:"failed"`
	Downloads  []DownloadStatus `json:"downloads,omitempty"`
	Products   []Product        `json:"products,omitempty"`
	Error      *ErrorDetail     `json:"error,omitempty"`
}

// HarvestJob tracks an in-progress harvest operation.
type HarvestJob struct {
	ID         string
	Status     string // "processing", "completed", "partial", "failed"
	URL        string
	Mode       string
	Downloaded int
	Failed     int
	Downloads  []DownloadStatus
	Products   []Product
	Error      *ErrorDetail
	CreatedAt  int64 // unix timestamp
}
