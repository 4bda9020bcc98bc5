package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Failure describes why a job failed.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Job describes a generation job in a transport-friendly format.
type Job struct {
	ID              string   `json:"id"`
	State           string   `json:"state"`
	Progress        int      `json:"progress"`
	Script          string   `json:"script"`
	AvatarID        string   `json:"avatarId"`
	VoiceID         string   `json:"voiceId"`
	Quality         string   `json:"quality"`
	AspectRatio     string   `json:"aspectRatio"`
	ExternalID      string   `json:"externalId,omitempty"`
	OutputURL       string   `json:"outputUrl,omitempty"`
	ThumbnailURL    string   `json:"thumbnailUrl,omitempty"`
	DurationSeconds float64  `json:"durationSeconds,omitempty"`
	Attempts        int      `json:"attempts"`
	Failure         *Failure `json:"failure,omitempty"`
	CreatedAt       string   `json:"createdAt,omitempty"`
	UpdatedAt       string   `json:"updatedAt,omitempty"`
}

// Transition is one job state change, streamed as a server-sent event.
type Transition struct {
	JobID     string   `json:"jobId"`
	Seq       int      `json:"seq"`
	From      string   `json:"from,omitempty"`
	To        string   `json:"to"`
	Progress  int      `json:"progress"`
	OutputURL string   `json:"outputUrl,omitempty"`
	Failure   *Failure `json:"failure,omitempty"`
	At        string   `json:"at"`
}

// SubmitRequest is the body of POST /api/jobs.
type SubmitRequest struct {
	Script      string `json:"script"`
	AvatarID    string `json:"avatarId"`
	VoiceID     string `json:"voiceId"`
	Quality     string `json:"quality,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
}

// SubmitResponse is returned for accepted submissions.
type SubmitResponse struct {
	ID  string `json:"id"`
	Job Job    `json:"job"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs   []Job          `json:"jobs"`
	Counts map[string]int `json:"counts"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// Asset is a catalog entry.
type Asset struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"displayName"`
	Category    string            `json:"category"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	PreviewURL  string            `json:"previewUrl,omitempty"`
	Active      bool              `json:"active"`
}

// CatalogResponse is a catalog snapshot.
type CatalogResponse struct {
	Category  string  `json:"category"`
	Source    string  `json:"source"`
	Degraded  bool    `json:"degraded"`
	FetchedAt string  `json:"fetchedAt,omitempty"`
	Error     string  `json:"error,omitempty"`
	Assets    []Asset `json:"assets"`
}

// Preset is an export preset.
type Preset struct {
	ID                 string `json:"id"`
	AspectRatio        string `json:"aspectRatio"`
	Container          string `json:"container"`
	MaxDurationSeconds int    `json:"maxDurationSeconds"`
	BitrateTier        string `json:"bitrateTier"`
}

// PresetsResponse lists presets and destinations.
type PresetsResponse struct {
	Presets      []Preset `json:"presets"`
	Destinations []string `json:"destinations"`
}

// AssetRef selects an export source.
type AssetRef struct {
	JobID string `json:"jobId,omitempty"`
	URL   string `json:"url,omitempty"`
}

// ExportRequest is the body of POST /api/exports.
type ExportRequest struct {
	Assets       []AssetRef `json:"assets"`
	Preset       string     `json:"preset"`
	Destinations []string   `json:"destinations"`
}

// ExportResult is the outcome of one export task.
type ExportResult struct {
	TaskID      string `json:"taskId"`
	Asset       string `json:"asset"`
	Preset      string `json:"preset"`
	Destination string `json:"destination"`
	State       string `json:"state"`
	URL         string `json:"url,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Skipped     bool   `json:"skipped,omitempty"`
	ElapsedMS   int64  `json:"elapsedMs"`
}

// ExportSummary aggregates an export batch.
type ExportSummary struct {
	Total   int `json:"total"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// ExportResponse describes a finished export batch.
type ExportResponse struct {
	BatchID   string         `json:"batchId"`
	Preset    string         `json:"preset"`
	CreatedAt string         `json:"createdAt"`
	Summary   ExportSummary  `json:"summary"`
	Results   []ExportResult `json:"results"`
}

// ExportListResponse wraps recent export batches.
type ExportListResponse struct {
	Batches []ExportResponse `json:"batches"`
}

// CatalogStatus reports cache health for one category.
type CatalogStatus struct {
	Category    string `json:"category"`
	Refreshes   int64  `json:"refreshes"`
	Failures    int64  `json:"failures"`
	LastError   string `json:"lastError,omitempty"`
	LastSuccess string `json:"lastSuccess,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running        bool            `json:"running"`
	PID            int             `json:"pid"`
	StartedAt      string          `json:"startedAt,omitempty"`
	JournalPath    string          `json:"journalPath,omitempty"`
	LockFilePath   string          `json:"lockFilePath"`
	StorageBackend string          `json:"storageBackend"`
	Jobs           map[string]int  `json:"jobs"`
	Catalog        []CatalogStatus `json:"catalog"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	JobID string `json:"jobId,omitempty"`
}
