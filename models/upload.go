package models

// Upload report statuses.
const (
	UploadStatusCompleted           = "Completed"
	UploadStatusCompletedWithErrors = "CompletedWithErrors"
)

// Async upload job states stored in Redis.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusDone       = "done"
	JobStatusFailed     = "failed"
)

// RowError describes one rejected row of an upload, keyed by its
// 1-based data row number (header row excluded).
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// UploadReport summarizes one bulk rule upload. It is built once per
// upload call and returned verbatim; only the optional error report
// file outlives the request.
type UploadReport struct {
	UploadID  string     `json:"uploadId"`
	Status    string     `json:"status"`
	Created   int        `json:"created"`
	Updated   int        `json:"updated"`
	Failed    int        `json:"failed"`
	Errors    []RowError `json:"errors"`
	ReportURL string     `json:"reportUrl,omitempty"`
}

// UploadJob is the Redis-persisted metadata for an async upload.
type UploadJob struct {
	Status    string        `json:"status"`
	CreatedAt string        `json:"created_at"`
	FilePath  string        `json:"file_path"`
	Filename  string        `json:"filename"`
	Overwrite bool          `json:"overwrite"`
	Actor     string        `json:"actor"`
	Error     string        `json:"error,omitempty"`
	Result    *UploadReport `json:"result,omitempty"`
}
