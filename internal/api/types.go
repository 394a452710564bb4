package api

import "time"

// SubmitRequest asks the daemon to submit one batch of identifiers.
type SubmitRequest struct {
	Requester string   `json:"requester"`
	IDs       []string `json:"ids"`
}

// SubmitResponse acknowledges an accepted batch.
type SubmitResponse struct {
	JobID string `json:"job_id"`
}

// CancelRequest cancels a whole job (empty IDs) or a subset of identifiers.
type CancelRequest struct {
	IDs []string `json:"ids,omitempty"`
}

// IdentifierResult is the last-known state of one identifier in a job.
type IdentifierResult struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
	Message string `json:"message,omitempty"`
}

// JobSnapshot is an immutable view of one batch job.
type JobSnapshot struct {
	JobID      string             `json:"job_id"`
	Requester  string             `json:"requester"`
	State      string             `json:"state"`
	Error      string             `json:"error,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	Results    []IdentifierResult `json:"results"`
}

// JobListResponse lists retained jobs, newest first.
type JobListResponse struct {
	Jobs []JobSnapshot `json:"jobs"`
}

// StatsResponse carries aggregate counters, globally or for one requester.
type StatsResponse struct {
	Requester        string         `json:"requester,omitempty"`
	Submissions      int            `json:"submissions"`
	Identifiers      int            `json:"identifiers"`
	Requesters       int            `json:"requesters,omitempty"`
	SubmissionsInDay int            `json:"submissions_24h"`
	Outcomes         map[string]int `json:"outcomes"`
	TopRequesters    []TopRequester `json:"top_requesters,omitempty"`
}

// TopRequester pairs a requester with their submission count.
type TopRequester struct {
	Requester   string `json:"requester"`
	Submissions int    `json:"submissions"`
}

// DaemonStatus reports daemon runtime information.
type DaemonStatus struct {
	Running      bool   `json:"running"`
	PID          int    `json:"pid"`
	ActiveJobs   int    `json:"active_jobs"`
	RetainedJobs int    `json:"retained_jobs"`
	StatsDBPath  string `json:"stats_db_path,omitempty"`
	LockFilePath string `json:"lock_file_path"`
}

// ErrorResponse carries an API error message.
type ErrorResponse struct {
	Error string `json:"error"`
}
