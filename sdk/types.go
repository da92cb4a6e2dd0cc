package judgerun

import "time"

// --- Tenant ---

// CreateTenantResponse is returned when a new tenant is provisioned.
type CreateTenantResponse struct {
	TenantID string `json:"tenant_id"`
	APIKey   string `json:"api_key"`
	Note     string `json:"note"`
}

// HealthResponse is returned by the /health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is a generic {"status": "..."} response.
type StatusResponse struct {
	Status string `json:"status"`
}

// --- Code ---

// Judge0Config is the per-tenant Judge0 connection override.
type Judge0Config struct {
	URL          string `json:"url,omitempty"`
	AuthToken    string `json:"auth_token,omitempty"`
	RapidAPIKey  string `json:"rapidapi_key,omitempty"`
	RapidAPIHost string `json:"rapidapi_host,omitempty"`

	OAuthClientID     string   `json:"oauth_client_id,omitempty"`
	OAuthClientSecret string   `json:"oauth_client_secret,omitempty"`
	OAuthTokenURL     string   `json:"oauth_token_url,omitempty"`
	OAuthScopes       []string `json:"oauth_scopes,omitempty"`
}

// ExecuteRequest is one piece of source code to run.
type ExecuteRequest struct {
	SourceCode string `json:"source_code"`
	LanguageID int    `json:"language_id"`
	Stdin      string `json:"stdin,omitempty"`
}

// ExecuteOptions controls how Execute behaves.
type ExecuteOptions struct {
	// Sync waits for the verdict instead of queueing a job.
	Sync bool
}

// ExecuteResponse is returned by CodeService.Execute.
// When async (default), JobID and Status are populated.
// When sync, Result is populated and Status is "completed".
type ExecuteResponse struct {
	JobID  string           `json:"job_id,omitempty"`
	Status string           `json:"status"`
	Result *ExecutionResult `json:"-"`
}

// SubmissionStatus is Judge0's status for a submission.
type SubmissionStatus struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// Judge0 status ids. Ids up to StatusProcessing mean the run has not finished.
const (
	StatusInQueue    = 1
	StatusProcessing = 2
	StatusAccepted   = 3
)

// Finished reports whether the status is final.
func (s SubmissionStatus) Finished() bool {
	return s.ID > StatusProcessing
}

// ExecutionResult is a Judge0 submission as reported by the server.
type ExecutionResult struct {
	Token         string           `json:"token"`
	Stdout        string           `json:"stdout"`
	Stderr        string           `json:"stderr"`
	CompileOutput string           `json:"compile_output"`
	Message       string           `json:"message"`
	Status        SubmissionStatus `json:"status"`
	Time          string           `json:"time"`
	Memory        int              `json:"memory"`
}

// StoredExecution is the persisted output of an async execution.
type StoredExecution struct {
	ID                string    `json:"id"`
	JobID             string    `json:"job_id"`
	TenantID          string    `json:"tenant_id"`
	Provider          string    `json:"provider"`
	Token             string    `json:"token"`
	Stdout            string    `json:"stdout"`
	Stderr            string    `json:"stderr"`
	CompileOutput     string    `json:"compile_output"`
	Message           string    `json:"message"`
	StatusID          int       `json:"status_id"`
	StatusDescription string    `json:"status_description"`
	Time              string    `json:"time"`
	Memory            int       `json:"memory"`
	CreatedAt         time.Time `json:"created_at"`
}

// --- Jobs ---

// Job represents an async background job.
type Job struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	JobType     string     `json:"job_type"`
	Status      string     `json:"status"`
	Attempt     int        `json:"attempt"`
	MaxAttempts int        `json:"max_attempts"`
	Error       *string    `json:"error,omitempty"`
	RunAt       time.Time  `json:"run_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// JobStatus constants for Job.Status.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)
