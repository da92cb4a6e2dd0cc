package code

import "context"

// Judge0 CE status ids. Only the ordering matters to the client: ids up to
// StatusProcessing are still running, anything above is final.
const (
	StatusInQueue           = 1
	StatusProcessing        = 2
	StatusAccepted          = 3
	StatusWrongAnswer       = 4
	StatusTimeLimitExceeded = 5
	StatusCompilationError  = 6
	StatusInternalError     = 13
	StatusExecFormatError   = 14
)

// JobSpec is one request to run a piece of source code.
type JobSpec struct {
	SourceCode string `json:"source_code"`
	LanguageID int    `json:"language_id"`
	Stdin      string `json:"stdin,omitempty"`
}

// Status is the remote service's view of a submission.
type Status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// Terminal reports whether the submission has finished and will not change.
func (s Status) Terminal() bool {
	return s.ID > StatusProcessing
}

// Result is the outcome of a single code execution.
type Result struct {
	Token         string `json:"token"`
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	CompileOutput string `json:"compile_output"`
	Message       string `json:"message"`
	Status        Status `json:"status"`
	Time          string `json:"time"`
	Memory        int    `json:"memory"`
}

// JobPayload is the serialized form of a code.execute job stored in the jobs table.
type JobPayload struct {
	Provider string `json:"provider"`
	JobSpec
}

// Provider defines the interface each code execution provider must implement.
type Provider interface {
	Execute(ctx context.Context, job JobSpec) (*Result, error)
}

// PollFunc observes every status fetched while waiting for a submission.
type PollFunc func(attempt int, res *Result)
