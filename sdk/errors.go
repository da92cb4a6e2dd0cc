package judgerun

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is returned when the judgerun API responds with a non-success status.
type APIError struct {
	StatusCode int
	Message    string

	// Token is set when the server gave up polling a submission (HTTP 504).
	// Pass it to CodeService.GetSubmission to check on it later.
	Token string

	// UpstreamStatus and UpstreamBody carry Judge0's own response when it
	// rejected a request (HTTP 502).
	UpstreamStatus int
	UpstreamBody   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("judgerun: HTTP %d: %s", e.StatusCode, e.Message)
}

// IsExecutionTimeout reports whether err is a 504 from the server running out
// of polling attempts, and returns the submission token if so.
func IsExecutionTimeout(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusGatewayTimeout && apiErr.Token != "" {
		return apiErr.Token, true
	}
	return "", false
}
