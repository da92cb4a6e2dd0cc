package judgerun

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// CodeService provides code execution operations.
type CodeService struct {
	c *Client
}

// SetConfig stores the tenant's Judge0 connection settings. Empty fields fall
// back to the server defaults.
// provider is currently "judge0".
func (s *CodeService) SetConfig(ctx context.Context, provider string, cfg Judge0Config) error {
	path := fmt.Sprintf("/code/%s/config", url.PathEscape(provider))
	_, err := doRequest[StatusResponse](ctx, s.c, http.MethodPost, path, cfg, http.StatusOK)
	return err
}

// Execute runs source code via the given provider.
//
// By default the run is queued and the response carries a JobID; poll
// Jobs.Get and then fetch the output with GetExecution. With opts.Sync the
// call blocks until Judge0 reports a verdict and Result is populated.
func (s *CodeService) Execute(ctx context.Context, provider string, req ExecuteRequest, opts *ExecuteOptions) (*ExecuteResponse, error) {
	path := fmt.Sprintf("/code/%s/execute", url.PathEscape(provider))
	httpReq, err := s.c.newRequest(ctx, http.MethodPost, path, req)
	if err != nil {
		return nil, err
	}
	if opts != nil && opts.Sync {
		q := httpReq.URL.Query()
		q.Set("sync", "true")
		httpReq.URL.RawQuery = q.Encode()
	}

	resp, err := s.c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Async returns 202, sync returns 200
	switch resp.StatusCode {
	case http.StatusAccepted:
		var out ExecuteResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("judgerun: decode response: %w", err)
		}
		return &out, nil
	case http.StatusOK:
		var res ExecutionResult
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return nil, fmt.Errorf("judgerun: decode response: %w", err)
		}
		return &ExecuteResponse{Status: "completed", Result: &res}, nil
	default:
		return nil, parseError(resp)
	}
}

// GetExecution returns the stored output of a finished async execution.
func (s *CodeService) GetExecution(ctx context.Context, jobID string) (*StoredExecution, error) {
	path := fmt.Sprintf("/code/executions/%s", url.PathEscape(jobID))
	return doRequest[StoredExecution](ctx, s.c, http.MethodGet, path, nil, http.StatusOK)
}

// GetSubmission asks Judge0 once for the current state of a submission, for
// example one whose synchronous Execute timed out.
func (s *CodeService) GetSubmission(ctx context.Context, provider, token string) (*ExecutionResult, error) {
	path := fmt.Sprintf("/code/%s/submissions/%s", url.PathEscape(provider), url.PathEscape(token))
	return doRequest[ExecutionResult](ctx, s.c, http.MethodGet, path, nil, http.StatusOK)
}
