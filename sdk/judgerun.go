// Package judgerun provides a Go client for the judgerun API.
//
// judgerun is a multi-tenant front end for Judge0: it runs source code on a
// Judge0 instance, either synchronously or as a background job, and keeps
// each tenant's Judge0 credentials encrypted at rest.
//
// Usage:
//
//	// Create a tenant (no API key required)
//	provisioner := judgerun.NewProvisioner("https://run.example.com")
//	tenant, err := provisioner.CreateTenant(ctx)
//
//	client := judgerun.New("https://run.example.com", tenant.APIKey)
//
//	// Run code and wait for the verdict
//	resp, err := client.Code.Execute(ctx, "judge0", judgerun.ExecuteRequest{
//	    SourceCode: "print('hello')",
//	    LanguageID: 71,
//	}, &judgerun.ExecuteOptions{Sync: true})
package judgerun

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client is the authenticated judgerun API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	// Service accessors
	Code *CodeService
	Jobs *JobsService
}

// Provisioner is an unauthenticated client used only for tenant provisioning.
type Provisioner struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates an authenticated judgerun client.
// baseURL should be the root URL (e.g. "https://run.example.com").
// apiKey is the Bearer token returned when a tenant is provisioned.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	c.Code = &CodeService{c: c}
	c.Jobs = &JobsService{c: c}
	return c
}

// NewProvisioner creates an unauthenticated client for tenant provisioning.
func NewProvisioner(baseURL string, opts ...Option) *Provisioner {
	p := &Provisioner{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	// Apply any HTTP client options via a temporary Client to reuse Option type
	tmp := &Client{}
	for _, o := range opts {
		o(tmp)
	}
	if tmp.httpClient != nil {
		p.httpClient = tmp.httpClient
	}
	return p
}

// CreateTenant provisions a new tenant and returns the API key.
// Store the returned API key securely. It is shown only once.
func (p *Provisioner) CreateTenant(ctx context.Context) (*CreateTenantResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/tenants", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, parseError(resp)
	}

	var out CreateTenantResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks that the judgerun server is reachable and healthy.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	return doRequest[HealthResponse](ctx, c, http.MethodGet, "/health", nil, http.StatusOK)
}

// --- internal helpers ---

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("judgerun: marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

func doRequest[T any](ctx context.Context, c *Client, method, path string, body any, expectedStatus int) (*T, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != expectedStatus {
		return nil, parseError(resp)
	}

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("judgerun: decode response: %w", err)
	}
	return &out, nil
}

func parseError(resp *http.Response) *APIError {
	e := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Error      string `json:"error"`
		Token      string `json:"token"`
		StatusCode int    `json:"status_code"`
		Body       string `json:"body"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		e.Message = body.Error
		e.Token = body.Token
		e.UpstreamStatus = body.StatusCode
		e.UpstreamBody = body.Body
	} else {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}
