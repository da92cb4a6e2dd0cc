package code

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	DefaultURL          = "http://localhost:2358"
	DefaultMaxAttempts  = 30
	DefaultPollInterval = time.Second
	DefaultHTTPTimeout  = 30 * time.Second

	maxBodyBytes = 4 << 20
)

// Judge0Config holds the connection settings for a Judge0 CE instance.
// URL is the base URL of the Judge0 server (e.g. "http://judge0-server:2358").
// The embedded Credentials and URL are what tenants may override; the polling
// knobs come from server configuration only.
type Judge0Config struct {
	URL string `json:"url"`
	Credentials

	MaxAttempts  int           `json:"-"`
	PollInterval time.Duration `json:"-"`
	HTTPTimeout  time.Duration `json:"-"`

	// TransportRetries is how many times a single request is retried after a
	// TransportError, waiting PollInterval between tries. Zero aborts at once.
	TransportRetries int `json:"-"`
}

// Judge0Client calls the Judge0 CE REST API to execute source code. It holds
// no per-job state and is safe for concurrent use.
type Judge0Client struct {
	url              string
	creds            Credentials
	client           *http.Client
	maxAttempts      int
	pollInterval     time.Duration
	transportRetries int
	log              *zap.Logger
}

var _ Provider = (*Judge0Client)(nil)

// Option configures a Judge0Client.
type Option func(*Judge0Client)

// WithHTTPClient sets the underlying HTTP client. OAuth credentials, if any,
// are layered on top of it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Judge0Client) {
		c.client = hc
	}
}

// WithLogger sets the logger used for submit and poll events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Judge0Client) {
		c.log = l
	}
}

// NewJudge0Client constructs a Judge0Client from the given config, filling in defaults.
func NewJudge0Client(cfg Judge0Config, opts ...Option) *Judge0Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}
	if cfg.TransportRetries < 0 {
		cfg.TransportRetries = 0
	}

	c := &Judge0Client{
		url:              strings.TrimRight(cfg.URL, "/"),
		creds:            cfg.Credentials,
		client:           &http.Client{Timeout: cfg.HTTPTimeout},
		maxAttempts:      cfg.MaxAttempts,
		pollInterval:     cfg.PollInterval,
		transportRetries: cfg.TransportRetries,
		log:              zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.client = c.creds.wrapClient(c.client)
	return c
}

// Execute submits the job and blocks until Judge0 reports a terminal status,
// the attempt budget runs out, or ctx is done.
func (c *Judge0Client) Execute(ctx context.Context, job JobSpec) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	token, err := c.Submit(ctx, job)
	if err != nil {
		return nil, err
	}
	return c.Poll(ctx, token, nil)
}

// Submit creates a submission without waiting and returns its token.
func (c *Judge0Client) Submit(ctx context.Context, job JobSpec) (string, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	body, err := c.do(ctx, "submit", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.url+"/submissions?base64_encoded=false&wait=false", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", err
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &ProtocolError{Op: "submit", Body: string(body), Err: err}
	}
	if out.Token == "" {
		return "", &ProtocolError{Op: "submit", Body: string(body), Err: errors.New("missing token")}
	}

	c.log.Debug("judge0 submission created",
		zap.String("token", out.Token), zap.Int("language_id", job.LanguageID))
	return out.Token, nil
}

// FetchStatus reads the current state of a submission once.
func (c *Judge0Client) FetchStatus(ctx context.Context, token string) (*Result, error) {
	body, err := c.do(ctx, "fetch", func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet,
			c.url+"/submissions/"+url.PathEscape(token)+"?base64_encoded=false", nil)
	})
	if err != nil {
		return nil, err
	}
	return decodeResult(token, body)
}

// Poll waits PollInterval before each fetch and returns the first terminal
// result. fn, if non-nil, sees every fetched result including the last.
func (c *Judge0Client) Poll(ctx context.Context, token string, fn PollFunc) (*Result, error) {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := sleep(ctx, c.pollInterval); err != nil {
			return nil, err
		}

		res, err := c.FetchStatus(ctx, token)
		if err != nil {
			return nil, err
		}
		if fn != nil {
			fn(attempt, res)
		}
		if res.Status.Terminal() {
			c.log.Debug("judge0 submission finished",
				zap.String("token", token),
				zap.Int("attempt", attempt),
				zap.Int("status_id", res.Status.ID),
				zap.String("status", res.Status.Description))
			return res, nil
		}
		c.log.Debug("judge0 submission pending",
			zap.String("token", token), zap.Int("attempt", attempt), zap.Int("status_id", res.Status.ID))
	}

	c.log.Warn("judge0 poll budget exhausted", zap.String("token", token), zap.Int("attempts", c.maxAttempts))
	return nil, &ExecutionTimeoutError{Token: token, Attempts: c.maxAttempts}
}

// do performs one logical request, retrying transport failures when configured.
// newReq is called for every try since request bodies are single-use.
func (c *Judge0Client) do(ctx context.Context, op string, newReq func() (*http.Request, error)) ([]byte, error) {
	if c.transportRetries == 0 {
		return c.roundTrip(ctx, op, newReq)
	}

	var body []byte
	try := func() error {
		b, err := c.roundTrip(ctx, op, newReq)
		if err != nil {
			var transportErr *TransportError
			if errors.As(err, &transportErr) {
				c.log.Warn("judge0 transport error, retrying", zap.String("op", op), zap.Error(err))
				return err
			}
			return backoff.Permanent(err)
		}
		body = b
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.pollInterval), uint64(c.transportRetries)),
		ctx,
	)
	if err := backoff.Retry(try, policy); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Judge0Client) roundTrip(ctx context.Context, op string, newReq func() (*http.Request, error)) ([]byte, error) {
	req, err := newReq()
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.creds.apply(req, c.url)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransportError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteRejectedError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func decodeResult(token string, body []byte) (*Result, error) {
	var raw struct {
		Stdout        *string `json:"stdout"`
		Stderr        *string `json:"stderr"`
		CompileOutput *string `json:"compile_output"`
		Message       *string `json:"message"`
		Status        *struct {
			ID          *int   `json:"id"`
			Description string `json:"description"`
		} `json:"status"`
		Time   json.RawMessage `json:"time"`
		Memory *int            `json:"memory"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ProtocolError{Op: "fetch", Body: string(body), Err: err}
	}
	if raw.Status == nil || raw.Status.ID == nil {
		return nil, &ProtocolError{Op: "fetch", Body: string(body), Err: errors.New("missing status")}
	}

	res := &Result{
		Token:  token,
		Status: Status{ID: *raw.Status.ID, Description: raw.Status.Description},
	}
	if raw.Stdout != nil {
		res.Stdout = *raw.Stdout
	}
	if raw.Stderr != nil {
		res.Stderr = *raw.Stderr
	}
	if raw.CompileOutput != nil {
		res.CompileOutput = *raw.CompileOutput
	}
	if raw.Message != nil {
		res.Message = *raw.Message
	}
	if raw.Memory != nil {
		res.Memory = *raw.Memory
	}

	// time is a string in Judge0 CE but some deployments send a bare number.
	if len(raw.Time) > 0 && string(raw.Time) != "null" {
		var s string
		if err := json.Unmarshal(raw.Time, &s); err == nil {
			res.Time = s
		} else {
			var n json.Number
			if err := json.Unmarshal(raw.Time, &n); err != nil {
				return nil, &ProtocolError{Op: "fetch", Body: string(body), Err: fmt.Errorf("time: %w", err)}
			}
			res.Time = n.String()
		}
	}
	return res, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
