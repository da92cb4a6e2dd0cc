package code_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gsarma/judgerun/internal/code"
)

// fakeJudge0 is an in-memory Judge0 that hands out sequential tokens and
// replays polls[i] for the i-th fetch of any token (the last entry repeats).
type fakeJudge0 struct {
	mu sync.Mutex

	submitStatus int
	submitBody   string
	polls        []string
	fetchStatus  int

	submits       int
	fetches       int
	submitBodies  []string
	submitQueries []string
	fetchQueries  []string
	headers       []http.Header
}

func (f *fakeJudge0) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers = append(f.headers, r.Header.Clone())

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/submissions":
		f.submits++
		b, _ := io.ReadAll(r.Body)
		f.submitBodies = append(f.submitBodies, string(b))
		f.submitQueries = append(f.submitQueries, r.URL.RawQuery)
		if f.submitStatus != 0 {
			w.WriteHeader(f.submitStatus)
			io.WriteString(w, f.submitBody)
			return
		}
		w.WriteHeader(http.StatusCreated)
		if f.submitBody != "" {
			io.WriteString(w, f.submitBody)
			return
		}
		fmt.Fprintf(w, `{"token":"tok-%d"}`, f.submits)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/submissions/"):
		f.fetches++
		f.fetchQueries = append(f.fetchQueries, r.URL.RawQuery)
		if f.fetchStatus != 0 {
			w.WriteHeader(f.fetchStatus)
			io.WriteString(w, `{"error":"nope"}`)
			return
		}
		i := f.fetches - 1
		if i >= len(f.polls) {
			i = len(f.polls) - 1
		}
		io.WriteString(w, f.polls[i])
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeJudge0) counts() (submits, fetches int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits, f.fetches
}

const (
	queuedBody     = `{"stdout":null,"stderr":null,"compile_output":null,"message":null,"status":{"id":1,"description":"In Queue"},"time":null,"memory":null}`
	processingBody = `{"stdout":null,"stderr":null,"compile_output":null,"message":null,"status":{"id":2,"description":"Processing"},"time":null,"memory":null}`
	acceptedBody   = `{"stdout":"x\n","stderr":null,"compile_output":null,"message":null,"status":{"id":3,"description":"Accepted"},"time":"0.01","memory":3328}`
)

func newClient(t *testing.T, f *fakeJudge0, cfg code.Judge0Config) *code.Judge0Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	cfg.URL = srv.URL
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Millisecond
	}
	return code.NewJudge0Client(cfg)
}

func TestExecute_TerminalAfterPendingPolls(t *testing.T) {
	for _, k := range []int{0, 1, 4, 9} {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			polls := make([]string, 0, k+1)
			for i := 0; i < k; i++ {
				if i%2 == 0 {
					polls = append(polls, queuedBody)
				} else {
					polls = append(polls, processingBody)
				}
			}
			polls = append(polls, acceptedBody)
			f := &fakeJudge0{polls: polls}
			c := newClient(t, f, code.Judge0Config{MaxAttempts: 10})

			res, err := c.Execute(context.Background(), code.JobSpec{SourceCode: "print('x')", LanguageID: 71})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Status.ID != code.StatusAccepted {
				t.Errorf("expected status 3, got %d", res.Status.ID)
			}
			submits, fetches := f.counts()
			if submits != 1 {
				t.Errorf("expected 1 submit, got %d", submits)
			}
			if fetches != k+1 {
				t.Errorf("expected %d fetches, got %d", k+1, fetches)
			}
		})
	}
}

func TestExecute_TimeoutAfterExactlyMaxAttempts(t *testing.T) {
	f := &fakeJudge0{polls: []string{processingBody}}
	c := newClient(t, f, code.Judge0Config{MaxAttempts: 5})

	_, err := c.Execute(context.Background(), code.JobSpec{SourceCode: "while True: pass", LanguageID: 71})

	var timeoutErr *code.ExecutionTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected ExecutionTimeoutError, got %v", err)
	}
	if timeoutErr.Token != "tok-1" {
		t.Errorf("expected token tok-1 on timeout, got %q", timeoutErr.Token)
	}
	if timeoutErr.Attempts != 5 {
		t.Errorf("expected 5 attempts, got %d", timeoutErr.Attempts)
	}
	if _, fetches := f.counts(); fetches != 5 {
		t.Errorf("expected exactly 5 fetches, got %d", fetches)
	}
}

func TestExecute_SubmitRejectedDoesNotPoll(t *testing.T) {
	f := &fakeJudge0{
		submitStatus: http.StatusUnauthorized,
		submitBody:   `{"message":"You are not subscribed to this API."}`,
		polls:        []string{acceptedBody},
	}
	c := newClient(t, f, code.Judge0Config{})

	_, err := c.Execute(context.Background(), code.JobSpec{SourceCode: "x", LanguageID: 71})

	var rejected *code.RemoteRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RemoteRejectedError, got %v", err)
	}
	if rejected.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rejected.StatusCode)
	}
	if rejected.Body != `{"message":"You are not subscribed to this API."}` {
		t.Errorf("expected body to be kept verbatim, got %q", rejected.Body)
	}
	if _, fetches := f.counts(); fetches != 0 {
		t.Errorf("expected no polls after rejected submit, got %d", fetches)
	}
}

func TestExecute_MalformedStatusStopsPolling(t *testing.T) {
	f := &fakeJudge0{polls: []string{queuedBody, `{"stdout":"hi"}`, acceptedBody}}
	c := newClient(t, f, code.Judge0Config{})

	_, err := c.Execute(context.Background(), code.JobSpec{SourceCode: "x", LanguageID: 71})

	var protoErr *code.ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if protoErr.Body != `{"stdout":"hi"}` {
		t.Errorf("expected offending body on error, got %q", protoErr.Body)
	}
	if _, fetches := f.counts(); fetches != 2 {
		t.Errorf("expected polling to stop after 2 fetches, got %d", fetches)
	}
}

func TestExecute_FetchRejectedStopsPolling(t *testing.T) {
	f := &fakeJudge0{fetchStatus: http.StatusInternalServerError, polls: []string{acceptedBody}}
	c := newClient(t, f, code.Judge0Config{})

	_, err := c.Execute(context.Background(), code.JobSpec{SourceCode: "x", LanguageID: 71})

	var rejected *code.RemoteRejectedError
	if !errors.As(err, &rejected) || rejected.Op != "fetch" || rejected.StatusCode != 500 {
		t.Fatalf("expected fetch rejection with 500, got %v", err)
	}
	if _, fetches := f.counts(); fetches != 1 {
		t.Errorf("expected 1 fetch, got %d", fetches)
	}
}

func TestExecute_ConcreteScenario(t *testing.T) {
	f := &fakeJudge0{
		submitBody: `{"token":"abc123"}`,
		polls:      []string{queuedBody, acceptedBody},
	}
	c := newClient(t, f, code.Judge0Config{PollInterval: 20 * time.Millisecond})

	start := time.Now()
	res, err := c.Execute(context.Background(), code.JobSpec{SourceCode: "print('x')", LanguageID: 71})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("expected a wait before each of the 2 polls, took %v", elapsed)
	}

	want := code.Result{
		Token:  "abc123",
		Stdout: "x\n",
		Status: code.Status{ID: 3, Description: "Accepted"},
		Time:   "0.01",
		Memory: 3328,
	}
	if *res != want {
		t.Errorf("result mismatch:\n  want %+v\n  got  %+v", want, *res)
	}

	submits, fetches := f.counts()
	if submits != 1 || fetches != 2 {
		t.Errorf("expected 1 submit and 2 fetches, got %d and %d", submits, fetches)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(f.submitBodies[0]), &body); err != nil {
		t.Fatalf("submit body not JSON: %v", err)
	}
	if body["source_code"] != "print('x')" || body["language_id"] != float64(71) {
		t.Errorf("unexpected submit body: %v", body)
	}
	if _, ok := body["stdin"]; ok {
		t.Error("stdin should be omitted when empty")
	}
	if f.submitQueries[0] != "base64_encoded=false&wait=false" {
		t.Errorf("unexpected submit query %q", f.submitQueries[0])
	}
	if f.fetchQueries[0] != "base64_encoded=false" {
		t.Errorf("unexpected fetch query %q", f.fetchQueries[0])
	}
	if ct := f.headers[0].Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}
}

func TestExecute_DoesNotDedupeIdenticalJobs(t *testing.T) {
	f := &fakeJudge0{polls: []string{acceptedBody}}
	c := newClient(t, f, code.Judge0Config{})
	job := code.JobSpec{SourceCode: "print('x')", LanguageID: 71, Stdin: "in"}

	first, err := c.Execute(context.Background(), job)
	if err != nil {
		t.Fatalf("first execute: %v", err)
	}
	second, err := c.Execute(context.Background(), job)
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}

	if first == second {
		t.Error("expected distinct result objects")
	}
	if first.Token == second.Token {
		t.Errorf("expected distinct tokens, both %q", first.Token)
	}
	if submits, _ := f.counts(); submits != 2 {
		t.Errorf("expected 2 submits, got %d", submits)
	}
	if !strings.Contains(f.submitBodies[1], `"stdin":"in"`) {
		t.Errorf("expected stdin in body, got %s", f.submitBodies[1])
	}
}

func TestExecute_ConcurrentCallsAreIndependent(t *testing.T) {
	f := &fakeJudge0{polls: []string{acceptedBody}}
	c := newClient(t, f, code.Judge0Config{})

	const n = 8
	var wg sync.WaitGroup
	tokens := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Execute(context.Background(), code.JobSpec{SourceCode: "x", LanguageID: 71})
			if err != nil {
				t.Errorf("execute: %v", err)
				return
			}
			tokens <- res.Token
		}()
	}
	wg.Wait()
	close(tokens)

	seen := map[string]bool{}
	for tok := range tokens {
		if seen[tok] {
			t.Errorf("token %q returned twice", tok)
		}
		seen[tok] = true
	}
	if len(seen) != n {
		t.Errorf("expected %d tokens, got %d", n, len(seen))
	}
}

func TestExecute_CancelDuringWait(t *testing.T) {
	f := &fakeJudge0{polls: []string{processingBody}}
	c := newClient(t, f, code.Judge0Config{PollInterval: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Execute(ctx, code.JobSpec{SourceCode: "x", LanguageID: 71})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if submits, fetches := f.counts(); submits != 1 || fetches != 0 {
		t.Errorf("expected 1 submit and 0 fetches, got %d and %d", submits, fetches)
	}
}

func TestExecute_CancelledBeforeSubmit(t *testing.T) {
	f := &fakeJudge0{polls: []string{acceptedBody}}
	c := newClient(t, f, code.Judge0Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Execute(ctx, code.JobSpec{SourceCode: "x", LanguageID: 71})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if submits, _ := f.counts(); submits != 0 {
		t.Errorf("expected no submit, got %d", submits)
	}
}

func TestSubmit_MissingToken(t *testing.T) {
	for name, body := range map[string]string{
		"empty object": `{}`,
		"not json":     `<html>gateway</html>`,
		"empty token":  `{"token":""}`,
	} {
		t.Run(name, func(t *testing.T) {
			f := &fakeJudge0{submitBody: body}
			c := newClient(t, f, code.Judge0Config{})

			_, err := c.Submit(context.Background(), code.JobSpec{SourceCode: "x", LanguageID: 71})
			var protoErr *code.ProtocolError
			if !errors.As(err, &protoErr) || protoErr.Op != "submit" {
				t.Fatalf("expected submit ProtocolError, got %v", err)
			}
		})
	}
}

func TestFetchStatus_DecodesNullsAndNumericTime(t *testing.T) {
	f := &fakeJudge0{polls: []string{
		`{"stdout":null,"stderr":"boom","compile_output":"warn","message":"Exited with error status 1","status":{"id":11,"description":"Runtime Error (NZEC)"},"time":0.5,"memory":null}`,
	}}
	c := newClient(t, f, code.Judge0Config{})

	res, err := c.FetchStatus(context.Background(), "abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Token != "abc" || res.Stdout != "" || res.Stderr != "boom" || res.CompileOutput != "warn" {
		t.Errorf("unexpected text fields: %+v", res)
	}
	if res.Message != "Exited with error status 1" {
		t.Errorf("unexpected message %q", res.Message)
	}
	if res.Time != "0.5" || res.Memory != 0 {
		t.Errorf("unexpected time/memory: %q %d", res.Time, res.Memory)
	}
	if !res.Status.Terminal() {
		t.Error("status 11 should be terminal")
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := code.NewJudge0Client(code.Judge0Config{URL: url, PollInterval: time.Millisecond})
	_, err := c.Execute(context.Background(), code.JobSpec{SourceCode: "x", LanguageID: 71})

	var transportErr *code.TransportError
	if !errors.As(err, &transportErr) || transportErr.Op != "submit" {
		t.Fatalf("expected submit TransportError, got %v", err)
	}
}

// flakyTransport fails the first n round trips before delegating.
type flakyTransport struct {
	mu    sync.Mutex
	fails int
	calls int
}

func (f *flakyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.fails
	f.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset by peer")
	}
	return http.DefaultTransport.RoundTrip(r)
}

func TestTransportRetries(t *testing.T) {
	f := &fakeJudge0{polls: []string{acceptedBody}}
	srv := httptest.NewServer(f)
	defer srv.Close()

	t.Run("recovers within budget", func(t *testing.T) {
		ft := &flakyTransport{fails: 2}
		c := code.NewJudge0Client(code.Judge0Config{
			URL: srv.URL, PollInterval: time.Millisecond, TransportRetries: 2,
		}, code.WithHTTPClient(&http.Client{Transport: ft}))

		if _, err := c.Execute(context.Background(), code.JobSpec{SourceCode: "x", LanguageID: 71}); err != nil {
			t.Fatalf("expected retries to recover, got %v", err)
		}
	})

	t.Run("gives up after budget", func(t *testing.T) {
		ft := &flakyTransport{fails: 10}
		c := code.NewJudge0Client(code.Judge0Config{
			URL: srv.URL, PollInterval: time.Millisecond, TransportRetries: 2,
		}, code.WithHTTPClient(&http.Client{Transport: ft}))

		_, err := c.Execute(context.Background(), code.JobSpec{SourceCode: "x", LanguageID: 71})
		var transportErr *code.TransportError
		if !errors.As(err, &transportErr) {
			t.Fatalf("expected TransportError, got %v", err)
		}
		if ft.calls != 3 {
			t.Errorf("expected 3 tries, got %d", ft.calls)
		}
	})

	t.Run("rejections are not retried", func(t *testing.T) {
		rf := &fakeJudge0{submitStatus: http.StatusUnprocessableEntity, submitBody: `{"language_id":["can't be blank"]}`}
		rsrv := httptest.NewServer(rf)
		defer rsrv.Close()
		c := code.NewJudge0Client(code.Judge0Config{
			URL: rsrv.URL, PollInterval: time.Millisecond, TransportRetries: 3,
		})

		_, err := c.Execute(context.Background(), code.JobSpec{SourceCode: "x"})
		var rejected *code.RemoteRejectedError
		if !errors.As(err, &rejected) {
			t.Fatalf("expected RemoteRejectedError, got %v", err)
		}
		if submits, _ := rf.counts(); submits != 1 {
			t.Errorf("expected 1 submit, got %d", submits)
		}
	})
}

func TestCredentials_Headers(t *testing.T) {
	cases := []struct {
		name  string
		creds code.Credentials
		want  map[string]string
	}{
		{"none", code.Credentials{}, map[string]string{"X-Auth-Token": "", "X-RapidAPI-Key": ""}},
		{"auth token", code.Credentials{AuthToken: "s3cret"}, map[string]string{"X-Auth-Token": "s3cret"}},
		{"rapidapi", code.Credentials{RapidAPIKey: "k", RapidAPIHost: "judge0-ce.p.rapidapi.com"},
			map[string]string{"X-RapidAPI-Key": "k", "X-RapidAPI-Host": "judge0-ce.p.rapidapi.com"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeJudge0{polls: []string{acceptedBody}}
			c := newClient(t, f, code.Judge0Config{Credentials: tc.creds})
			if _, err := c.Execute(context.Background(), code.JobSpec{SourceCode: "x", LanguageID: 71}); err != nil {
				t.Fatalf("execute: %v", err)
			}
			for _, h := range f.headers {
				for k, v := range tc.want {
					if got := h.Get(k); got != v {
						t.Errorf("header %s: want %q, got %q", k, v, got)
					}
				}
			}
		})
	}
}

func TestCredentials_RapidAPIHostDefaultsToURLHost(t *testing.T) {
	f := &fakeJudge0{polls: []string{acceptedBody}}
	srv := httptest.NewServer(f)
	defer srv.Close()

	c := code.NewJudge0Client(code.Judge0Config{
		URL: srv.URL, PollInterval: time.Millisecond, Credentials: code.Credentials{RapidAPIKey: "k"},
	})
	if _, err := c.Submit(context.Background(), code.JobSpec{SourceCode: "x", LanguageID: 71}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := strings.TrimPrefix(srv.URL, "http://")
	if got := f.headers[0].Get("X-RapidAPI-Host"); got != want {
		t.Errorf("expected host %q, got %q", want, got)
	}
}

func TestCredentials_OAuthClientCredentials(t *testing.T) {
	var tokenCalls int
	var mu sync.Mutex
	mux := http.NewServeMux()
	f := &fakeJudge0{polls: []string{processingBody, acceptedBody}}
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		tokenCalls++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"bearer-xyz","token_type":"Bearer","expires_in":3600}`)
	})
	mux.Handle("/submissions", f)
	mux.Handle("/submissions/", f)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := code.NewJudge0Client(code.Judge0Config{
		URL:          srv.URL,
		PollInterval: time.Millisecond,
		Credentials: code.Credentials{
			OAuthClientID:     "id",
			OAuthClientSecret: "secret",
			OAuthTokenURL:     srv.URL + "/oauth/token",
		},
	})
	if _, err := c.Execute(context.Background(), code.JobSpec{SourceCode: "x", LanguageID: 71}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	for _, h := range f.headers {
		if got := h.Get("Authorization"); got != "Bearer bearer-xyz" {
			t.Errorf("expected bearer token, got %q", got)
		}
	}
	if tokenCalls != 1 {
		t.Errorf("expected token to be fetched once and reused, got %d", tokenCalls)
	}
}

func TestPoll_ObserverSeesEveryFetch(t *testing.T) {
	f := &fakeJudge0{polls: []string{queuedBody, processingBody, acceptedBody}}
	c := newClient(t, f, code.Judge0Config{})

	var seen []int
	res, err := c.Poll(context.Background(), "resume-me", func(attempt int, r *code.Result) {
		seen = append(seen, r.Status.ID)
		if attempt != len(seen) {
			t.Errorf("attempt %d out of order", attempt)
		}
	})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if res.Token != "resume-me" {
		t.Errorf("expected token to be carried, got %q", res.Token)
	}
	if fmt.Sprint(seen) != "[1 2 3]" {
		t.Errorf("unexpected observed statuses %v", seen)
	}
	if submits, _ := f.counts(); submits != 0 {
		t.Errorf("Poll must not submit, got %d", submits)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", &code.TransportError{Op: "submit", Err: errors.New("dial")}, true},
		{"timeout", &code.ExecutionTimeoutError{Token: "t", Attempts: 30}, true},
		{"429", &code.RemoteRejectedError{StatusCode: 429}, true},
		{"503", &code.RemoteRejectedError{StatusCode: 503}, true},
		{"401", &code.RemoteRejectedError{StatusCode: 401}, false},
		{"422", &code.RemoteRejectedError{StatusCode: 422}, false},
		{"protocol", &code.ProtocolError{Op: "fetch", Err: errors.New("missing status")}, false},
		{"canceled", context.Canceled, false},
		{"wrapped transport", fmt.Errorf("job: %w", &code.TransportError{Op: "fetch", Err: errors.New("eof")}), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := code.IsRetryable(tc.err); got != tc.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
