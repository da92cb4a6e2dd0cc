package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/gsarma/judgerun/internal/code"
	"github.com/gsarma/judgerun/internal/store"
	"github.com/gsarma/judgerun/internal/tenant"
)

const jobTypeCodeExecute = "code.execute"

// executeRequest is the body accepted by the execute and stream endpoints.
type executeRequest struct {
	SourceCode string `json:"source_code" binding:"required"`
	LanguageID int    `json:"language_id" binding:"required"`
	Stdin      string `json:"stdin"`
}

func (r executeRequest) jobSpec() code.JobSpec {
	return code.JobSpec{SourceCode: r.SourceCode, LanguageID: r.LanguageID, Stdin: r.Stdin}
}

// SetCodeProviderConfig stores a tenant's code execution provider config (encrypted).
// For Judge0 the body is:
//
//	{
//	  "url":                 "https://judge0.example.com",
//	  "auth_token":          "optional X-Auth-Token",
//	  "rapidapi_key":        "optional",
//	  "rapidapi_host":       "optional, defaults to the url host",
//	  "oauth_client_id":     "optional client-credentials grant",
//	  "oauth_client_secret": "...",
//	  "oauth_token_url":     "...",
//	  "oauth_scopes":        ["..."]
//	}
//
// Fields left out fall back to the server's JUDGE0_* settings.
func (h *Handler) SetCodeProviderConfig(c *gin.Context) {
	t := tenant.FromContext(c)
	providerName := c.Param("provider")
	if !supportedProvider(providerName) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errUnsupportedProvider.Error()})
		return
	}

	var cfg code.Judge0Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}
	if cfg.URL != "" {
		u, err := url.Parse(cfg.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "url must be an absolute http(s) URL"})
			return
		}
	}
	if (cfg.OAuthClientID == "") != (cfg.OAuthTokenURL == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "oauth_client_id and oauth_token_url must be set together"})
		return
	}

	// Re-encode so only known fields are persisted.
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encoding error"})
		return
	}
	sealed, err := h.tenants.Seal(t, configJSON)
	if err != nil {
		h.logger().Error("seal provider config", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encryption error"})
		return
	}

	_, err = h.queries.UpsertCodeProviderConfig(c.Request.Context(), store.UpsertCodeProviderConfigParams{
		TenantID:        t.ID,
		Provider:        providerName,
		EncryptedConfig: sealed,
	})
	if err != nil {
		h.logger().Error("save provider config", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ExecuteCode queues a code execution job (async by default) or runs immediately with ?sync=true.
//
// Request body:
//
//	{
//	  "source_code": "print('hello')",
//	  "language_id": 71,         // Judge0 language ID (71 = Python 3)
//	  "stdin":       "optional"
//	}
//
// Async (default): returns 202 {"job_id": "...", "status": "queued"}.
// Sync (?sync=true): returns 200 with the execution result directly.
// After async completion, retrieve results via GET /code/executions/:job_id.
func (h *Handler) ExecuteCode(c *gin.Context) {
	t := tenant.FromContext(c)
	providerName := c.Param("provider")
	if !supportedProvider(providerName) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errUnsupportedProvider.Error()})
		return
	}

	var body executeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if c.Query("sync") != "true" {
		payloadJSON, err := json.Marshal(code.JobPayload{Provider: providerName, JobSpec: body.jobSpec()})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "encoding error"})
			return
		}
		job, err := h.queries.CreateJob(c.Request.Context(), store.CreateJobParams{
			TenantID: t.ID,
			JobType:  jobTypeCodeExecute,
			Payload:  payloadJSON,
		})
		if err != nil {
			h.logger().Error("queue code job", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue job"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "status": "queued"})
		return
	}

	// Sync path: execute immediately and return the result.
	client, err := h.buildCodeProvider(c.Request.Context(), t, providerName)
	if err != nil {
		h.writeCodeError(c, err)
		return
	}

	result, err := client.Execute(c.Request.Context(), body.jobSpec())
	if err != nil {
		h.writeCodeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetSubmission fetches the current state of a Judge0 submission once. It is
// how callers pick up a job whose polling budget ran out.
func (h *Handler) GetSubmission(c *gin.Context) {
	t := tenant.FromContext(c)
	client, err := h.buildCodeProvider(c.Request.Context(), t, c.Param("provider"))
	if err != nil {
		h.writeCodeError(c, err)
		return
	}

	result, err := client.FetchStatus(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.writeCodeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetCodeExecution returns the stored output of a completed code.execute job.
// Call this after GET /jobs/:id reports status "completed".
func (h *Handler) GetCodeExecution(c *gin.Context) {
	t := tenant.FromContext(c)
	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	exec, err := h.queries.GetCodeExecution(c.Request.Context(), store.GetCodeExecutionParams{
		JobID:    jobID,
		TenantID: t.ID,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "execution result not found"})
		return
	}
	if err != nil {
		h.logger().Error("get code execution", zap.String("job_id", jobID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load execution result"})
		return
	}

	c.JSON(http.StatusOK, exec)
}

func supportedProvider(name string) bool {
	return name == "judge0"
}

// buildCodeProvider constructs the named code provider from the server config,
// applying the tenant's stored URL and credentials when present.
func (h *Handler) buildCodeProvider(ctx context.Context, t *store.Tenant, providerName string) (*code.Judge0Client, error) {
	if !supportedProvider(providerName) {
		return nil, fmt.Errorf("%w: %s", errUnsupportedProvider, providerName)
	}

	cfg := h.judge0
	row, err := h.queries.GetCodeProviderConfig(ctx, store.GetCodeProviderConfigParams{
		TenantID: t.ID,
		Provider: providerName,
	})
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("load provider config: %w", err)
	default:
		configJSON, err := h.tenants.Open(t, row.EncryptedConfig)
		if err != nil {
			return nil, fmt.Errorf("decrypt provider config: %w", err)
		}
		var override code.Judge0Config
		if err := json.Unmarshal(configJSON, &override); err != nil {
			return nil, fmt.Errorf("decode provider config: %w", err)
		}
		// Server credentials are only ever sent to the server URL.
		if override.URL != "" && override.URL != h.judge0.URL {
			cfg.URL = override.URL
			cfg.Credentials = override.Credentials
		} else if hasCredentials(override.Credentials) {
			cfg.Credentials = override.Credentials
		}
	}

	return code.NewJudge0Client(cfg, code.WithLogger(h.logger().With(zap.String("tenant_id", t.ID.String())))), nil
}

func hasCredentials(c code.Credentials) bool {
	return c.AuthToken != "" || c.RapidAPIKey != "" || c.OAuthClientID != ""
}
