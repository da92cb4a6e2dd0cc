package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/gsarma/judgerun/internal/code"
	"github.com/gsarma/judgerun/internal/ratelimit"
	"github.com/gsarma/judgerun/internal/store"
	"github.com/gsarma/judgerun/internal/tenant"
)

// statusClientClosedRequest is reported when the caller went away mid-request.
const statusClientClosedRequest = 499

var errUnsupportedProvider = errors.New("unsupported code provider")

type Handler struct {
	queries store.Querier
	tenants *tenant.Service
	limiter *ratelimit.Limiter
	judge0  code.Judge0Config
	log     *zap.Logger
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CreateTenant provisions a new tenant and returns the API key (shown once).
func (h *Handler) CreateTenant(c *gin.Context) {
	apiKey, tenantID, err := h.tenants.Create(c.Request.Context())
	if err != nil {
		h.logger().Error("create tenant", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create tenant"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"tenant_id": tenantID,
		"api_key":   apiKey,
		"note":      "Store this API key. It will not be shown again.",
	})
}

// GetJob returns the status row of a job owned by the caller.
func (h *Handler) GetJob(c *gin.Context) {
	t := tenant.FromContext(c)
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, err := h.queries.GetJob(c.Request.Context(), store.GetJobParams{
		ID:       jobID,
		TenantID: t.ID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		h.logger().Error("get job", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// writeCodeError maps a code execution failure to an HTTP response.
func (h *Handler) writeCodeError(c *gin.Context, err error) {
	var (
		timeout   *code.ExecutionTimeoutError
		rejected  *code.RemoteRejectedError
		transport *code.TransportError
		protocol  *code.ProtocolError
	)
	switch {
	case errors.Is(err, errUnsupportedProvider):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &timeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error(), "token": timeout.Token})
	case errors.As(err, &rejected):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":       err.Error(),
			"status_code": rejected.StatusCode,
			"body":        rejected.Body,
		})
	case errors.As(err, &transport), errors.As(err, &protocol):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	case errors.Is(err, context.Canceled):
		c.AbortWithStatus(statusClientClosedRequest)
	default:
		h.logger().Error("code execution", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *Handler) logger() *zap.Logger {
	if h.log == nil {
		return zap.NewNop()
	}
	return h.log
}
