package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gsarma/judgerun/internal/code"
	"github.com/gsarma/judgerun/internal/ratelimit"
	"github.com/gsarma/judgerun/internal/store"
	"github.com/gsarma/judgerun/internal/tenant"
)

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Queries store.Querier
	Tenants *tenant.Service
	// Limiter may be nil, which disables rate limiting.
	Limiter *ratelimit.Limiter
	// Judge0 is the server-wide client config; tenants may override URL and credentials.
	Judge0 code.Judge0Config
	Logger *zap.Logger
}

// RegisterRoutes mounts every endpoint on r and returns the Handler, which
// also serves as the worker's JobExecutor.
func RegisterRoutes(r *gin.Engine, deps Deps) *Handler {
	h := &Handler{
		queries: deps.Queries,
		tenants: deps.Tenants,
		limiter: deps.Limiter,
		judge0:  deps.Judge0,
		log:     deps.Logger,
	}

	r.GET("/health", h.Health)

	// Tenant provisioning (would be admin-gated in production)
	r.POST("/tenants", h.CreateTenant)

	limit := h.limiter.Middleware(func(c *gin.Context) string {
		return tenant.FromContext(c).ID.String()
	})

	authed := r.Group("/", h.tenants.AuthMiddleware())
	{
		authed.POST("/code/:provider/config", h.SetCodeProviderConfig)
		authed.POST("/code/:provider/execute", limit, h.ExecuteCode)
		authed.GET("/code/:provider/submissions/:token", h.GetSubmission)
		authed.GET("/code/:provider/stream", limit, h.StreamCode)
		authed.GET("/code/executions/:job_id", h.GetCodeExecution)

		authed.GET("/jobs/:id", h.GetJob)
	}

	return h
}
