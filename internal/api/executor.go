package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/gsarma/judgerun/internal/code"
	"github.com/gsarma/judgerun/internal/store"
	"github.com/gsarma/judgerun/internal/worker"
)

var _ worker.JobExecutor = (*Handler)(nil)

// ExecuteJob dispatches a job to the appropriate handler by type.
// It implements worker.JobExecutor.
func (h *Handler) ExecuteJob(ctx context.Context, jobID uuid.UUID, tenantID uuid.UUID, jobType string, payload json.RawMessage) error {
	t, err := h.queries.GetTenantByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return worker.Permanent(fmt.Errorf("tenant %s not found", tenantID))
		}
		return fmt.Errorf("load tenant: %w", err)
	}
	switch jobType {
	case jobTypeCodeExecute:
		return h.executeCodeJob(ctx, jobID, &t, payload)
	default:
		return worker.Permanent(fmt.Errorf("unknown job type: %s", jobType))
	}
}

func (h *Handler) executeCodeJob(ctx context.Context, jobID uuid.UUID, t *store.Tenant, raw json.RawMessage) error {
	var p code.JobPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return worker.Permanent(fmt.Errorf("invalid code job payload: %w", err))
	}

	client, err := h.buildCodeProvider(ctx, t, p.Provider)
	if err != nil {
		if errors.Is(err, errUnsupportedProvider) {
			return worker.Permanent(err)
		}
		return err
	}

	result, err := client.Execute(ctx, p.JobSpec)
	if err != nil {
		// A worker shutting down is not the job's fault.
		if ctx.Err() != nil || code.IsRetryable(err) {
			return err
		}
		return worker.Permanent(err)
	}

	_, err = h.queries.InsertCodeExecution(ctx, store.InsertCodeExecutionParams{
		JobID:             jobID,
		TenantID:          t.ID,
		Provider:          p.Provider,
		Token:             result.Token,
		Stdout:            result.Stdout,
		Stderr:            result.Stderr,
		CompileOutput:     result.CompileOutput,
		Message:           result.Message,
		StatusID:          int32(result.Status.ID),
		StatusDescription: result.Status.Description,
		Time:              result.Time,
		Memory:            int32(result.Memory),
	})
	if err != nil {
		return fmt.Errorf("store code execution: %w", err)
	}

	h.logger().Info("code job finished",
		zap.String("job_id", jobID.String()),
		zap.String("token", result.Token),
		zap.Int("status_id", result.Status.ID))
	return nil
}
