package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/gsarma/judgerun/internal/store"
)

// statusWriteTimeout bounds the final job status update, which outlives the
// worker's context so a job interrupted by shutdown is not left running.
const statusWriteTimeout = 5 * time.Second

// JobExecutor executes a single job by type and payload.
type JobExecutor interface {
	ExecuteJob(ctx context.Context, jobID uuid.UUID, tenantID uuid.UUID, jobType string, payload json.RawMessage) error
}

// permanentError marks a job failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the worker fails the job without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Worker polls the database for pending jobs and executes them concurrently.
type Worker struct {
	store        store.Querier
	executor     JobExecutor
	concurrency  int
	pollInterval time.Duration
	log          *zap.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithPollInterval sets how often each goroutine looks for a job. Default 500ms.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithLogger sets the worker's logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) {
		w.log = l
	}
}

func New(q store.Querier, executor JobExecutor, concurrency int, opts ...Option) *Worker {
	w := &Worker{
		store:        q,
		executor:     executor,
		concurrency:  concurrency,
		pollInterval: 500 * time.Millisecond,
		log:          zap.NewNop(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Start spawns concurrency goroutines that each poll for jobs every pollInterval.
// It blocks until ctx is cancelled and every in-flight job has recorded its status.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("worker started", zap.Int("concurrency", w.concurrency), zap.Duration("poll_interval", w.pollInterval))
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	<-ctx.Done()
	w.log.Info("worker stopping")
	wg.Wait()
	w.log.Info("worker stopped")
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processNext(ctx)
		}
	}
}

func (w *Worker) processNext(ctx context.Context) {
	job, err := w.store.ClaimNextJob(ctx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || ctx.Err() != nil {
			return
		}
		w.log.Error("claim job", zap.Error(err))
		return
	}

	log := w.log.With(
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", job.JobType),
		zap.Int32("attempt", job.Attempt),
	)

	execErr := w.executor.ExecuteJob(ctx, job.ID, job.TenantID, job.JobType, json.RawMessage(job.Payload))

	updateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	now := time.Now()
	if execErr == nil {
		_, err = w.store.UpdateJobStatus(updateCtx, store.UpdateJobStatusParams{
			ID:          job.ID,
			Status:      "completed",
			Error:       pgtype.Text{Valid: false},
			CompletedAt: &now,
			RunAt:       job.RunAt,
		})
		if err != nil {
			log.Error("mark job completed", zap.Error(err))
		}
		return
	}

	// Interrupted by shutdown: hand the job back for the next worker to pick up.
	if ctx.Err() != nil && !IsPermanent(execErr) {
		log.Warn("job interrupted, releasing", zap.Error(execErr))
		_, err = w.store.UpdateJobStatus(updateCtx, store.UpdateJobStatusParams{
			ID:          job.ID,
			Status:      "pending",
			Error:       pgtype.Text{String: execErr.Error(), Valid: true},
			CompletedAt: nil,
			RunAt:       now,
		})
		if err != nil {
			log.Error("release job", zap.Error(err))
		}
		return
	}

	// Job failed: retry with backoff unless the error is permanent or attempts are used up.
	if !IsPermanent(execErr) && job.Attempt < job.MaxAttempts {
		backoff := time.Duration(int64(1)<<uint(job.Attempt)) * 10 * time.Second
		runAt := now.Add(backoff)
		log.Warn("job failed, rescheduling", zap.Error(execErr), zap.Time("run_at", runAt))
		_, err = w.store.UpdateJobStatus(updateCtx, store.UpdateJobStatusParams{
			ID:          job.ID,
			Status:      "pending",
			Error:       pgtype.Text{String: execErr.Error(), Valid: true},
			CompletedAt: nil,
			RunAt:       runAt,
		})
	} else {
		log.Error("job failed", zap.Error(execErr), zap.Bool("permanent", IsPermanent(execErr)))
		_, err = w.store.UpdateJobStatus(updateCtx, store.UpdateJobStatusParams{
			ID:          job.ID,
			Status:      "failed",
			Error:       pgtype.Text{String: execErr.Error(), Valid: true},
			CompletedAt: nil,
			RunAt:       job.RunAt,
		})
	}
	if err != nil {
		log.Error("update job status", zap.Error(err))
	}
}
