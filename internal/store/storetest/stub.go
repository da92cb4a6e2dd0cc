// Package storetest provides an in-memory store.Querier for tests.
package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gsarma/judgerun/internal/store"
)

// Memory implements store.Querier over maps. Some methods can be overridden by
// setting the matching Fn field. ClaimNextJob returns pgx.ErrNoRows unless
// ClaimNextJobFn is set, so a worker under test only sees jobs it is given.
type Memory struct {
	mu sync.Mutex

	Tenants         map[uuid.UUID]store.Tenant
	Jobs            map[uuid.UUID]store.Job
	ProviderConfigs map[string]store.CodeProviderConfig
	Executions      map[uuid.UUID]store.CodeExecution

	ClaimNextJobFn     func(ctx context.Context) (store.Job, error)
	UpdateJobStatusFn  func(ctx context.Context, arg store.UpdateJobStatusParams) (store.Job, error)
	CreateJobFn        func(ctx context.Context, arg store.CreateJobParams) (store.Job, error)
	GetCodeExecutionFn func(ctx context.Context, arg store.GetCodeExecutionParams) (store.CodeExecution, error)
}

var _ store.Querier = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		Tenants:         map[uuid.UUID]store.Tenant{},
		Jobs:            map[uuid.UUID]store.Job{},
		ProviderConfigs: map[string]store.CodeProviderConfig{},
		Executions:      map[uuid.UUID]store.CodeExecution{},
	}
}

func (m *Memory) ClaimNextJob(ctx context.Context) (store.Job, error) {
	if m.ClaimNextJobFn != nil {
		return m.ClaimNextJobFn(ctx)
	}
	return store.Job{}, pgx.ErrNoRows
}

func (m *Memory) CreateJob(ctx context.Context, arg store.CreateJobParams) (store.Job, error) {
	if m.CreateJobFn != nil {
		return m.CreateJobFn(ctx, arg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	j := store.Job{
		ID:          uuid.New(),
		TenantID:    arg.TenantID,
		JobType:     arg.JobType,
		Payload:     arg.Payload,
		Status:      "pending",
		MaxAttempts: 3,
		RunAt:       now,
		CreatedAt:   now,
	}
	m.Jobs[j.ID] = j
	return j, nil
}

func (m *Memory) CreateTenant(ctx context.Context, arg store.CreateTenantParams) (store.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := store.Tenant{
		ID:               uuid.New(),
		ApiKeyHash:       arg.ApiKeyHash,
		EncryptedDataKey: arg.EncryptedDataKey,
		CreatedAt:        time.Now(),
	}
	m.Tenants[t.ID] = t
	return t, nil
}

func (m *Memory) GetTenantByAPIKeyHash(ctx context.Context, apiKeyHash string) (store.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.Tenants {
		if t.ApiKeyHash == apiKeyHash {
			return t, nil
		}
	}
	return store.Tenant{}, pgx.ErrNoRows
}

func (m *Memory) GetTenantByID(ctx context.Context, id uuid.UUID) (store.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tenants[id]
	if !ok {
		return store.Tenant{}, pgx.ErrNoRows
	}
	return t, nil
}

func (m *Memory) GetJob(ctx context.Context, arg store.GetJobParams) (store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.Jobs[arg.ID]
	if !ok || j.TenantID != arg.TenantID {
		return store.Job{}, pgx.ErrNoRows
	}
	return j, nil
}

func (m *Memory) UpdateJobStatus(ctx context.Context, arg store.UpdateJobStatusParams) (store.Job, error) {
	if m.UpdateJobStatusFn != nil {
		return m.UpdateJobStatusFn(ctx, arg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.Jobs[arg.ID]
	j.ID = arg.ID
	j.Status = arg.Status
	j.Error = arg.Error
	j.CompletedAt = arg.CompletedAt
	j.RunAt = arg.RunAt
	m.Jobs[arg.ID] = j
	return j, nil
}

func configKey(tenantID uuid.UUID, provider string) string {
	return tenantID.String() + "/" + provider
}

func (m *Memory) GetCodeProviderConfig(ctx context.Context, arg store.GetCodeProviderConfigParams) (store.CodeProviderConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.ProviderConfigs[configKey(arg.TenantID, arg.Provider)]
	if !ok {
		return store.CodeProviderConfig{}, pgx.ErrNoRows
	}
	return cfg, nil
}

func (m *Memory) UpsertCodeProviderConfig(ctx context.Context, arg store.UpsertCodeProviderConfigParams) (store.CodeProviderConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	key := configKey(arg.TenantID, arg.Provider)
	cfg, ok := m.ProviderConfigs[key]
	if !ok {
		cfg = store.CodeProviderConfig{ID: uuid.New(), TenantID: arg.TenantID, Provider: arg.Provider, CreatedAt: now}
	}
	cfg.EncryptedConfig = arg.EncryptedConfig
	cfg.UpdatedAt = now
	m.ProviderConfigs[key] = cfg
	return cfg, nil
}

func (m *Memory) InsertCodeExecution(ctx context.Context, arg store.InsertCodeExecutionParams) (store.CodeExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := store.CodeExecution{
		ID:                uuid.New(),
		JobID:             arg.JobID,
		TenantID:          arg.TenantID,
		Provider:          arg.Provider,
		Token:             arg.Token,
		Stdout:            arg.Stdout,
		Stderr:            arg.Stderr,
		CompileOutput:     arg.CompileOutput,
		Message:           arg.Message,
		StatusID:          arg.StatusID,
		StatusDescription: arg.StatusDescription,
		Time:              arg.Time,
		Memory:            arg.Memory,
		CreatedAt:         time.Now(),
	}
	m.Executions[arg.JobID] = e
	return e, nil
}

func (m *Memory) GetCodeExecution(ctx context.Context, arg store.GetCodeExecutionParams) (store.CodeExecution, error) {
	if m.GetCodeExecutionFn != nil {
		return m.GetCodeExecutionFn(ctx, arg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Executions[arg.JobID]
	if !ok || e.TenantID != arg.TenantID {
		return store.CodeExecution{}, pgx.ErrNoRows
	}
	return e, nil
}
