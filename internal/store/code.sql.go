package store

import (
	"context"

	"github.com/google/uuid"
)

const getCodeProviderConfig = `-- name: GetCodeProviderConfig :one
SELECT id, tenant_id, provider, encrypted_config, created_at, updated_at FROM code_provider_configs
WHERE tenant_id = $1 AND provider = $2`

type GetCodeProviderConfigParams struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Provider string    `json:"provider"`
}

func (q *Queries) GetCodeProviderConfig(ctx context.Context, arg GetCodeProviderConfigParams) (CodeProviderConfig, error) {
	row := q.db.QueryRow(ctx, getCodeProviderConfig, arg.TenantID, arg.Provider)
	var i CodeProviderConfig
	err := row.Scan(
		&i.ID,
		&i.TenantID,
		&i.Provider,
		&i.EncryptedConfig,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const upsertCodeProviderConfig = `-- name: UpsertCodeProviderConfig :one
INSERT INTO code_provider_configs (tenant_id, provider, encrypted_config)
VALUES ($1, $2, $3)
ON CONFLICT (tenant_id, provider)
DO UPDATE SET encrypted_config = EXCLUDED.encrypted_config, updated_at = now()
RETURNING id, tenant_id, provider, encrypted_config, created_at, updated_at`

type UpsertCodeProviderConfigParams struct {
	TenantID        uuid.UUID `json:"tenant_id"`
	Provider        string    `json:"provider"`
	EncryptedConfig []byte    `json:"encrypted_config"`
}

func (q *Queries) UpsertCodeProviderConfig(ctx context.Context, arg UpsertCodeProviderConfigParams) (CodeProviderConfig, error) {
	row := q.db.QueryRow(ctx, upsertCodeProviderConfig, arg.TenantID, arg.Provider, arg.EncryptedConfig)
	var i CodeProviderConfig
	err := row.Scan(
		&i.ID,
		&i.TenantID,
		&i.Provider,
		&i.EncryptedConfig,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const codeExecutionColumns = `id, job_id, tenant_id, provider, token, stdout, stderr, compile_output, message, status_id, status_description, time, memory, created_at`

func scanCodeExecution(row interface{ Scan(...any) error }) (CodeExecution, error) {
	var i CodeExecution
	err := row.Scan(
		&i.ID,
		&i.JobID,
		&i.TenantID,
		&i.Provider,
		&i.Token,
		&i.Stdout,
		&i.Stderr,
		&i.CompileOutput,
		&i.Message,
		&i.StatusID,
		&i.StatusDescription,
		&i.Time,
		&i.Memory,
		&i.CreatedAt,
	)
	return i, err
}

const insertCodeExecution = `-- name: InsertCodeExecution :one
INSERT INTO code_executions (
    job_id, tenant_id, provider, token, stdout, stderr, compile_output, message,
    status_id, status_description, time, memory
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (job_id) DO UPDATE SET
    token = EXCLUDED.token,
    stdout = EXCLUDED.stdout,
    stderr = EXCLUDED.stderr,
    compile_output = EXCLUDED.compile_output,
    message = EXCLUDED.message,
    status_id = EXCLUDED.status_id,
    status_description = EXCLUDED.status_description,
    time = EXCLUDED.time,
    memory = EXCLUDED.memory
RETURNING ` + codeExecutionColumns

type InsertCodeExecutionParams struct {
	JobID             uuid.UUID `json:"job_id"`
	TenantID          uuid.UUID `json:"tenant_id"`
	Provider          string    `json:"provider"`
	Token             string    `json:"token"`
	Stdout            string    `json:"stdout"`
	Stderr            string    `json:"stderr"`
	CompileOutput     string    `json:"compile_output"`
	Message           string    `json:"message"`
	StatusID          int32     `json:"status_id"`
	StatusDescription string    `json:"status_description"`
	Time              string    `json:"time"`
	Memory            int32     `json:"memory"`
}

func (q *Queries) InsertCodeExecution(ctx context.Context, arg InsertCodeExecutionParams) (CodeExecution, error) {
	return scanCodeExecution(q.db.QueryRow(ctx, insertCodeExecution,
		arg.JobID,
		arg.TenantID,
		arg.Provider,
		arg.Token,
		arg.Stdout,
		arg.Stderr,
		arg.CompileOutput,
		arg.Message,
		arg.StatusID,
		arg.StatusDescription,
		arg.Time,
		arg.Memory,
	))
}

const getCodeExecution = `-- name: GetCodeExecution :one
SELECT ` + codeExecutionColumns + ` FROM code_executions
WHERE job_id = $1 AND tenant_id = $2`

type GetCodeExecutionParams struct {
	JobID    uuid.UUID `json:"job_id"`
	TenantID uuid.UUID `json:"tenant_id"`
}

func (q *Queries) GetCodeExecution(ctx context.Context, arg GetCodeExecutionParams) (CodeExecution, error) {
	return scanCodeExecution(q.db.QueryRow(ctx, getCodeExecution, arg.JobID, arg.TenantID))
}
