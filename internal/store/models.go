package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Tenant struct {
	ID               uuid.UUID `json:"id"`
	ApiKeyHash       string    `json:"-"`
	EncryptedDataKey []byte    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
}

type Job struct {
	ID          uuid.UUID   `json:"id"`
	TenantID    uuid.UUID   `json:"tenant_id"`
	JobType     string      `json:"job_type"`
	Payload     []byte      `json:"-"`
	Status      string      `json:"status"`
	Attempt     int32       `json:"attempt"`
	MaxAttempts int32       `json:"max_attempts"`
	Error       pgtype.Text `json:"error"`
	RunAt       time.Time   `json:"run_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

type CodeProviderConfig struct {
	ID              uuid.UUID `json:"id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	Provider        string    `json:"provider"`
	EncryptedConfig []byte    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type CodeExecution struct {
	ID                uuid.UUID `json:"id"`
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
	CreatedAt         time.Time `json:"created_at"`
}
