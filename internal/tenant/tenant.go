package tenant

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gsarma/judgerun/internal/secret"
	"github.com/gsarma/judgerun/internal/store"
)

var ErrInvalidAPIKey = errors.New("invalid API key")

type Service struct {
	queries store.Querier
	keys    *secret.Keyring
}

func NewService(queries store.Querier, keys *secret.Keyring) *Service {
	return &Service{
		queries: queries,
		keys:    keys,
	}
}

// Create provisions a new tenant, returning the raw API key (shown once).
func (s *Service) Create(ctx context.Context) (apiKey string, tenantID uuid.UUID, err error) {
	rawKey, err := generateAPIKey()
	if err != nil {
		return "", uuid.Nil, err
	}

	wrapped, err := s.keys.NewDataKey()
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("generate data key: %w", err)
	}

	t, err := s.queries.CreateTenant(ctx, store.CreateTenantParams{
		ApiKeyHash:       HashAPIKey(rawKey),
		EncryptedDataKey: wrapped,
	})
	if err != nil {
		return "", uuid.Nil, err
	}

	return rawKey, t.ID, nil
}

// GetByAPIKey resolves a tenant from a raw API key.
func (s *Service) GetByAPIKey(ctx context.Context, rawKey string) (*store.Tenant, error) {
	t, err := s.queries.GetTenantByAPIKeyHash(ctx, HashAPIKey(rawKey))
	if err != nil {
		return nil, ErrInvalidAPIKey
	}
	return &t, nil
}

// Seal encrypts b with the tenant's data key.
func (s *Service) Seal(t *store.Tenant, b []byte) ([]byte, error) {
	dataKey, err := s.keys.UnwrapDataKey(t.EncryptedDataKey)
	if err != nil {
		return nil, err
	}
	return secret.Seal(dataKey, b)
}

// Open decrypts b with the tenant's data key.
func (s *Service) Open(t *store.Tenant, b []byte) ([]byte, error) {
	dataKey, err := s.keys.UnwrapDataKey(t.EncryptedDataKey)
	if err != nil {
		return nil, err
	}
	return secret.Open(dataKey, b)
}

// HashAPIKey is the stored form of an API key.
func HashAPIKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
