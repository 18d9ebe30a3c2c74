// Package auth issues and verifies API keys: generation, hashing, and
// the scope checks (read/write/admin) the HTTP layer enforces per route.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"logsvc/internal/domain"
	"logsvc/pkg/apperror"
)

const (
	keyPrefix        = "logr_"
	randomBytes      = 32
	displayPrefixLen = 12
)

// Store is the subset of *store.Store the auth service depends on.
type Store interface {
	InsertAPIKey(ctx context.Context, k *domain.APIKey) error
	GetAPIKeyByHash(ctx context.Context, hash string) (*domain.APIKey, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID) error
	ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
	InsertServiceAccount(ctx context.Context, sa *domain.ServiceAccount) error
	ListServiceAccounts(ctx context.Context) ([]*domain.ServiceAccount, error)
}

// Service issues and verifies API keys.
type Service struct {
	store     Store
	masterKey string
}

func New(st Store, masterKey string) *Service {
	return &Service{store: st, masterKey: masterKey}
}

// IssuedKey is returned once, at creation time; the plaintext key is
// never recoverable afterward.
type IssuedKey struct {
	Plaintext string
	Record    *domain.APIKey
}

// hashKey returns the hex-encoded SHA-256 digest stored in place of the
// plaintext key.
func hashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// generateKey builds a logr_-prefixed key from 32 bytes of randomness,
// url-safe base64 encoded.
func generateKey() (string, error) {
	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return keyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// IssueKey creates a new API key with the given scopes and persists
// only its hash; the plaintext is returned exactly once.
func (s *Service) IssueKey(ctx context.Context, name, description string, canWrite, canRead, canAdmin bool) (*IssuedKey, error) {
	plaintext, err := generateKey()
	if err != nil {
		return nil, apperror.Wrap(err, "failed to generate api key")
	}

	displayPrefix := plaintext
	if len(displayPrefix) > displayPrefixLen {
		displayPrefix = displayPrefix[:displayPrefixLen]
	}

	record := &domain.APIKey{
		Name:        name,
		Description: description,
		KeyHash:     hashKey(plaintext),
		KeyPrefix:   displayPrefix,
		CanWrite:    canWrite,
		CanRead:     canRead,
		CanAdmin:    canAdmin,
	}
	if err := s.store.InsertAPIKey(ctx, record); err != nil {
		return nil, apperror.Wrap(err, "failed to store api key")
	}
	return &IssuedKey{Plaintext: plaintext, Record: record}, nil
}

// Authenticate looks up a presented plaintext key by its hash. A
// best-effort last-used touch is attempted; its failure does not fail
// the request.
func (s *Service) Authenticate(ctx context.Context, plaintext string) (*domain.APIKey, error) {
	if plaintext == "" {
		return nil, apperror.NewAuth("missing api key")
	}
	key, err := s.store.GetAPIKeyByHash(ctx, hashKey(plaintext))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewAuth("invalid api key")
		}
		return nil, apperror.Wrap(err, "failed to look up api key")
	}

	_ = s.store.TouchLastUsed(ctx, key.ID)
	return key, nil
}

// AuthenticateMaster constant-time compares the presented key against
// the configured master key. Returns a 503 if no master key is set at
// all, since the caller's admin intent can never be satisfied.
func (s *Service) AuthenticateMaster(plaintext string) error {
	if s.masterKey == "" {
		return apperror.NewUnconfigured("master api key is not configured")
	}
	if subtle.ConstantTimeCompare([]byte(plaintext), []byte(s.masterKey)) != 1 {
		return apperror.NewAuth("invalid master api key")
	}
	return nil
}

// ListKeys returns every issued key, revoked or not, for the admin
// listing endpoint.
func (s *Service) ListKeys(ctx context.Context) ([]*domain.APIKey, error) {
	keys, err := s.store.ListAPIKeys(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, "failed to list api keys")
	}
	return keys, nil
}

// RevokeKey soft-revokes a key by id; the row is kept for audit
// history, only the revoked flag and timestamp change.
func (s *Service) RevokeKey(ctx context.Context, id uuid.UUID) error {
	if err := s.store.RevokeAPIKey(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.NewNotFound("api key not found or already revoked")
		}
		return apperror.Wrap(err, "failed to revoke api key")
	}
	return nil
}

// CreateAccount registers a named service account grouping API keys
// for admin display.
func (s *Service) CreateAccount(ctx context.Context, name, description string) (*domain.ServiceAccount, error) {
	sa := &domain.ServiceAccount{Name: name, Description: description}
	if err := s.store.InsertServiceAccount(ctx, sa); err != nil {
		return nil, apperror.Wrap(err, "failed to store service account")
	}
	return sa, nil
}

// ListAccounts returns every registered service account.
func (s *Service) ListAccounts(ctx context.Context) ([]*domain.ServiceAccount, error) {
	accounts, err := s.store.ListServiceAccounts(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, "failed to list service accounts")
	}
	return accounts, nil
}

// RequireWrite, RequireRead, and RequireAdmin are the three independent
// scope gates the HTTP layer checks after authentication.
func RequireWrite(k *domain.APIKey) error {
	if !k.CanWrite {
		return apperror.NewScope("api key lacks write scope")
	}
	return nil
}

func RequireRead(k *domain.APIKey) error {
	if !k.CanRead {
		return apperror.NewScope("api key lacks read scope")
	}
	return nil
}

func RequireAdmin(k *domain.APIKey) error {
	if !k.CanAdmin {
		return apperror.NewScope("api key lacks admin scope")
	}
	return nil
}
