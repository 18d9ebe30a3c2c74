package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logsvc/internal/domain"
	"logsvc/pkg/apperror"
)

type fakeStore struct {
	byHash   map[string]*domain.APIKey
	keys     []*domain.APIKey
	touched  []uuid.UUID
	revoked  []uuid.UUID
	accounts []*domain.ServiceAccount
}

func newFakeStore() *fakeStore {
	return &fakeStore{byHash: map[string]*domain.APIKey{}}
}

func (f *fakeStore) InsertAPIKey(ctx context.Context, k *domain.APIKey) error {
	k.ID = uuid.New()
	f.byHash[k.KeyHash] = k
	f.keys = append(f.keys, k)
	return nil
}

func (f *fakeStore) GetAPIKeyByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	k, ok := f.byHash[hash]
	if !ok || k.Revoked {
		return nil, pgx.ErrNoRows
	}
	return k, nil
}

func (f *fakeStore) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	f.touched = append(f.touched, id)
	return nil
}

func (f *fakeStore) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	return f.keys, nil
}

func (f *fakeStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	for _, k := range f.keys {
		if k.ID == id {
			if k.Revoked {
				return pgx.ErrNoRows
			}
			k.Revoked = true
			f.revoked = append(f.revoked, id)
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (f *fakeStore) InsertServiceAccount(ctx context.Context, sa *domain.ServiceAccount) error {
	sa.ID = uuid.New()
	f.accounts = append(f.accounts, sa)
	return nil
}

func (f *fakeStore) ListServiceAccounts(ctx context.Context) ([]*domain.ServiceAccount, error) {
	return f.accounts, nil
}

func TestIssueKey_GeneratesPrefixedKeyAndStoresOnlyHash(t *testing.T) {
	fs := newFakeStore()
	svc := New(fs, "master")

	issued, err := svc.IssueKey(context.Background(), "ci", "continuous integration", true, true, false)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(issued.Plaintext, "logr_"))
	assert.NotEqual(t, issued.Plaintext, issued.Record.KeyHash)
	assert.Len(t, issued.Record.KeyPrefix, 12)
	assert.True(t, issued.Record.CanWrite)
	assert.False(t, issued.Record.CanAdmin)
}

func TestAuthenticate_AcceptsValidKey(t *testing.T) {
	fs := newFakeStore()
	svc := New(fs, "master")
	issued, err := svc.IssueKey(context.Background(), "ci", "", true, true, false)
	require.NoError(t, err)

	key, err := svc.Authenticate(context.Background(), issued.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, issued.Record.ID, key.ID)
	assert.Len(t, fs.touched, 1)
}

func TestAuthenticate_RejectsUnknownKey(t *testing.T) {
	svc := New(newFakeStore(), "master")
	_, err := svc.Authenticate(context.Background(), "logr_doesnotexist")
	require.Error(t, err)
	assert.Equal(t, apperror.CodeAuth, apperror.Code(err))
}

func TestAuthenticate_RejectsEmptyKey(t *testing.T) {
	svc := New(newFakeStore(), "master")
	_, err := svc.Authenticate(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, apperror.CodeAuth, apperror.Code(err))
}

func TestAuthenticate_RejectsRevokedKey(t *testing.T) {
	fs := newFakeStore()
	svc := New(fs, "master")
	issued, err := svc.IssueKey(context.Background(), "ci", "", true, true, false)
	require.NoError(t, err)
	require.NoError(t, svc.RevokeKey(context.Background(), issued.Record.ID))

	_, err = svc.Authenticate(context.Background(), issued.Plaintext)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeAuth, apperror.Code(err))
}

func TestAuthenticateMaster_AcceptsConfiguredKey(t *testing.T) {
	svc := New(newFakeStore(), "supersecret")
	assert.NoError(t, svc.AuthenticateMaster("supersecret"))
}

func TestAuthenticateMaster_RejectsWrongKey(t *testing.T) {
	svc := New(newFakeStore(), "supersecret")
	err := svc.AuthenticateMaster("wrong")
	require.Error(t, err)
	assert.Equal(t, apperror.CodeAuth, apperror.Code(err))
}

func TestAuthenticateMaster_UnconfiguredReturns503(t *testing.T) {
	svc := New(newFakeStore(), "")
	err := svc.AuthenticateMaster("anything")
	require.Error(t, err)
	assert.Equal(t, apperror.CodeUnconfigured, apperror.Code(err))
}

func TestRevokeKey_NotFoundWhenAlreadyRevoked(t *testing.T) {
	fs := newFakeStore()
	svc := New(fs, "master")
	issued, err := svc.IssueKey(context.Background(), "ci", "", true, true, false)
	require.NoError(t, err)
	require.NoError(t, svc.RevokeKey(context.Background(), issued.Record.ID))

	err = svc.RevokeKey(context.Background(), issued.Record.ID)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeNotFound, apperror.Code(err))
}

func TestCreateAccount_AssignsID(t *testing.T) {
	fs := newFakeStore()
	svc := New(fs, "master")

	sa, err := svc.CreateAccount(context.Background(), "billing", "billing pipeline keys")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, sa.ID)

	accounts, err := svc.ListAccounts(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestScopeGates(t *testing.T) {
	key := &domain.APIKey{CanWrite: true, CanRead: false, CanAdmin: false}
	assert.NoError(t, RequireWrite(key))
	assert.Error(t, RequireRead(key))
	assert.Error(t, RequireAdmin(key))
}
