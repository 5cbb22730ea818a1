package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/relaygate/internal/domain/model"
	"github.com/ericfisherdev/relaygate/internal/domain/port/driven"
)

func TestCredentialRepo_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	svc, _ := seedEndpoint(t, db)
	repo := NewCredentialRepo(db, newTestBox(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, model.Credential{
		ServiceID:    svc.ID,
		APIKey:       "key-123",
		ClientID:     "client",
		ClientSecret: "shh",
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, svc.ID, got.ServiceID)
	assert.Equal(t, "key-123", got.APIKey)
	assert.Equal(t, "client", got.ClientID)
	assert.Equal(t, "shh", got.ClientSecret)
	assert.Empty(t, got.AccessToken)
	assert.Nil(t, got.ExpiresAt)
}

func TestCredentialRepo_SecretsEncryptedAtRest(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, newTestBox(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, model.Credential{APIKey: "plain-api-key"})
	require.NoError(t, err)

	var stored string
	err = db.Reader.QueryRowContext(ctx, `SELECT api_key FROM credentials WHERE id = ?`, created.ID).Scan(&stored)
	require.NoError(t, err)
	assert.NotEmpty(t, stored)
	assert.NotContains(t, stored, "plain-api-key")
}

func TestCredentialRepo_NoSecretStore(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, nil)
	ctx := context.Background()

	_, err := repo.Create(ctx, model.Credential{APIKey: "k"})
	require.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)

	_, err = repo.Get(ctx, "any")
	require.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)
}

func TestCredentialRepo_GetMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, newTestBox(t))

	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestCredentialRepo_UpdateToken(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, newTestBox(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, model.Credential{ClientID: "c", ClientSecret: "s"})
	require.NoError(t, err)

	expiry := time.Now().Add(time.Hour).UTC()
	err = repo.UpdateToken(ctx, created.ID, nil, model.TokenUpdate{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    expiry,
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "access-1", got.AccessToken)
	assert.Equal(t, "refresh-1", got.RefreshToken)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, expiry.Equal(*got.ExpiresAt))

	// A second writer holding the original (nil) expiry loses the race.
	err = repo.UpdateToken(ctx, created.ID, nil, model.TokenUpdate{
		AccessToken: "access-stale",
		ExpiresAt:   expiry.Add(time.Minute),
	})
	require.ErrorIs(t, err, driven.ErrTokenConflict)

	// A writer holding the current expiry wins.
	next := expiry.Add(2 * time.Hour)
	err = repo.UpdateToken(ctx, created.ID, got.ExpiresAt, model.TokenUpdate{
		AccessToken:  "access-2",
		RefreshToken: "refresh-2",
		ExpiresAt:    next,
	})
	require.NoError(t, err)

	got, err = repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "access-2", got.AccessToken)
	assert.True(t, next.Equal(*got.ExpiresAt))
}

func TestCredentialRepo_UpdateTokenMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, newTestBox(t))

	err := repo.UpdateToken(context.Background(), "missing", nil, model.TokenUpdate{
		AccessToken: "a",
		ExpiresAt:   time.Now(),
	})
	require.ErrorIs(t, err, model.ErrNotFound)
}
