package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/rpggio/sendgate/internal/domain/session"
	"github.com/rpggio/sendgate/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestCredentialRepository(t *testing.T) {
	db := NewTestDB(t)
	repo := NewCredentialRepository(db)
	ctx := context.Background()

	_, err := repo.Load(ctx, "tenant1")
	require.Equal(t, repository.ErrNotFound, err)

	now := time.Now().UTC()
	require.NoError(t, repo.Save(ctx, session.Credentials{TenantID: "tenant1", DeviceID: "5511999990000.0:12@s.whatsapp.net", UpdatedAt: now}))
	require.NoError(t, repo.Save(ctx, session.Credentials{TenantID: "tenant1", DeviceID: "5511999990000.0:13@s.whatsapp.net", UpdatedAt: now}))

	creds, err := repo.Load(ctx, "tenant1")
	require.NoError(t, err)
	require.Equal(t, "5511999990000.0:13@s.whatsapp.net", creds.DeviceID)
	require.False(t, creds.Empty())

	require.NoError(t, repo.Delete(ctx, "tenant1"))
	_, err = repo.Load(ctx, "tenant1")
	require.Equal(t, repository.ErrNotFound, err)

	// Deleting again is harmless
	require.NoError(t, repo.Delete(ctx, "tenant1"))
}

func TestCredentialRepository_SaveValidates(t *testing.T) {
	db := NewTestDB(t)
	repo := NewCredentialRepository(db)

	err := repo.Save(context.Background(), session.Credentials{TenantID: "tenant1"})
	require.ErrorIs(t, err, repository.ErrInvalidInput)
}

func TestUserRepository_UpdatePhoneNumber(t *testing.T) {
	db := NewTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.UpdatePhoneNumber(ctx, "tenant1", "5511999990000"))
	require.NoError(t, repo.UpdatePhoneNumber(ctx, "tenant1", "5511888880000"))

	var phone string
	err := db.QueryRowContext(ctx, `SELECT phone_number FROM users WHERE id = ?`, "tenant1").Scan(&phone)
	require.NoError(t, err)
	require.Equal(t, "5511888880000", phone)
}
