package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/rpggio/sendgate/internal/domain/message"
	"github.com/rpggio/sendgate/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestContactRepository(t *testing.T) {
	db := NewTestDB(t)
	repo := NewContactRepository(db)
	ctx := context.Background()

	c := &message.Contact{
		ID:          "c1",
		TenantID:    "tenant1",
		Name:        "Ana",
		Phone:       "+55 11 99999-0000",
		PhoneDigits: "5511999990000",
		CreatedAt:   time.Now(),
	}
	require.NoError(t, repo.Create(ctx, c))

	found, err := repo.FindByPhone(ctx, "tenant1", "5511999990000")
	require.NoError(t, err)
	require.Equal(t, "c1", found.ID)
	require.Equal(t, "Ana", found.Name)

	// Other tenants do not see it
	_, err = repo.FindByPhone(ctx, "tenant2", "5511999990000")
	require.Equal(t, repository.ErrNotFound, err)

	dup := *c
	dup.ID = "c2"
	require.Equal(t, repository.ErrConflict, repo.Create(ctx, &dup))

	dup.TenantID = "tenant2"
	require.NoError(t, repo.Create(ctx, &dup))
}
