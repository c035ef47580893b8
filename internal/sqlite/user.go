package sqlite

import (
	"context"
	"fmt"
	"time"
)

// UserRepository implements session.ProfileStore for SQLite
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// UpdatePhoneNumber records the paired phone number on the tenant's profile,
// creating the profile if it does not exist yet
func (r *UserRepository) UpdatePhoneNumber(ctx context.Context, tenantID, phone string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, phone_number, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phone_number = excluded.phone_number,
			updated_at = excluded.updated_at
	`, tenantID, phone, now, now)
	if err != nil {
		return fmt.Errorf("failed to update phone number: %w", err)
	}
	return nil
}
