package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rpggio/sendgate/internal/domain/session"
	"github.com/rpggio/sendgate/internal/repository"
)

// CredentialRepository implements session.CredentialStore for SQLite
type CredentialRepository struct {
	db *DB
}

// NewCredentialRepository creates a new CredentialRepository
func NewCredentialRepository(db *DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Load retrieves the tenant's credentials
func (r *CredentialRepository) Load(ctx context.Context, tenantID string) (session.Credentials, error) {
	var creds session.Credentials
	err := r.db.QueryRowContext(ctx,
		`SELECT tenant_id, device_jid, updated_at FROM session_credentials WHERE tenant_id = ?`,
		tenantID,
	).Scan(&creds.TenantID, &creds.DeviceID, &creds.UpdatedAt)
	if err == sql.ErrNoRows {
		return session.Credentials{}, repository.ErrNotFound
	}
	if err != nil {
		return session.Credentials{}, fmt.Errorf("failed to load credentials: %w", err)
	}
	return creds, nil
}

// Save stores the tenant's credentials, replacing earlier ones
func (r *CredentialRepository) Save(ctx context.Context, creds session.Credentials) error {
	if creds.TenantID == "" || creds.DeviceID == "" {
		return repository.ErrInvalidInput
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session_credentials (tenant_id, device_jid, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			device_jid = excluded.device_jid,
			updated_at = excluded.updated_at
	`, creds.TenantID, creds.DeviceID, creds.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// Delete removes the tenant's credentials
func (r *CredentialRepository) Delete(ctx context.Context, tenantID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM session_credentials WHERE tenant_id = ?`, tenantID); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}
