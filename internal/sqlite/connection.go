package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rpggio/sendgate/internal/domain/session"
	"github.com/rpggio/sendgate/internal/repository"
)

// ConnectionRepository implements session.ConnectionStore for SQLite
type ConnectionRepository struct {
	db *DB
}

// NewConnectionRepository creates a new ConnectionRepository
func NewConnectionRepository(db *DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// Get retrieves the tenant's connection record
func (r *ConnectionRepository) Get(ctx context.Context, tenantID string) (*session.ConnectionRecord, error) {
	query := `
		SELECT tenant_id, phone_number, is_connected, updated_at
		FROM whatsapp_connections
		WHERE tenant_id = ?
	`

	var rec session.ConnectionRecord
	err := r.db.QueryRowContext(ctx, query, tenantID).Scan(
		&rec.TenantID,
		&rec.PhoneNumber,
		&rec.IsConnected,
		&rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	return &rec, nil
}

// Upsert creates or replaces the tenant's connection record
func (r *ConnectionRepository) Upsert(ctx context.Context, rec *session.ConnectionRecord) error {
	query := `
		INSERT INTO whatsapp_connections (tenant_id, phone_number, is_connected, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			phone_number = excluded.phone_number,
			is_connected = excluded.is_connected,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.TenantID,
		rec.PhoneNumber,
		rec.IsConnected,
		rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert connection: %w", err)
	}

	return nil
}

// MarkDisconnected clears the connected flag. A tenant without a record is left alone.
func (r *ConnectionRepository) MarkDisconnected(ctx context.Context, tenantID string, at time.Time) error {
	query := `
		UPDATE whatsapp_connections
		SET is_connected = 0, updated_at = ?
		WHERE tenant_id = ?
	`

	if _, err := r.db.ExecContext(ctx, query, at.UTC(), tenantID); err != nil {
		return fmt.Errorf("failed to mark connection disconnected: %w", err)
	}

	return nil
}

// ListConnected returns every record flagged connected
func (r *ConnectionRepository) ListConnected(ctx context.Context) ([]session.ConnectionRecord, error) {
	query := `
		SELECT tenant_id, phone_number, is_connected, updated_at
		FROM whatsapp_connections
		WHERE is_connected = 1
		ORDER BY tenant_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var recs []session.ConnectionRecord
	for rows.Next() {
		var rec session.ConnectionRecord
		if err := rows.Scan(&rec.TenantID, &rec.PhoneNumber, &rec.IsConnected, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}
