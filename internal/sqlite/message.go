package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rpggio/sendgate/internal/domain/message"
	"github.com/rpggio/sendgate/internal/repository"
)

// MessageRepository implements message.Repository for SQLite
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// AppendBatch inserts all records in one transaction
func (r *MessageRepository) AppendBatch(ctx context.Context, records []message.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, tenant_id, contact_id, recipient_phone, recipient_name, body, status, error, remote_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var contactID sql.NullString
		if rec.ContactID != nil {
			contactID = sql.NullString{String: *rec.ContactID, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID,
			rec.TenantID,
			contactID,
			rec.RecipientPhone,
			rec.RecipientName,
			rec.Body,
			rec.Status,
			rec.Error,
			rec.RemoteID,
			rec.CreatedAt.UTC(),
		); err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("failed to insert message %s: %w", rec.ID, repository.ErrForeignKeyViolation)
			}
			return fmt.Errorf("failed to insert message %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit messages: %w", err)
	}
	return nil
}

// List retrieves the tenant's messages, newest first
func (r *MessageRepository) List(ctx context.Context, tenantID string, opts message.ListOptions) ([]message.Record, error) {
	where, args := messageFilter(tenantID, opts)
	query := `
		SELECT id, tenant_id, contact_id, recipient_phone, recipient_name, body, status, error, remote_id, created_at
		FROM messages
		WHERE ` + where + `
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`
	args = append(args, limitOrAll(opts.Limit), opts.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var records []message.Record
	for rows.Next() {
		var rec message.Record
		var contactID sql.NullString
		if err := rows.Scan(
			&rec.ID,
			&rec.TenantID,
			&contactID,
			&rec.RecipientPhone,
			&rec.RecipientName,
			&rec.Body,
			&rec.Status,
			&rec.Error,
			&rec.RemoteID,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if contactID.Valid {
			id := contactID.String
			rec.ContactID = &id
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Statistics counts the tenant's messages by status
func (r *MessageRepository) Statistics(ctx context.Context, tenantID string) (message.Statistics, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'SENT' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'FAILED' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'PENDING' THEN 1 ELSE 0 END), 0)
		FROM messages
		WHERE tenant_id = ?
	`

	var stats message.Statistics
	if err := r.db.QueryRowContext(ctx, query, tenantID).Scan(&stats.Total, &stats.Sent, &stats.Failed, &stats.Pending); err != nil {
		return message.Statistics{}, fmt.Errorf("failed to count messages: %w", err)
	}
	return stats, nil
}

// Grouped summarizes the tenant's messages per distinct body, most recent first
func (r *MessageRepository) Grouped(ctx context.Context, tenantID string, opts message.ListOptions) ([]message.Group, error) {
	where, args := messageFilter(tenantID, opts)
	query := `
		SELECT
			body,
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'SENT' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'FAILED' THEN 1 ELSE 0 END), 0),
			MAX(created_at)
		FROM messages
		WHERE ` + where + `
		GROUP BY body
		ORDER BY MAX(created_at) DESC
		LIMIT ? OFFSET ?
	`
	args = append(args, limitOrAll(opts.Limit), opts.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group messages: %w", err)
	}
	defer rows.Close()

	var groups []message.Group
	for rows.Next() {
		var g message.Group
		var last sql.NullString
		if err := rows.Scan(&g.Body, &g.Total, &g.Sent, &g.Failed, &last); err != nil {
			return nil, fmt.Errorf("failed to scan message group: %w", err)
		}
		if last.Valid {
			if t, err := parseTimestamp(last.String); err == nil {
				g.LastCreatedAt = t
			}
		}
		groups = append(groups, g)
	}

	return groups, rows.Err()
}

func messageFilter(tenantID string, opts message.ListOptions) (string, []any) {
	clauses := []string{"tenant_id = ?"}
	args := []any{tenantID}
	if opts.Status != nil {
		clauses = append(clauses, "status = ?")
		args = append(args, string(*opts.Status))
	}
	return strings.Join(clauses, " AND "), args
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
