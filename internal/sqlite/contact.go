package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rpggio/sendgate/internal/domain/message"
	"github.com/rpggio/sendgate/internal/repository"
)

// ContactRepository implements message.ContactRepository for SQLite
type ContactRepository struct {
	db *DB
}

// NewContactRepository creates a new ContactRepository
func NewContactRepository(db *DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// Create inserts a contact
func (r *ContactRepository) Create(ctx context.Context, c *message.Contact) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contacts (id, tenant_id, name, phone, phone_digits, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.TenantID, c.Name, c.Phone, c.PhoneDigits, c.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create contact: %w", err)
	}
	return nil
}

// FindByPhone retrieves the tenant's contact with the given digits-only phone
func (r *ContactRepository) FindByPhone(ctx context.Context, tenantID, phoneDigits string) (*message.Contact, error) {
	var c message.Contact
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, phone, phone_digits, created_at
		FROM contacts
		WHERE tenant_id = ? AND phone_digits = ?
	`, tenantID, phoneDigits).Scan(&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.PhoneDigits, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find contact: %w", err)
	}
	return &c, nil
}
