package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/sendgate/internal/domain/session"
	"github.com/rpggio/sendgate/internal/repository"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Service handles message log reads and the address book.
type Service struct {
	repo     Repository
	contacts ContactStore
	logger   *slog.Logger
}

// NewService creates a new message service.
func NewService(repo Repository, contacts ContactStore, logger *slog.Logger) *Service {
	return &Service{repo: repo, contacts: contacts, logger: logger}
}

// AddContactRequest defines contact creation inputs.
type AddContactRequest struct {
	Name  string
	Phone string
}

// AddContact stores a contact keyed by the digits of its phone number.
func (s *Service) AddContact(ctx context.Context, tenantID string, req AddContactRequest) (*Contact, error) {
	name := strings.TrimSpace(req.Name)
	digits := session.NormalizePhone(req.Phone)
	if name == "" || digits == "" {
		return nil, ErrInvalidInput
	}

	c := &Contact{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Name:        name,
		Phone:       strings.TrimSpace(req.Phone),
		PhoneDigits: digits,
		CreatedAt:   time.Now(),
	}
	if err := s.contacts.Create(ctx, c); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrContactExists
		}
		return nil, fmt.Errorf("creating contact: %w", err)
	}
	return c, nil
}

// List returns the tenant's messages, newest first.
func (s *Service) List(ctx context.Context, tenantID string, opts ListOptions) ([]Record, error) {
	opts, err := normalize(opts)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.List(ctx, tenantID, opts)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return records, nil
}

// Statistics counts the tenant's messages by status.
func (s *Service) Statistics(ctx context.Context, tenantID string) (Statistics, error) {
	stats, err := s.repo.Statistics(ctx, tenantID)
	if err != nil {
		return Statistics{}, fmt.Errorf("loading message statistics: %w", err)
	}
	return stats, nil
}

// Grouped returns one summary per distinct message body.
func (s *Service) Grouped(ctx context.Context, tenantID string, opts ListOptions) ([]Group, error) {
	opts, err := normalize(opts)
	if err != nil {
		return nil, err
	}
	groups, err := s.repo.Grouped(ctx, tenantID, opts)
	if err != nil {
		return nil, fmt.Errorf("grouping messages: %w", err)
	}
	return groups, nil
}

func normalize(opts ListOptions) (ListOptions, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return opts, ErrInvalidInput
	}
	if opts.Status != nil {
		switch *opts.Status {
		case StatusPending, StatusSent, StatusFailed:
		default:
			return opts, ErrInvalidInput
		}
	}
	if opts.Limit == 0 {
		opts.Limit = defaultListLimit
	}
	if opts.Limit > maxListLimit {
		opts.Limit = maxListLimit
	}
	return opts, nil
}
