package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rpggio/sendgate/internal/domain/message"
	"github.com/rpggio/sendgate/internal/domain/session"
	"github.com/rpggio/sendgate/internal/domain/subscription"
	"github.com/rpggio/sendgate/internal/repository"
	"golang.org/x/time/rate"
)

// Config controls batch pacing.
type Config struct {
	// ReconnectGrace is how long to wait for a client after re-initializing a stale session.
	ReconnectGrace time.Duration
	// RatePerSecond caps sends per tenant. Zero disables pacing.
	RatePerSecond int
}

// DefaultConfig returns the production pacing.
func DefaultConfig() Config {
	return Config{ReconnectGrace: 2 * time.Second, RatePerSecond: 20}
}

// Service sends quota-gated message batches.
type Service struct {
	cfg      Config
	conns    ConnectionReader
	subs     Subscriptions
	sessions Sessions
	messages MessageLog
	contacts message.ContactRepository
	cache    SentCache
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	tenants  map[string]*sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewService creates a dispatcher. cache may be nil.
func NewService(cfg Config, conns ConnectionReader, subs Subscriptions, sessions Sessions, messages MessageLog, contacts message.ContactRepository, cache SentCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		cfg:      cfg,
		conns:    conns,
		subs:     subs,
		sessions: sessions,
		messages: messages,
		contacts: contacts,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
		tenants:  make(map[string]*sync.Mutex),
		limiters: make(map[string]*rate.Limiter),
	}
}

// SendBulk checks every precondition, sends each message in order, records the outcomes
// and charges the subscription for the messages that were delivered.
// A precondition failure aborts the batch before any message is sent.
// Per-message failures are recorded in the result and never abort the batch.
func (s *Service) SendBulk(ctx context.Context, tenantID string, msgs []OutgoingMessage) (*Result, error) {
	if len(msgs) == 0 {
		return nil, ErrEmptyBatch
	}
	// A started batch runs to the end: every accepted message is recorded and charged
	// even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	// Batches for one tenant run one at a time so the quota check stays valid until settlement.
	unlock := s.lockTenant(tenantID)
	defer unlock()

	rec, err := s.conns.Get(ctx, tenantID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("loading connection record: %w", err)
	}
	if rec == nil || !rec.IsConnected {
		return nil, precondition(ErrNotConnected)
	}

	sub, err := s.subs.Current(ctx, tenantID)
	switch {
	case errors.Is(err, subscription.ErrNoSubscription):
		return nil, precondition(ErrNoSubscription)
	case errors.Is(err, subscription.ErrSubscriptionExpired):
		return nil, precondition(ErrSubscriptionExpired)
	case err != nil:
		return nil, fmt.Errorf("loading subscription: %w", err)
	}

	if sub.MessagesRemaining < len(msgs) {
		return nil, insufficientQuota(sub.MessagesRemaining, len(msgs))
	}
	for _, m := range msgs {
		if n := utf8.RuneCountInString(m.Body); n > sub.CharactersLimit {
			return nil, messageTooLong(sub.CharactersLimit, n)
		}
	}

	client, err := s.liveClient(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	result := &Result{Outcomes: make([]Outcome, 0, len(msgs))}
	records := make([]message.Record, 0, len(msgs))
	limiter := s.limiter(tenantID)
	for _, m := range msgs {
		out := s.sendOne(ctx, tenantID, client, limiter, m)
		result.Outcomes = append(result.Outcomes, out)
		if out.Status == message.StatusSent {
			result.Sent++
		} else {
			result.Failed++
		}
		records = append(records, s.record(ctx, tenantID, m, out))
	}

	if err := s.messages.AppendBatch(ctx, records); err != nil {
		s.logger.Error("recording message batch failed", "tenant_id", tenantID, "count", len(records), "error", err)
	}
	s.cacheSent(ctx, tenantID, records)

	if result.Sent > 0 {
		if err := s.subs.Settle(ctx, sub.ID, result.Sent); err != nil {
			s.logger.Error("settling quota failed", "tenant_id", tenantID, "subscription_id", sub.ID, "sent", result.Sent, "error", err)
		}
	}

	if result.Failed > 0 {
		s.logger.Warn("bulk send finished with failures", "tenant_id", tenantID, "sent", result.Sent, "failed", result.Failed)
	} else {
		s.logger.Info("bulk send finished", "tenant_id", tenantID, "sent", result.Sent)
	}
	return result, nil
}

// liveClient returns the tenant's client, re-initializing once when the durable record
// claims a connection the process no longer holds.
func (s *Service) liveClient(ctx context.Context, tenantID string) (session.Client, error) {
	if client, ok := s.sessions.LiveClient(tenantID); ok {
		return client, nil
	}

	if err := s.sessions.Initialize(ctx, tenantID, true); err != nil && !errors.Is(err, session.ErrInitInProgress) {
		s.logger.Warn("re-initializing session failed", "tenant_id", tenantID, "error", err)
	}
	if s.cfg.ReconnectGrace > 0 {
		timer := time.NewTimer(s.cfg.ReconnectGrace)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if client, ok := s.sessions.LiveClient(tenantID); ok {
		return client, nil
	}
	return nil, precondition(ErrConnectionInactive)
}

func (s *Service) sendOne(ctx context.Context, tenantID string, client session.Client, limiter *rate.Limiter, m OutgoingMessage) Outcome {
	out := Outcome{Destination: m.Destination, DisplayName: m.DisplayName}

	digits := session.NormalizePhone(m.Destination)
	if digits == "" {
		out.Status = message.StatusFailed
		out.Error = session.ErrInvalidPhone.Error()
		return out
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			out.Status = message.StatusFailed
			out.Error = err.Error()
			return out
		}
	}

	id, err := client.Send(ctx, digits, m.Body)
	if err != nil {
		s.logger.Debug("message send failed", "tenant_id", tenantID, "destination", digits, "error", err)
		out.Status = message.StatusFailed
		out.Error = err.Error()
		return out
	}
	out.Status = message.StatusSent
	out.MessageID = id
	return out
}

func (s *Service) record(ctx context.Context, tenantID string, m OutgoingMessage, out Outcome) message.Record {
	rec := message.Record{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		RecipientPhone: m.Destination,
		RecipientName:  m.DisplayName,
		Body:           m.Body,
		Status:         out.Status,
		Error:          out.Error,
		RemoteID:       out.MessageID,
		CreatedAt:      s.now(),
	}

	digits := session.NormalizePhone(m.Destination)
	if digits == "" || s.contacts == nil {
		return rec
	}
	contact, err := s.contacts.FindByPhone(ctx, tenantID, digits)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("contact lookup failed", "tenant_id", tenantID, "error", err)
		}
		return rec
	}
	rec.ContactID = &contact.ID
	if rec.RecipientName == "" {
		rec.RecipientName = contact.Name
	}
	return rec
}

func (s *Service) cacheSent(ctx context.Context, tenantID string, records []message.Record) {
	if s.cache == nil {
		return
	}
	for _, rec := range records {
		if rec.Status != message.StatusSent {
			continue
		}
		if err := s.cache.StoreSent(ctx, rec.ID, rec.RemoteID, rec.CreatedAt); err != nil {
			s.logger.Warn("caching sent message failed", "tenant_id", tenantID, "record_id", rec.ID, "error", err)
		}
	}
}

func (s *Service) lockTenant(tenantID string) func() {
	s.mu.Lock()
	m, ok := s.tenants[tenantID]
	if !ok {
		m = &sync.Mutex{}
		s.tenants[tenantID] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (s *Service) limiter(tenantID string) *rate.Limiter {
	if s.cfg.RatePerSecond <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[tenantID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(s.cfg.RatePerSecond), s.cfg.RatePerSecond)
		s.limiters[tenantID] = lim
	}
	return lim
}
