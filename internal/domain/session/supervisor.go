package session

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// BackoffConfig controls reconnect scheduling.
type BackoffConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultBackoff mirrors the production reconnect policy.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		MaxAttempts:  5,
		InitialDelay: 5 * time.Second,
		MaxDelay:     60 * time.Second,
	}
}

// NextBackoffDelay returns the wait before reconnect attempt n (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(cfg.InitialDelay) * math.Pow(2, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}

// Timer is the part of *time.Timer the supervisor needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. Tests swap it for a manual clock.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Supervisor schedules reconnect attempts after retryable closes.
// It keeps at most one pending attempt per tenant.
type Supervisor struct {
	cfg       BackoffConfig
	afterFunc AfterFunc
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]Timer
}

// NewSupervisor creates a reconnect supervisor. A nil afterFunc uses time.AfterFunc.
func NewSupervisor(cfg BackoffConfig, afterFunc AfterFunc, logger *slog.Logger) *Supervisor {
	if afterFunc == nil {
		afterFunc = realAfterFunc
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Supervisor{
		cfg:       cfg,
		afterFunc: afterFunc,
		logger:    logger,
		pending:   make(map[string]Timer),
	}
}

// Schedule arranges for retry to run after the delay for attempt.
// It returns false without scheduling once attempt reaches the configured maximum.
func (s *Supervisor) Schedule(tenantID string, attempt int, retry func()) (time.Duration, bool) {
	if s.cfg.MaxAttempts > 0 && attempt >= s.cfg.MaxAttempts {
		s.logger.Warn("reconnect attempts exhausted", "tenant_id", tenantID, "attempts", attempt)
		s.Cancel(tenantID)
		return 0, false
	}

	delay := NextBackoffDelay(s.cfg, attempt)

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.pending[tenantID]; ok {
		prev.Stop()
	}
	var timer Timer
	timer = s.afterFunc(delay, func() {
		s.mu.Lock()
		if s.pending[tenantID] == timer {
			delete(s.pending, tenantID)
		}
		s.mu.Unlock()
		retry()
	})
	s.pending[tenantID] = timer

	s.logger.Info("reconnect scheduled", "tenant_id", tenantID, "attempt", attempt, "delay", delay)
	return delay, true
}

// Cancel drops any pending attempt for the tenant.
func (s *Supervisor) Cancel(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.pending[tenantID]; ok {
		timer.Stop()
		delete(s.pending, tenantID)
	}
}

// Pending reports whether an attempt is scheduled for the tenant.
func (s *Supervisor) Pending(tenantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[tenantID]
	return ok
}

// Stop cancels every pending attempt.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tenantID, timer := range s.pending {
		timer.Stop()
		delete(s.pending, tenantID)
	}
}
