package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rpggio/sendgate/internal/repository"
)

const inboxSize = 64

// Config holds registry timing knobs.
type Config struct {
	Backoff             BackoffConfig
	StartupJitterMin    time.Duration
	StartupJitterMax    time.Duration
	PairingPollAttempts int
	PairingPollInterval time.Duration
	ArtifactWait        time.Duration
	// EventTimeout bounds durable writes made while handling lifecycle events.
	EventTimeout time.Duration
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		Backoff:             DefaultBackoff(),
		StartupJitterMin:    time.Second,
		StartupJitterMax:    6 * time.Second,
		PairingPollAttempts: 10,
		PairingPollInterval: time.Second,
		ArtifactWait:        3 * time.Second,
		EventTimeout:        10 * time.Second,
	}
}

// Registry owns every tenant's in-memory session and its protocol client.
type Registry struct {
	cfg        Config
	creds      CredentialStore
	conns      ConnectionStore
	profiles   ProfileStore
	factory    ClientFactory
	encoder    PairingEncoder
	supervisor *Supervisor
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	nextGen  uint64
	closed   bool

	// durable serializes each tenant's credential and connection record writes.
	// Always taken before mu, never while holding it.
	durableMu sync.Mutex
	durable   map[string]*sync.Mutex
}

// NewRegistry creates a session registry. A nil supervisor gets one built from cfg.Backoff.
func NewRegistry(cfg Config, creds CredentialStore, conns ConnectionStore, profiles ProfileStore, factory ClientFactory, encoder PairingEncoder, supervisor *Supervisor, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if supervisor == nil {
		supervisor = NewSupervisor(cfg.Backoff, nil, logger)
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = 10 * time.Second
	}
	return &Registry{
		cfg:        cfg,
		creds:      creds,
		conns:      conns,
		profiles:   profiles,
		factory:    factory,
		encoder:    encoder,
		supervisor: supervisor,
		logger:     logger,
		now:        time.Now,
		sessions:   make(map[string]*Session),
		durable:    make(map[string]*sync.Mutex),
	}
}

// Initialize brings up a protocol client for the tenant, reusing stored credentials when present.
// It is a no-op when the tenant is already connected and fails fast with ErrInitInProgress
// while another call is still creating the client.
func (r *Registry) Initialize(ctx context.Context, tenantID string, retry bool) error {
	if strings.TrimSpace(tenantID) == "" {
		return ErrInvalidInput
	}
	// The client outlives the request that asked for it.
	ctx = context.WithoutCancel(ctx)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClientUnavailable
	}
	sess := r.sessions[tenantID]
	if sess != nil && sess.Connected && sess.client != nil {
		r.mu.Unlock()
		return nil
	}
	if sess != nil && sess.Initializing {
		r.mu.Unlock()
		return ErrInitInProgress
	}
	if sess == nil {
		sess = r.newSessionLocked(tenantID)
	}
	r.nextGen++
	gen := r.nextGen
	stale := sess.client
	sess.client = nil
	sess.generation = gen
	sess.Initializing = true
	sess.Connected = false
	sess.PairingArtifact = ""
	sess.State = StateInitializing
	if !retry {
		sess.ReconnectAttempts = 0
	}
	r.mu.Unlock()

	if !retry {
		r.supervisor.Cancel(tenantID)
	}
	if stale != nil {
		r.closeClient(tenantID, stale)
	}

	creds, err := r.creds.Load(ctx, tenantID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return r.initFailed(tenantID, gen, fmt.Errorf("loading credentials: %w", err))
	}
	creds.TenantID = tenantID

	if !retry {
		if err := sleepCtx(ctx, r.startupJitter()); err != nil {
			return r.initFailed(tenantID, gen, err)
		}
	}

	client, err := r.factory.Create(ctx, tenantID, creds, r.handlerFor(sess, gen))
	if err != nil {
		return r.initFailed(tenantID, gen, fmt.Errorf("creating client: %w", err))
	}

	r.mu.Lock()
	if !r.currentLocked(sess, gen) {
		r.mu.Unlock()
		r.logger.Debug("dropping client for superseded session", "tenant_id", tenantID)
		r.closeClient(tenantID, client)
		return nil
	}
	sess.client = client
	sess.Initializing = false
	r.mu.Unlock()

	r.logger.Info("session client started", "tenant_id", tenantID, "retry", retry, "resumed", !creds.Empty())
	return nil
}

// GetPairingArtifact returns the current pairing image, starting the session if needed.
func (r *Registry) GetPairingArtifact(ctx context.Context, tenantID string) (string, error) {
	r.mu.Lock()
	_, exists := r.sessions[tenantID]
	r.mu.Unlock()

	if !exists {
		if err := r.Initialize(ctx, tenantID, false); err != nil && !errors.Is(err, ErrInitInProgress) {
			return "", err
		}
		if err := sleepCtx(ctx, r.cfg.ArtifactWait); err != nil {
			return "", err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	sess := r.sessions[tenantID]
	if sess == nil {
		return "", ErrArtifactNotReady
	}
	if sess.Connected {
		return "", ErrAlreadyConnected
	}
	if sess.PairingArtifact == "" {
		return "", ErrArtifactNotReady
	}
	return sess.PairingArtifact, nil
}

// RequestPairingCode asks the network for a short code that pairs the given phone number.
func (r *Registry) RequestPairingCode(ctx context.Context, tenantID, phone string) (string, error) {
	digits := NormalizePhone(phone)
	if digits == "" {
		return "", ErrInvalidPhone
	}

	r.mu.Lock()
	sess := r.sessions[tenantID]
	connected := sess != nil && sess.Connected
	r.mu.Unlock()
	if connected {
		return "", ErrAlreadyConnected
	}

	if sess == nil {
		if err := r.Initialize(ctx, tenantID, false); err != nil && !errors.Is(err, ErrInitInProgress) {
			return "", err
		}
	}

	var client Client
	for i := 0; i < r.cfg.PairingPollAttempts; i++ {
		client = r.pairableClient(tenantID)
		if client != nil {
			break
		}
		if err := sleepCtx(ctx, r.cfg.PairingPollInterval); err != nil {
			return "", err
		}
	}
	if client == nil {
		client = r.pairableClient(tenantID)
	}
	if client == nil {
		r.mu.Lock()
		s := r.sessions[tenantID]
		hasClient := s != nil && s.client != nil
		r.mu.Unlock()
		if !hasClient {
			return "", ErrClientUnavailable
		}
		return "", ErrPairingNotReady
	}

	code, err := client.RequestPairingCode(ctx, digits)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPairingFailed, err)
	}
	return r.encoder.FormatCode(code), nil
}

// GetStatus reports whether the tenant is connected. A connected durable record wins;
// otherwise the live session is consulted.
func (r *Registry) GetStatus(ctx context.Context, tenantID string) (Status, error) {
	rec, err := r.conns.Get(ctx, tenantID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return Status{}, fmt.Errorf("loading connection record: %w", err)
	}

	r.mu.Lock()
	state := StateUninitialized
	var live Client
	if sess := r.sessions[tenantID]; sess != nil {
		state = sess.State
		if sess.Connected {
			live = sess.client
		}
	}
	r.mu.Unlock()

	if rec != nil && rec.IsConnected {
		return Status{Connected: true, PhoneNumber: rec.PhoneNumber, State: state}, nil
	}
	if live != nil {
		if phone := identityPhone(live.Identity()); phone != "" {
			return Status{Connected: true, PhoneNumber: phone, State: state}, nil
		}
	}
	return Status{Connected: false, State: state}, nil
}

// Disconnect logs the tenant out, forgets its credentials and marks the durable record disconnected.
// Calling it for a tenant with no session is not an error.
func (r *Registry) Disconnect(ctx context.Context, tenantID string) error {
	unlock := r.lockDurable(tenantID)
	defer unlock()

	r.mu.Lock()
	var client Client
	if sess := r.sessions[tenantID]; sess != nil {
		client = sess.client
		r.purgeLocked(sess)
	}
	r.mu.Unlock()

	r.supervisor.Cancel(tenantID)

	if client != nil {
		if err := client.Logout(ctx); err != nil {
			r.logger.Warn("logout failed", "tenant_id", tenantID, "error", err)
		}
		r.closeClient(tenantID, client)
	}

	if err := r.creds.Delete(ctx, tenantID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		r.logger.Warn("deleting credentials failed", "tenant_id", tenantID, "error", err)
	}
	if err := r.conns.MarkDisconnected(ctx, tenantID, r.now()); err != nil {
		return fmt.Errorf("marking connection disconnected: %w", err)
	}

	r.logger.Info("session disconnected", "tenant_id", tenantID)
	return nil
}

// Send delivers one text message through the tenant's live client.
func (r *Registry) Send(ctx context.Context, tenantID, destination, body string) (string, error) {
	client, ok := r.LiveClient(tenantID)
	if !ok {
		return "", ErrNotConnected
	}
	digits := NormalizePhone(destination)
	if digits == "" {
		return "", ErrInvalidPhone
	}
	return client.Send(ctx, digits, body)
}

// LiveClient returns the tenant's client when it is connected.
func (r *Registry) LiveClient(tenantID string) (Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess := r.sessions[tenantID]
	if sess == nil || !sess.Connected || sess.client == nil {
		return nil, false
	}
	return sess.client, true
}

// State returns the tenant's lifecycle state.
func (r *Registry) State(tenantID string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess := r.sessions[tenantID]; sess != nil {
		return sess.State
	}
	return StateUninitialized
}

// Snapshot returns a copy of the tenant's session fields.
func (r *Registry) Snapshot(tenantID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess := r.sessions[tenantID]
	if sess == nil {
		return Session{}, false
	}
	return Session{
		TenantID:          sess.TenantID,
		State:             sess.State,
		Connected:         sess.Connected,
		Initializing:      sess.Initializing,
		PairingArtifact:   sess.PairingArtifact,
		ReconnectAttempts: sess.ReconnectAttempts,
	}, true
}

// RestoreConnected starts a client for every tenant whose durable record says connected.
func (r *Registry) RestoreConnected(ctx context.Context) error {
	recs, err := r.conns.ListConnected(ctx)
	if err != nil {
		return fmt.Errorf("listing connected tenants: %w", err)
	}
	for _, rec := range recs {
		go func(tenantID string) {
			if err := r.Initialize(context.Background(), tenantID, false); err != nil && !errors.Is(err, ErrInitInProgress) {
				r.logger.Warn("restoring session failed", "tenant_id", tenantID, "error", err)
			}
		}(rec.TenantID)
	}
	r.logger.Info("restoring sessions", "count", len(recs))
	return nil
}

// Shutdown closes every client without logging out, leaving credentials for the next start.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	r.closed = true
	clients := make(map[string]Client)
	for tenantID, sess := range r.sessions {
		if sess.client != nil {
			clients[tenantID] = sess.client
		}
		r.purgeLocked(sess)
	}
	r.mu.Unlock()

	r.supervisor.Stop()
	for tenantID, client := range clients {
		if ctx.Err() != nil {
			return
		}
		r.closeClient(tenantID, client)
	}
}

func (r *Registry) newSessionLocked(tenantID string) *Session {
	sess := &Session{
		TenantID: tenantID,
		State:    StateUninitialized,
		events:   make(chan envelope, inboxSize),
		done:     make(chan struct{}),
	}
	r.sessions[tenantID] = sess
	go r.drain(sess)
	return sess
}

func (r *Registry) purgeLocked(sess *Session) {
	if r.sessions[sess.TenantID] != sess {
		return
	}
	delete(r.sessions, sess.TenantID)
	close(sess.done)
	sess.client = nil
	sess.Connected = false
	sess.Initializing = false
	sess.State = StateClosed
}

func (r *Registry) currentLocked(sess *Session, gen uint64) bool {
	return r.sessions[sess.TenantID] == sess && sess.generation == gen
}

func (r *Registry) pairableClient(tenantID string) Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess := r.sessions[tenantID]
	if sess == nil || sess.client == nil || sess.PairingArtifact == "" {
		return nil
	}
	return sess.client
}

// handlerFor returns the single entry point through which a client's events reach the session.
func (r *Registry) handlerFor(sess *Session, gen uint64) EventHandler {
	return func(ev Event) {
		select {
		case sess.events <- envelope{generation: gen, event: ev}:
		case <-sess.done:
		}
	}
}

func (r *Registry) drain(sess *Session) {
	for {
		select {
		case <-sess.done:
			return
		case env := <-sess.events:
			r.handleEvent(sess, env)
		}
	}
}

func (r *Registry) handleEvent(sess *Session, env envelope) {
	r.mu.Lock()
	current := r.currentLocked(sess, env.generation)
	r.mu.Unlock()
	if !current {
		r.logger.Debug("dropping stale event", "tenant_id", sess.TenantID, "kind", env.event.Kind)
		return
	}

	switch env.event.Kind {
	case EventPairingChallenge:
		r.onPairingChallenge(sess, env.generation, env.event)
	case EventConnectionOpen:
		r.onOpen(sess, env.generation, env.event)
	case EventConnectionClosed:
		r.onClosed(sess, env.generation, env.event)
	default:
		r.logger.Debug("ignoring event", "tenant_id", sess.TenantID, "kind", env.event.Kind)
	}
}

func (r *Registry) onPairingChallenge(sess *Session, gen uint64, ev Event) {
	artifact, err := r.encoder.Image(ev.Challenge)
	if err != nil {
		r.logger.Warn("encoding pairing challenge failed", "tenant_id", sess.TenantID, "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.currentLocked(sess, gen) {
		return
	}
	sess.PairingArtifact = artifact
	sess.ReconnectAttempts = 0
	sess.State = StateAwaitingPairing
}

func (r *Registry) onOpen(sess *Session, gen uint64, ev Event) {
	r.mu.Lock()
	if !r.currentLocked(sess, gen) {
		r.mu.Unlock()
		return
	}
	sess.Connected = true
	sess.Initializing = false
	sess.PairingArtifact = ""
	sess.ReconnectAttempts = 0
	sess.State = StateConnected
	client := sess.client
	tenantID := sess.TenantID
	r.mu.Unlock()

	r.supervisor.Cancel(tenantID)

	phone := identityPhone(ev.Identity)
	if phone == "" && client != nil {
		phone = identityPhone(client.Identity())
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.EventTimeout)
	defer cancel()
	now := r.now()

	unlock := r.lockDurable(tenantID)
	defer unlock()
	r.mu.Lock()
	current := r.currentLocked(sess, gen)
	r.mu.Unlock()
	if !current {
		r.logger.Debug("session superseded before connection was recorded", "tenant_id", tenantID)
		return
	}

	if ev.DeviceID != "" {
		if err := r.creds.Save(ctx, Credentials{TenantID: tenantID, DeviceID: ev.DeviceID, UpdatedAt: now}); err != nil {
			r.logger.Error("saving credentials failed", "tenant_id", tenantID, "error", err)
		}
	}
	if err := r.conns.Upsert(ctx, &ConnectionRecord{
		TenantID:    tenantID,
		PhoneNumber: phone,
		IsConnected: true,
		UpdatedAt:   now,
	}); err != nil {
		r.logger.Error("saving connection record failed", "tenant_id", tenantID, "error", err)
	}
	if phone != "" {
		if err := r.profiles.UpdatePhoneNumber(ctx, tenantID, phone); err != nil {
			r.logger.Warn("updating profile phone failed", "tenant_id", tenantID, "error", err)
		}
	}

	r.logger.Info("session connected", "tenant_id", tenantID, "phone", phone)
}

func (r *Registry) onClosed(sess *Session, gen uint64, ev Event) {
	if ev.LoggedOut {
		unlock := r.lockDurable(sess.TenantID)
		defer unlock()
	}

	r.mu.Lock()
	if !r.currentLocked(sess, gen) {
		r.mu.Unlock()
		return
	}
	tenantID := sess.TenantID

	if ev.LoggedOut {
		client := sess.client
		r.purgeLocked(sess)
		r.mu.Unlock()

		r.supervisor.Cancel(tenantID)
		if client != nil {
			r.closeClient(tenantID, client)
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.EventTimeout)
		defer cancel()
		if err := r.creds.Delete(ctx, tenantID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			r.logger.Error("deleting credentials failed", "tenant_id", tenantID, "error", err)
		}
		if err := r.conns.MarkDisconnected(ctx, tenantID, r.now()); err != nil {
			r.logger.Error("marking connection disconnected failed", "tenant_id", tenantID, "error", err)
		}
		r.logger.Info("session logged out", "tenant_id", tenantID)
		return
	}

	sess.Connected = false
	sess.Initializing = false
	sess.State = StateClosed
	gaveUp := r.scheduleReconnectLocked(sess)
	r.mu.Unlock()

	r.logger.Info("session closed", "tenant_id", tenantID, "error", ev.Err)
	if gaveUp {
		r.markDisconnected(tenantID)
	}
}

func (r *Registry) initFailed(tenantID string, gen uint64, cause error) error {
	r.logger.Error("session initialization failed", "tenant_id", tenantID, "error", cause)

	r.mu.Lock()
	sess := r.sessions[tenantID]
	if sess == nil || !r.currentLocked(sess, gen) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrClientUnavailable, cause)
	}
	sess.Initializing = false
	sess.State = StateClosed
	gaveUp := r.scheduleReconnectLocked(sess)
	r.mu.Unlock()

	if gaveUp {
		r.markDisconnected(tenantID)
	}
	return fmt.Errorf("%w: %w", ErrClientUnavailable, cause)
}

// scheduleReconnectLocked counts a retryable failure and reports whether the supervisor gave up.
func (r *Registry) scheduleReconnectLocked(sess *Session) bool {
	sess.ReconnectAttempts++
	gen := sess.generation
	if _, ok := r.supervisor.Schedule(sess.TenantID, sess.ReconnectAttempts, func() { r.reconnect(sess, gen) }); !ok {
		return true
	}
	return false
}

// reconnect retries the generation that failed. A newer Initialize owns the session and is left alone.
func (r *Registry) reconnect(sess *Session, gen uint64) {
	tenantID := sess.TenantID
	r.mu.Lock()
	skip := r.closed || !r.currentLocked(sess, gen) || sess.Connected || sess.Initializing
	r.mu.Unlock()
	if skip {
		r.logger.Debug("skipping reconnect", "tenant_id", tenantID)
		return
	}
	if err := r.Initialize(context.Background(), tenantID, true); err != nil && !errors.Is(err, ErrInitInProgress) {
		r.logger.Warn("reconnect attempt failed", "tenant_id", tenantID, "error", err)
	}
}

func (r *Registry) lockDurable(tenantID string) func() {
	r.durableMu.Lock()
	m, ok := r.durable[tenantID]
	if !ok {
		m = &sync.Mutex{}
		r.durable[tenantID] = m
	}
	r.durableMu.Unlock()

	m.Lock()
	return m.Unlock
}

func (r *Registry) markDisconnected(tenantID string) {
	unlock := r.lockDurable(tenantID)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.EventTimeout)
	defer cancel()
	if err := r.conns.MarkDisconnected(ctx, tenantID, r.now()); err != nil {
		r.logger.Error("marking connection disconnected failed", "tenant_id", tenantID, "error", err)
	}
}

func (r *Registry) closeClient(tenantID string, client Client) {
	if err := client.Close(); err != nil {
		r.logger.Debug("closing client failed", "tenant_id", tenantID, "error", err)
	}
}

func (r *Registry) startupJitter() time.Duration {
	lo, hi := r.cfg.StartupJitterMin, r.cfg.StartupJitterMax
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
