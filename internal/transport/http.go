package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rpggio/sendgate/internal/cache"
	"github.com/rpggio/sendgate/internal/domain/dispatch"
	"github.com/rpggio/sendgate/internal/domain/message"
	"github.com/rpggio/sendgate/internal/domain/session"
	"github.com/rpggio/sendgate/internal/domain/subscription"
)

const maxBodyBytes = 1 << 20

// SessionService is the session lifecycle surface used by HTTP handlers.
type SessionService interface {
	Initialize(ctx context.Context, tenantID string, retry bool) error
	GetPairingArtifact(ctx context.Context, tenantID string) (string, error)
	RequestPairingCode(ctx context.Context, tenantID, phone string) (string, error)
	GetStatus(ctx context.Context, tenantID string) (session.Status, error)
	Disconnect(ctx context.Context, tenantID string) error
}

// DispatchService sends message batches.
type DispatchService interface {
	SendBulk(ctx context.Context, tenantID string, msgs []dispatch.OutgoingMessage) (*dispatch.Result, error)
}

// MessageService reads the message log and manages contacts.
type MessageService interface {
	List(ctx context.Context, tenantID string, opts message.ListOptions) ([]message.Record, error)
	Statistics(ctx context.Context, tenantID string) (message.Statistics, error)
	Grouped(ctx context.Context, tenantID string, opts message.ListOptions) ([]message.Group, error)
	AddContact(ctx context.Context, tenantID string, req message.AddContactRequest) (*message.Contact, error)
}

// SubscriptionService reads the tenant's current plan.
type SubscriptionService interface {
	Current(ctx context.Context, tenantID string) (*subscription.Subscription, error)
}

// DeliveryLookup finds the network id of a recently delivered message.
type DeliveryLookup interface {
	LookupSent(ctx context.Context, recordID string) (cache.SentEntry, error)
}

// Services groups the domain services exposed over HTTP. Deliveries may be nil.
type Services struct {
	Sessions      SessionService
	Dispatch      DispatchService
	Messages      MessageService
	Subscriptions SubscriptionService
	Deliveries    DeliveryLookup
}

// Server wires HTTP handlers.
type Server struct {
	services Services
	logger   *slog.Logger
}

// NewServer creates an HTTP server router with middleware.
// authMiddleware must put the tenant in the request context.
func NewServer(services Services, authMiddleware func(http.Handler) http.Handler, logger *slog.Logger) *chi.Mux {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	srv := &Server{services: services, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", srv.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware)
		}

		r.Route("/session", func(r chi.Router) {
			r.Post("/initialize", srv.handleInitialize)
			r.Get("/pairing", srv.handlePairing)
			r.Post("/pairing-code", srv.handlePairingCode)
			r.Get("/status", srv.handleStatus)
			r.Post("/disconnect", srv.handleDisconnect)
		})

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", srv.handleListMessages)
			r.Post("/bulk", srv.handleSendBulk)
			r.Get("/statistics", srv.handleStatistics)
			r.Get("/grouped", srv.handleGrouped)
			if services.Deliveries != nil {
				r.Get("/{id}/delivery", srv.handleDelivery)
			}
		})

		r.Post("/contacts", srv.handleAddContact)
		r.Get("/subscription", srv.handleSubscription)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	err := s.services.Sessions.Initialize(r.Context(), tenantID, false)
	if err != nil && !errors.Is(err, session.ErrInitInProgress) {
		s.writeError(w, r, err)
		return
	}

	status, err := s.services.Sessions.GetStatus(r.Context(), tenantID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, status)
}

func (s *Server) handlePairing(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	artifact, err := s.services.Sessions.GetPairingArtifact(r.Context(), tenantID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"qr": artifact})
}

type pairingCodeRequest struct {
	Phone string `json:"phone"`
}

func (s *Server) handlePairingCode(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var req pairingCodeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	code, err := s.services.Sessions.RequestPairingCode(r.Context(), tenantID, req.Phone)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": code})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	status, err := s.services.Sessions.GetStatus(r.Context(), tenantID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	if err := s.services.Sessions.Disconnect(r.Context(), tenantID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"disconnected": true})
}

type sendBulkRequest struct {
	Messages []dispatch.OutgoingMessage `json:"messages"`
}

func (s *Server) handleSendBulk(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var req sendBulkRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.services.Dispatch.SendBulk(r.Context(), tenantID, req.Messages)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	opts, ok := listOptions(w, r)
	if !ok {
		return
	}

	records, err := s.services.Messages.List(r.Context(), tenantID, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []message.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": records})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	stats, err := s.services.Messages.Statistics(r.Context(), tenantID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGrouped(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	opts, ok := listOptions(w, r)
	if !ok {
		return
	}

	groups, err := s.services.Messages.Grouped(r.Context(), tenantID, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if groups == nil {
		groups = []message.Group{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireTenant(w, r); !ok {
		return
	}

	entry, err := s.services.Deliveries.LookupSent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type addContactRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func (s *Server) handleAddContact(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var req addContactRequest
	if !decodeBody(w, r, &req) {
		return
	}

	contact, err := s.services.Messages.AddContact(r.Context(), tenantID, message.AddContactRequest{
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, contact)
}

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	sub, err := s.services.Subscriptions.Current(r.Context(), tenantID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func requireTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID, ok := TenantFromContext(r.Context())
	if !ok || tenantID == "" {
		http.Error(w, "missing tenant", http.StatusUnauthorized)
		return "", false
	}
	return tenantID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}

func listOptions(w http.ResponseWriter, r *http.Request) (message.ListOptions, bool) {
	q := r.URL.Query()
	var opts message.ListOptions

	if v := q.Get("status"); v != "" {
		status := message.Status(v)
		opts.Status = &status
	}
	for _, p := range []struct {
		key string
		dst *int
	}{
		{"limit", &opts.Limit},
		{"offset", &opts.Offset},
	} {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid " + p.key})
			return opts, false
		}
		*p.dst = n
	}
	return opts, true
}
