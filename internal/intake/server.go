// Package intake is the receiving end of the kiosk's HTTP transport: a small
// JSON server that stores every submitted feedback record.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kingrea/feedback-desk/internal/form"
)

// ProtocolVersion identifies the intake contract exposed via /health.
const ProtocolVersion = "1.0.0"

const defaultRecentLimit = 20

// ServerStatus is reported by /health.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
	StatusStopped  ServerStatus = "stopped"
)

// Server accepts kiosk submissions over HTTP and hands them to a Store.
type Server struct {
	settings Settings
	store    Store
	logger   *zap.Logger
	clock    func() time.Time
	newID    func() string

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    ServerStatus
	startTime time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithStore overrides the default in-memory store.
func WithStore(store Store) Option {
	return func(s *Server) {
		if store != nil {
			s.store = store
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer prepares an intake server using the provided settings.
func NewServer(settings Settings, opts ...Option) *Server {
	settings.normalize()
	s := &Server{
		settings: settings,
		store:    NewMemoryStore(),
		logger:   zap.NewNop(),
		clock:    func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		status:   StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler routes /health, /submissions and /submissions/{id}. Start serves
// it on the configured address; tests mount it on httptest directly.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/submissions", s.handleSubmissions)
	mux.HandleFunc("/submissions/", s.handleSubmission)
	return mux
}

// Start listens on Settings.Address and serves in the background. Requests
// inherit ctx, so cancelling it aborts in-flight store writes.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return errors.New("intake: already listening on " + s.listener.Addr().String())
	}
	addr := s.settings.Address()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("intake: listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.listener, s.server = ln, srv
	s.startTime = s.clock()
	s.status = StatusReady
	go s.serve(srv, ln)
	s.logger.Info("intake listening", zap.String("addr", ln.Addr().String()))
	return nil
}

func (s *Server) serve(srv *http.Server, ln net.Listener) {
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return
	}
	s.logger.Error("intake stopped serving", zap.Error(err))
}

// Shutdown drains in-flight requests until ctx expires. The server can be
// started again afterwards.
func (s *Server) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	s.status = StatusDraining
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("intake: drain: %w", err)
	}
	s.listener, s.server = nil, nil
	s.status = StatusStopped
	return nil
}

// Addr is the bound host:port, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL prefers the bound address, which differs from Settings when the
// configured port is 0.
func (s *Server) BaseURL() string {
	if addr := s.Addr(); addr != "" {
		return "http://" + addr
	}
	return s.settings.URL()
}

func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(s.clock().Sub(s.startTime).Seconds())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", fmt.Sprintf("%s, %s", http.MethodGet, http.MethodHead))
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        string(s.Status()),
		Version:       ProtocolVersion,
		UptimeSeconds: s.uptimeSeconds(),
	})
}

func (s *Server) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.acceptSubmission(w, r)
	case http.MethodGet:
		s.listSubmissions(w, r)
	default:
		w.Header().Set("Allow", fmt.Sprintf("%s, %s", http.MethodGet, http.MethodPost))
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	}
}

// acceptSubmission decodes the payload and stores it as received. Field
// validation happens on the kiosk, not here.
func (s *Server) acceptSubmission(w http.ResponseWriter, r *http.Request) {
	if r.Body == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "empty body"})
		return
	}
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "payload exceeds limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unable to read body"})
		return
	}
	var payload form.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}
	rec := Record{ID: s.newID(), ReceivedAt: s.clock().UTC(), Payload: payload}
	if err := s.store.Save(r.Context(), rec); err != nil {
		s.logger.Error("intake store failed", zap.String("id", rec.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "submission could not be stored"})
		return
	}
	s.logger.Info("submission received",
		zap.String("id", rec.ID),
		zap.String("language", payload.Language),
		zap.Int("attachments", len(payload.Images)),
		zap.Int("bytes", len(body)))
	writeJSON(w, http.StatusAccepted, rec.receipt())
}

func (s *Server) listSubmissions(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	receipts, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("intake list failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "submissions unavailable"})
		return
	}
	if receipts == nil {
		receipts = []Receipt{}
	}
	writeJSON(w, http.StatusOK, listResponse{Submissions: receipts})
}

func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/submissions/"), "/")
	if id == "" {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}
	rec, err := s.store.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}
	if err != nil {
		s.logger.Error("intake get failed", zap.String("id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "submission unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, recordResponse{Receipt: rec.receipt(), Payload: rec.Payload})
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type listResponse struct {
	Submissions []Receipt `json:"submissions"`
}

type recordResponse struct {
	Receipt Receipt      `json:"receipt"`
	Payload form.Payload `json:"payload"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
