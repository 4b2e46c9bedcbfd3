package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"govee-bridge/internal/domain"
)

// Service is what the API exposes: the coordinator's view of configured
// devices and its command entry point.
type Service interface {
	States() []domain.DeviceState
	State(name string) (domain.DeviceState, bool)
	Execute(ctx context.Context, name string, intent domain.Intent) (domain.DeviceState, error)
}

type Server struct {
	addr        string
	service     Service
	server      *http.Server
	logger      *slog.Logger
	mu          sync.Mutex
	running     bool
	mux         *http.ServeMux
	rateLimiter *RateLimiter
	authToken   string
}

type Option func(*Server)

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.mux.Handle("GET /metrics", h)
	}
}

func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) {
		s.rateLimiter = rl
	}
}

func NewServer(addr, authToken string, service Service, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		addr:        addr,
		service:     service,
		logger:      logger,
		mux:         http.NewServeMux(),
		rateLimiter: NewRateLimiter(30, time.Minute), // 30 requests per minute per IP
		authToken:   authToken,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /devices", s.authorized(s.handleList))
	s.mux.HandleFunc("GET /devices/{name}", s.authorized(s.handleGet))
	s.mux.HandleFunc("POST /devices/{name}/commands", s.rateLimiter.Middleware(s.authorized(s.handleCommand)))
	// No auth or rate limiting on health check
	s.mux.HandleFunc("GET /health", s.handleHealth)
	return s
}

func (s *Server) Name() string {
	return "http"
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		s.logger.Info("HTTP API starting", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.rateLimiter.Prune()
			}
		}
	}()

	s.running = true
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			if err := s.server.Close(); err != nil {
				return fmt.Errorf("closing server: %w", err)
			}
		}
	}

	s.running = false
	return nil
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" {
			token := r.Header.Get("X-Auth-Token")
			if token == "" {
				token = r.URL.Query().Get("token")
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
				s.logger.Warn("unauthorized request", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.States())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	state, ok := s.service.State(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, "device not configured")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var intent domain.Intent
	if err := json.Unmarshal(data, &intent); err != nil || intent.Action == "" {
		writeError(w, http.StatusBadRequest, "body must be a JSON intent with an action")
		return
	}

	name := r.PathValue("name")
	state, err := s.service.Execute(r.Context(), name, intent)
	if err != nil {
		status := statusFor(err)
		s.logger.Warn("command failed", "device", name, "action", intent.Action, "status", status, "error", err)
		writeError(w, status, err.Error())
		return
	}

	s.logger.Info("command executed via HTTP", "device", name, "action", intent.Action)
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	available := 0
	states := s.service.States()
	for _, st := range states {
		if st.Available {
			available++
		}
	}

	status := "ok"
	statusCode := http.StatusOK

	if !running {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, map[string]any{
		"status":    status,
		"running":   running,
		"devices":   len(states),
		"available": available,
	})
}

// statusFor maps the domain error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	var (
		unsupported *domain.UnsupportedCapabilityError
		rejected    *domain.CommandRejectedError
		transport   *domain.TransportError
	)

	switch {
	case errors.Is(err, domain.ErrRefreshAfterAck):
		return http.StatusAccepted
	case errors.Is(err, domain.ErrDeviceNotConfigured):
		return http.StatusNotFound
	case errors.As(err, &unsupported):
		return http.StatusBadRequest
	case errors.As(err, &rejected):
		return http.StatusConflict
	case errors.As(err, &transport) && transport.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
