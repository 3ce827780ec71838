// Package api exposes the orchestrator over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
	"github.com/tanpawarit/theo-ai/agent/gate"
	"github.com/tanpawarit/theo-ai/agent/orchestrator"
)

const requestIDHeader = "X-Request-ID"

type Config struct {
	ListenAddr      string        `envconfig:"LISTEN_ADDR" default:":8000"`
	APISecret       string        `envconfig:"API_SECRET_KEY"`
	AuthHeader      string        `envconfig:"AUTH_HEADER" default:"X-API-Key"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"1048576"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Service is what the HTTP layer needs from the orchestrator.
type Service interface {
	HandleChat(ctx context.Context, req contractx.ChatRequest) (contractx.ChatResponse, error)
	HandleSchedule(ctx context.Context, req contractx.ScheduleRequest, perRequest map[string]string) (contractx.ScheduleResponse, error)
	Catalog(ctx context.Context, live bool, perRequest map[string]string) orchestrator.Catalog
}

type Server struct {
	cfg     Config
	service Service
	version string
	now     func() time.Time
}

func New(cfg Config, service Service, version string) (*Server, error) {
	if service == nil {
		return nil, errors.New("api: service is required")
	}
	if strings.TrimSpace(cfg.AuthHeader) == "" {
		cfg.AuthHeader = "X-API-Key"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if strings.TrimSpace(cfg.APISecret) == "" {
		log.Warn().Msg("API secret is not set; authenticated routes will reject every request")
	}
	return &Server{cfg: cfg, service: service, version: version, now: time.Now}, nil
}

// Handler returns the routed handler with request id and access logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /chat", s.authenticated(http.HandlerFunc(s.handleChat)))
	mux.Handle("POST /schedule", s.authenticated(http.HandlerFunc(s.handleSchedule)))
	mux.Handle("GET /models", s.authenticated(http.HandlerFunc(s.handleModels)))

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	return s.withRequestID(s.withAccessLog(mux))
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting API server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api: listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	log.Info().Msg("shutting down API server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Side effects are keyed on this id, so it is never taken from the client.
		id := uuid.NewString()
		w.Header().Set(requestIDHeader, id)

		lc := log.Logger.With().Str("request_id", id)
		if client := strings.TrimSpace(r.Header.Get(requestIDHeader)); client != "" && len(client) <= 128 {
			lc = lc.Str("client_request_id", client)
		}
		logger := lc.Logger()
		ctx := logger.WithContext(contractx.WithRequestID(r.Context(), id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Ctx(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("latency", time.Since(start)).
			Msg("request")
	})
}

// authenticated runs before any body is read.
func (s *Server) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := gate.Authenticate(r.Header.Get(s.cfg.AuthHeader), s.cfg.APISecret); err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body exceeds %d bytes", contractx.ErrValidation, tooLarge.Limit)
		}
		return fmt.Errorf("%w: invalid JSON body: %v", contractx.ErrValidation, err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Ctx(r.Context()).Debug().Err(err).Msg("failed to write JSON response")
	}
}
