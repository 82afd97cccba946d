package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/vouch/internal/attestation"
	"github.com/MikeSquared-Agency/vouch/internal/metrics"
	"github.com/MikeSquared-Agency/vouch/internal/store"
	"github.com/MikeSquared-Agency/vouch/internal/trust"
)

// Service is the attestation API the HTTP layer serves.
type Service interface {
	Compute(d trust.AgentPlatformData) (trust.TrustAttestation, error)
	Issue(ctx context.Context, d trust.AgentPlatformData) (store.AttestationRecord, error)
	Latest(ctx context.Context, agentID string) (store.AttestationRecord, error)
	History(ctx context.Context, agentID string, limit int) ([]store.AttestationRecord, error)
	List(ctx context.Context, limit int) ([]store.AttestationRecord, error)
	CurrentScore(ctx context.Context, agentID string) (attestation.Score, error)
	Verify(ctx context.Context, agentID string) (attestation.Verification, error)
	HasLedger() bool
}

type Server struct {
	router  *chi.Mux
	svc     Service
	metrics *metrics.Metrics
	httpSrv *http.Server
}

func NewServer(port int, apiToken string, svc Service, m *metrics.Metrics) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(metricsMiddleware(m))

	s := &Server{
		router:  router,
		svc:     svc,
		metrics: m,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/vouch/status", s.status)
	router.Method(http.MethodGet, "/metrics", m.Handler())

	router.Route("/api/v1/attestations", func(r chi.Router) {
		r.Get("/", s.listAttestations)
		r.Post("/preview", s.previewAttestation)
		r.With(BearerAuthMiddleware(apiToken)).Post("/", s.issueAttestation)

		r.Route("/{agentID}", func(r chi.Router) {
			r.Get("/", s.latestAttestation)
			r.Get("/history", s.attestationHistory)
			r.Get("/score", s.currentScore)
			r.Get("/verify", s.verifyAttestation)
		})
	})

	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler exposes the router for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	slog.Info("API server starting", "addr", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":  "vouch",
		"status": "active",
		"ledger": s.svc.HasLedger(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrVersionConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, attestation.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, attestation.ErrNoLedger):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
