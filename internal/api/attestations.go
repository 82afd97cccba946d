package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/vouch/internal/trust"
)

const (
	defaultLimit = 50
	maxLimit     = 500
	maxBodyBytes = 1 << 20
)

// parseLimit reads ?limit=, defaulting to 50 and capping at 500.
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

func decodePlatformData(w http.ResponseWriter, r *http.Request) (trust.AgentPlatformData, bool) {
	var d trust.AgentPlatformData
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return d, false
	}
	return d, true
}

// issueAttestation handles POST /api/v1/attestations
func (s *Server) issueAttestation(w http.ResponseWriter, r *http.Request) {
	d, ok := decodePlatformData(w, r)
	if !ok {
		return
	}
	rec, err := s.svc.Issue(r.Context(), d)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// previewAttestation handles POST /api/v1/attestations/preview
func (s *Server) previewAttestation(w http.ResponseWriter, r *http.Request) {
	d, ok := decodePlatformData(w, r)
	if !ok {
		return
	}
	att, err := s.svc.Compute(d)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, att)
}

// listAttestations handles GET /api/v1/attestations
func (s *Server) listAttestations(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := s.svc.List(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attestations": nonNil(recs), "count": len(recs)})
}

func (s *Server) latestAttestation(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Latest(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) attestationHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	agentID := chi.URLParam(r, "agentID")
	recs, err := s.svc.History(r.Context(), agentID, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id":     agentID,
		"attestations": nonNil(recs),
		"count":        len(recs),
	})
}

func (s *Server) currentScore(w http.ResponseWriter, r *http.Request) {
	score, err := s.svc.CurrentScore(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (s *Server) verifyAttestation(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.Verify(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
