package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alfredjeanlab/marketplace/internal/status"
	"github.com/alfredjeanlab/marketplace/internal/store"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/projections", s.handleListProjections)
	mux.HandleFunc("GET /v1/projections/stream", s.handleStatusStream)
	mux.HandleFunc("GET /v1/projections/{name}", s.handleGetProjection)
	mux.HandleFunc("GET /v1/checkpoints", s.handleListCheckpoints)
	mux.HandleFunc("DELETE /v1/checkpoints/{name}", s.handleResetCheckpoint)
	mux.HandleFunc("POST /v1/ads", s.handleRegisterAd)
	mux.HandleFunc("GET /v1/ads", s.handleListAvailableAds)
	mux.HandleFunc("PUT /v1/ads/{id}/title", s.handleChangeTitle)
	mux.HandleFunc("PUT /v1/ads/{id}/text", s.handleUpdateText)
	mux.HandleFunc("PUT /v1/ads/{id}/price", s.handleChangePrice)
	mux.HandleFunc("POST /v1/ads/{id}/publish", s.handlePublish)
	mux.HandleFunc("POST /v1/ads/{id}/sold", s.handleMarkAsSold)
	mux.HandleFunc("GET /v1/owners/{id}/ads", s.handleListOwnerAds)
	return AuthMiddleware(authToken, mux)
}

// HealthResponse is the body of GET /v1/health.
type HealthResponse struct {
	Status      string         `json:"status"`
	Projections []status.Entry `json:"projections"`
}

// handleHealth handles GET /v1/health. It answers 503 when any projection
// has failed.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "ok", Projections: s.status.Snapshot()}
	code := http.StatusOK
	if !s.status.Healthy() {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// handleListProjections handles GET /v1/projections.
func (s *Server) handleListProjections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Snapshot())
}

// handleGetProjection handles GET /v1/projections/{name}.
func (s *Server) handleGetProjection(w http.ResponseWriter, r *http.Request) {
	e, ok := s.status.Get(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, "projection not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleListCheckpoints handles GET /v1/checkpoints.
func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	checkpoints, err := s.checkpoints.ListCheckpoints(r.Context())
	if err != nil {
		s.logger.Error("list checkpoints failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list checkpoints")
		return
	}
	writeJSON(w, http.StatusOK, checkpoints)
}

// handleResetCheckpoint handles DELETE /v1/checkpoints/{name}. The
// projection rebuilds from the start of the log the next time it starts.
func (s *Server) handleResetCheckpoint(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	err := s.checkpoints.DeleteCheckpoint(r.Context(), name)
	switch {
	case errors.Is(err, store.ErrCheckpointNotFound):
		writeError(w, http.StatusNotFound, "checkpoint not found")
		return
	case err != nil:
		s.logger.Error("reset checkpoint failed", "projection", name, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to reset checkpoint")
		return
	}
	s.logger.Info("checkpoint reset", "projection", name)
	w.WriteHeader(http.StatusNoContent)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
