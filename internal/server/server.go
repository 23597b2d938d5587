// Package server exposes the projection host over HTTP and gRPC: projection
// status, checkpoint administration, classified-ad commands and read-model
// queries.
package server

import (
	"encoding/json"
	"log/slog"

	"github.com/alfredjeanlab/marketplace/internal/logging"
	"github.com/alfredjeanlab/marketplace/internal/marketplace"
	"github.com/alfredjeanlab/marketplace/internal/status"
	"github.com/alfredjeanlab/marketplace/internal/store"
)

// Options wires a Server to its collaborators.
type Options struct {
	Checkpoints store.CheckpointStore
	ReadModels  store.ReadModelStore
	// Ads handles classified-ad commands. Optional; without it the command
	// endpoints answer 503.
	Ads    *marketplace.Service
	Status *status.Tracker
	Logger *slog.Logger
}

// Server serves the operational API.
type Server struct {
	checkpoints store.CheckpointStore
	readModels  store.ReadModelStore
	ads         *marketplace.Service
	status      *status.Tracker
	logger      *slog.Logger
	hub         *sseHub
}

// New creates a server and subscribes it to projection status changes.
func New(opts Options) *Server {
	s := &Server{
		checkpoints: opts.Checkpoints,
		readModels:  opts.ReadModels,
		ads:         opts.Ads,
		status:      opts.Status,
		logger:      opts.Logger,
		hub:         newSSEHub(),
	}
	if s.status == nil {
		s.status = status.New()
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	s.status.OnChange(s.broadcastStatus)
	return s
}

// broadcastStatus fans a status change out to SSE clients.
func (s *Server) broadcastStatus(e status.Entry) {
	payload, err := json.Marshal(e)
	if err != nil {
		s.logger.Warn("failed to marshal status for SSE broadcast", "projection", e.Projection, "err", err)
		return
	}
	s.hub.broadcast(e.Projection, payload)
}
