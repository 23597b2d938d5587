// Package client talks to the marketplace projection host over its HTTP/JSON
// API.
package client

import (
	"context"

	"github.com/alfredjeanlab/marketplace/internal/model"
	"github.com/alfredjeanlab/marketplace/internal/status"
)

// MarketplaceClient is what the CLI commands use to reach the server.
type MarketplaceClient interface {
	// Operations
	Health(ctx context.Context) (*HealthResponse, error)
	ListProjections(ctx context.Context) ([]status.Entry, error)
	GetProjection(ctx context.Context, name string) (*status.Entry, error)
	ListCheckpoints(ctx context.Context) ([]*model.Checkpoint, error)
	ResetCheckpoint(ctx context.Context, projection string) error

	// Ad commands
	RegisterAd(ctx context.Context, id, ownerID string) (*CommandResult, error)
	ChangeTitle(ctx context.Context, id, title string) (*CommandResult, error)
	UpdateText(ctx context.Context, id, text string) (*CommandResult, error)
	ChangePrice(ctx context.Context, id string, price float64, currency string) (*CommandResult, error)
	PublishAd(ctx context.Context, id, approvedBy string) (*CommandResult, error)
	MarkAsSold(ctx context.Context, id string) (*CommandResult, error)

	// Read models
	ListAvailableAds(ctx context.Context, all bool) ([]*model.AvailableAd, error)
	ListOwnerAds(ctx context.Context, ownerID string) ([]*model.OwnerAd, error)

	Close() error
}

// HealthResponse reports overall health and every projection's state.
type HealthResponse struct {
	Status      string         `json:"status"`
	Projections []status.Entry `json:"projections"`
}

// Healthy reports whether the server considers itself healthy.
func (h *HealthResponse) Healthy() bool { return h.Status == "ok" }

// CommandResult identifies the ad a command applied to and the log position
// of the appended event.
type CommandResult struct {
	ID       string         `json:"id"`
	Position model.Position `json:"position"`
}
