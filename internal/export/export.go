package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/marketplace/internal/model"
	"github.com/alfredjeanlab/marketplace/internal/store"
)

// Source is what an export reads: the read models and the checkpoints they
// reflect.
type Source interface {
	store.ReadModelStore
	ListCheckpoints(ctx context.Context) ([]*model.Checkpoint, error)
}

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version          string    `json:"version"`
	Type             string    `json:"type"`
	Timestamp        time.Time `json:"timestamp"`
	CheckpointCount  int       `json:"checkpoint_count"`
	OwnerAdCount     int       `json:"owner_ad_count"`
	AvailableAdCount int       `json:"available_ad_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	recordCheckpoint  = "checkpoint"
	recordOwnerAd     = "owner_ad"
	recordAvailableAd = "available_ad"
)

// ExportJSONL writes checkpoints and every read-model document as JSONL to
// w. Checkpoints come first so a reader knows which log position the
// documents reflect. The stores return documents in id order.
func ExportJSONL(ctx context.Context, src Source, w io.Writer) error {
	checkpoints, err := src.ListCheckpoints(ctx)
	if err != nil {
		return fmt.Errorf("list checkpoints: %w", err)
	}
	owned, err := src.ListOwnerAds(ctx, "")
	if err != nil {
		return fmt.Errorf("list owner ads: %w", err)
	}
	available, err := src.ListAvailableAds(ctx, false)
	if err != nil {
		return fmt.Errorf("list available ads: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:          "1",
		Type:             "header",
		Timestamp:        time.Now().UTC(),
		CheckpointCount:  len(checkpoints),
		OwnerAdCount:     len(owned),
		AvailableAdCount: len(available),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, c := range checkpoints {
		if err := enc.Encode(record{Type: recordCheckpoint, Data: c}); err != nil {
			return fmt.Errorf("encode checkpoint %s: %w", c.Projection, err)
		}
	}
	for _, ad := range owned {
		if err := enc.Encode(record{Type: recordOwnerAd, Data: ad}); err != nil {
			return fmt.Errorf("encode owner ad %s: %w", ad.AdID, err)
		}
	}
	for _, ad := range available {
		if err := enc.Encode(record{Type: recordAvailableAd, Data: ad}); err != nil {
			return fmt.Errorf("encode available ad %s: %w", ad.AdID, err)
		}
	}
	return nil
}
