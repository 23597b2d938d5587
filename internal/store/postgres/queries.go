package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/alfredjeanlab/marketplace/internal/model"
	"github.com/alfredjeanlab/marketplace/internal/store"
)

// appendLockKey is the advisory lock taken by every append transaction.
// Appends are serialized so that global positions become visible to readers
// in commit order and a catch-up read never skips a position.
const appendLockKey int64 = 0x6d6b74706c616365

// uniqueViolation is the PostgreSQL error code for unique_violation.
const uniqueViolation = "23505"

const eventColumns = `position, id, stream_id, version, type, data, created_at`

const ownerAdColumns = `ad_id, owner_id, title, price, currency, status, updated_at`

const availableAdColumns = `ad_id, owner_id, title, text, price, currency, available, published_at, updated_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// --- Event log ---

func queryAppendToStream(ctx context.Context, db executor, streamID string, expectedVersion int64, events []model.NewEvent, now time.Time) (model.Position, error) {
	if strings.TrimSpace(streamID) == "" {
		return 0, fmt.Errorf("stream id is required")
	}
	if len(events) == 0 {
		return 0, fmt.Errorf("no events to append to %s", streamID)
	}

	if _, err := db.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, appendLockKey); err != nil {
		return 0, fmt.Errorf("lock event log: %w", err)
	}

	var current int64
	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = $1`, streamID,
	).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("read stream version: %w", err)
	}
	if expectedVersion != store.ExpectedAny && expectedVersion != current {
		return 0, fmt.Errorf("%w: stream %s is at version %d, expected %d",
			store.ErrWrongExpectedVersion, streamID, current, expectedVersion)
	}

	var last int64
	for i, e := range events {
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		err := db.QueryRowContext(ctx, `
			INSERT INTO events (id, stream_id, version, type, data, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING position`,
			id, streamID, current+int64(i)+1, e.Type, e.Data, now,
		).Scan(&last)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return 0, fmt.Errorf("%w: %s", store.ErrWrongExpectedVersion, pqErr.Message)
			}
			return 0, fmt.Errorf("insert event %s: %w", id, err)
		}
	}
	return model.Position(last), nil
}

func queryReadAll(ctx context.Context, db executor, after model.Position, limit int) ([]*model.Event, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("read limit must be positive, got %d", limit)
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE position > $1 ORDER BY position LIMIT $2`,
		int64(after), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryReadStream(ctx context.Context, db executor, streamID string) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE stream_id = $1 ORDER BY version`, streamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// --- Checkpoints ---

func queryGetCheckpoint(ctx context.Context, db executor, projection string) (model.Position, error) {
	if projection == "" {
		return 0, store.ErrProjectionRequired
	}
	var pos int64
	err := db.QueryRowContext(ctx,
		`SELECT position FROM checkpoints WHERE projection = $1`, projection,
	).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrCheckpointNotFound
	}
	if err != nil {
		return 0, err
	}
	return model.Position(pos), nil
}

func querySetCheckpoint(ctx context.Context, db executor, projection string, pos model.Position, now time.Time) error {
	if projection == "" {
		return store.ErrProjectionRequired
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO checkpoints (projection, position, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (projection)
		DO UPDATE SET position = EXCLUDED.position, updated_at = EXCLUDED.updated_at`,
		projection, int64(pos), now,
	)
	return err
}

func queryListCheckpoints(ctx context.Context, db executor) ([]*model.Checkpoint, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT projection, position, updated_at FROM checkpoints ORDER BY projection`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCheckpoints(rows)
}

func queryDeleteCheckpoint(ctx context.Context, db executor, projection string) error {
	if projection == "" {
		return store.ErrProjectionRequired
	}
	result, err := db.ExecContext(ctx, `DELETE FROM checkpoints WHERE projection = $1`, projection)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrCheckpointNotFound
	}
	return nil
}

// --- Read models ---

func queryUpdateOwnerAd(ctx context.Context, db executor, adID string, fn func(*model.OwnerAd), now time.Time) error {
	row := db.QueryRowContext(ctx,
		`SELECT `+ownerAdColumns+` FROM owner_ads WHERE ad_id = $1 FOR UPDATE`, adID)
	ad, err := scanOwnerAd(row)
	if errors.Is(err, sql.ErrNoRows) {
		ad = &model.OwnerAd{AdID: adID, Status: model.AdStatusDraft}
	} else if err != nil {
		return fmt.Errorf("load owner ad %s: %w", adID, err)
	}

	fn(ad)
	ad.AdID = adID
	ad.UpdatedAt = now

	_, err = db.ExecContext(ctx, `
		INSERT INTO owner_ads (`+ownerAdColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (ad_id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			title = EXCLUDED.title,
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		ad.AdID, ad.OwnerID, ad.Title, ad.Price, ad.Currency, string(ad.Status), ad.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save owner ad %s: %w", adID, err)
	}
	return nil
}

func queryListOwnerAds(ctx context.Context, db executor, ownerID string) ([]*model.OwnerAd, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if ownerID == "" {
		rows, err = db.QueryContext(ctx,
			`SELECT `+ownerAdColumns+` FROM owner_ads ORDER BY owner_id, ad_id`)
	} else {
		rows, err = db.QueryContext(ctx,
			`SELECT `+ownerAdColumns+` FROM owner_ads WHERE owner_id = $1 ORDER BY ad_id`, ownerID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOwnerAds(rows)
}

func queryUpdateAvailableAd(ctx context.Context, db executor, adID string, fn func(*model.AvailableAd), now time.Time) error {
	row := db.QueryRowContext(ctx,
		`SELECT `+availableAdColumns+` FROM available_ads WHERE ad_id = $1 FOR UPDATE`, adID)
	ad, err := scanAvailableAd(row)
	if errors.Is(err, sql.ErrNoRows) {
		ad = &model.AvailableAd{AdID: adID}
	} else if err != nil {
		return fmt.Errorf("load available ad %s: %w", adID, err)
	}

	fn(ad)
	ad.AdID = adID
	ad.UpdatedAt = now

	_, err = db.ExecContext(ctx, `
		INSERT INTO available_ads (`+availableAdColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (ad_id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			title = EXCLUDED.title,
			text = EXCLUDED.text,
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			available = EXCLUDED.available,
			published_at = EXCLUDED.published_at,
			updated_at = EXCLUDED.updated_at`,
		ad.AdID, ad.OwnerID, ad.Title, ad.Text, ad.Price, ad.Currency, ad.Available,
		nullTimePtr(ad.PublishedAt), ad.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save available ad %s: %w", adID, err)
	}
	return nil
}

func queryListAvailableAds(ctx context.Context, db executor, onlyAvailable bool) ([]*model.AvailableAd, error) {
	query := `SELECT ` + availableAdColumns + ` FROM available_ads`
	if onlyAvailable {
		query += ` WHERE available`
	}
	query += ` ORDER BY ad_id`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAvailableAds(rows)
}
