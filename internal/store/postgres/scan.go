package postgres

import (
	"database/sql"
	"time"

	"github.com/alfredjeanlab/marketplace/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanEvent scans a single row into a model.Event.
// The row must contain columns in the order defined by eventColumns.
func scanEvent(row scannable) (*model.Event, error) {
	var (
		e   model.Event
		pos int64
	)
	err := row.Scan(&pos, &e.ID, &e.StreamID, &e.StreamVersion, &e.Type, &e.Data, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Position = model.Position(pos)
	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanCheckpoints(rows *sql.Rows) ([]*model.Checkpoint, error) {
	var checkpoints []*model.Checkpoint
	for rows.Next() {
		var (
			cp  model.Checkpoint
			pos int64
		)
		if err := rows.Scan(&cp.Projection, &pos, &cp.UpdatedAt); err != nil {
			return nil, err
		}
		cp.Position = model.Position(pos)
		checkpoints = append(checkpoints, &cp)
	}
	return checkpoints, rows.Err()
}

// scanOwnerAd scans a row in ownerAdColumns order.
func scanOwnerAd(row scannable) (*model.OwnerAd, error) {
	var (
		ad     model.OwnerAd
		status string
	)
	err := row.Scan(&ad.AdID, &ad.OwnerID, &ad.Title, &ad.Price, &ad.Currency, &status, &ad.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ad.Status = model.AdStatus(status)
	return &ad, nil
}

func scanOwnerAds(rows *sql.Rows) ([]*model.OwnerAd, error) {
	var ads []*model.OwnerAd
	for rows.Next() {
		ad, err := scanOwnerAd(rows)
		if err != nil {
			return nil, err
		}
		ads = append(ads, ad)
	}
	return ads, rows.Err()
}

// scanAvailableAd scans a row in availableAdColumns order.
func scanAvailableAd(row scannable) (*model.AvailableAd, error) {
	var (
		ad          model.AvailableAd
		publishedAt sql.NullTime
	)
	err := row.Scan(
		&ad.AdID,
		&ad.OwnerID,
		&ad.Title,
		&ad.Text,
		&ad.Price,
		&ad.Currency,
		&ad.Available,
		&publishedAt,
		&ad.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		ad.PublishedAt = &t
	}
	return &ad, nil
}

func scanAvailableAds(rows *sql.Rows) ([]*model.AvailableAd, error) {
	var ads []*model.AvailableAd
	for rows.Next() {
		ad, err := scanAvailableAd(rows)
		if err != nil {
			return nil, err
		}
		ads = append(ads, ad)
	}
	return ads, rows.Err()
}

// nullTimePtr converts an optional time into a driver value.
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
