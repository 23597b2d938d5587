// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/marketplace/internal/model"
	"github.com/alfredjeanlab/marketplace/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewWithDB wraps an already opened database without running migrations.
func NewWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// inTx runs fn in a transaction, committing on success and rolling back on
// error.
func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendToStream(ctx context.Context, streamID string, expectedVersion int64, events []model.NewEvent) (model.Position, error) {
	var last model.Position
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		pos, err := queryAppendToStream(ctx, tx, streamID, expectedVersion, events, time.Now().UTC())
		last = pos
		return err
	})
	return last, err
}

func (s *PostgresStore) ReadAll(ctx context.Context, after model.Position, limit int) ([]*model.Event, error) {
	return queryReadAll(ctx, s.db, after, limit)
}

func (s *PostgresStore) ReadStream(ctx context.Context, streamID string) ([]*model.Event, error) {
	return queryReadStream(ctx, s.db, streamID)
}

func (s *PostgresStore) GetLastCheckpoint(ctx context.Context, projection string) (model.Position, error) {
	return queryGetCheckpoint(ctx, s.db, projection)
}

func (s *PostgresStore) SetCheckpoint(ctx context.Context, projection string, pos model.Position) error {
	return querySetCheckpoint(ctx, s.db, projection, pos, time.Now().UTC())
}

func (s *PostgresStore) ListCheckpoints(ctx context.Context) ([]*model.Checkpoint, error) {
	return queryListCheckpoints(ctx, s.db)
}

func (s *PostgresStore) DeleteCheckpoint(ctx context.Context, projection string) error {
	return queryDeleteCheckpoint(ctx, s.db, projection)
}

func (s *PostgresStore) UpdateOwnerAd(ctx context.Context, adID string, fn func(ad *model.OwnerAd)) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return queryUpdateOwnerAd(ctx, tx, adID, fn, time.Now().UTC())
	})
}

func (s *PostgresStore) ListOwnerAds(ctx context.Context, ownerID string) ([]*model.OwnerAd, error) {
	return queryListOwnerAds(ctx, s.db, ownerID)
}

func (s *PostgresStore) UpdateAvailableAd(ctx context.Context, adID string, fn func(ad *model.AvailableAd)) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return queryUpdateAvailableAd(ctx, tx, adID, fn, time.Now().UTC())
	})
}

func (s *PostgresStore) ListAvailableAds(ctx context.Context, onlyAvailable bool) ([]*model.AvailableAd, error) {
	return queryListAvailableAds(ctx, s.db, onlyAvailable)
}
