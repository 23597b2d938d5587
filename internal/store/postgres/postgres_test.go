package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/alfredjeanlab/marketplace/internal/model"
	"github.com/alfredjeanlab/marketplace/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var eventRowColumns = []string{"position", "id", "stream_id", "version", "type", "data", "created_at"}

var ownerAdRowColumns = []string{"ad_id", "owner_id", "title", "price", "currency", "status", "updated_at"}

var availableAdRowColumns = []string{
	"ad_id", "owner_id", "title", "text", "price", "currency", "available", "published_at", "updated_at",
}

func expectAppendLock(mock sqlmock.Sqlmock) {
	mock.ExpectExec("SELECT pg_advisory_xact_lock\\(\\$1\\)").
		WithArgs(appendLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestAppendToStream(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectBegin()
	expectAppendLock(mock)
	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(version\\), 0\\) FROM events WHERE stream_id = \\$1").
		WithArgs("ClassifiedAd-ad1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(0)))
	mock.ExpectQuery("INSERT INTO events").
		WithArgs("e1", "ClassifiedAd-ad1", int64(1), "Marketplace.V1.ClassifiedAdRegistered", []byte(`{}`), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(int64(10)))
	mock.ExpectQuery("INSERT INTO events").
		WithArgs(sqlmock.AnyArg(), "ClassifiedAd-ad1", int64(2), "Marketplace.V1.ClassifiedAdTitleChanged", []byte(`{}`), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(int64(11)))
	mock.ExpectCommit()

	pos, err := s.AppendToStream(context.Background(), "ClassifiedAd-ad1", store.ExpectedNoStream, []model.NewEvent{
		{ID: "e1", Type: "Marketplace.V1.ClassifiedAdRegistered", Data: []byte(`{}`)},
		{Type: "Marketplace.V1.ClassifiedAdTitleChanged", Data: []byte(`{}`)},
	})
	if err != nil {
		t.Fatalf("AppendToStream: %v", err)
	}
	if pos != 11 {
		t.Errorf("position = %d, want 11", pos)
	}
}

func TestAppendToStream_WrongExpectedVersion(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectBegin()
	expectAppendLock(mock)
	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(version\\), 0\\) FROM events").
		WithArgs("ClassifiedAd-ad1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(3)))
	mock.ExpectRollback()

	_, err := s.AppendToStream(context.Background(), "ClassifiedAd-ad1", 2, []model.NewEvent{
		{Type: "Marketplace.V1.ClassifiedAdPublished", Data: []byte(`{}`)},
	})
	if !errors.Is(err, store.ErrWrongExpectedVersion) {
		t.Fatalf("expected ErrWrongExpectedVersion, got %v", err)
	}
}

func TestAppendToStream_UniqueViolation(t *testing.T) {
	db, mock := newMockDB(t)

	expectAppendLock(mock)
	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(version\\), 0\\) FROM events").
		WithArgs("ClassifiedAd-ad1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(1)))
	mock.ExpectQuery("INSERT INTO events").
		WillReturnError(&pq.Error{Code: uniqueViolation, Message: "duplicate key value"})

	_, err := queryAppendToStream(context.Background(), db, "ClassifiedAd-ad1", store.ExpectedAny,
		[]model.NewEvent{{ID: "e1", Type: "T", Data: []byte(`{}`)}}, time.Now())
	if !errors.Is(err, store.ErrWrongExpectedVersion) {
		t.Fatalf("expected ErrWrongExpectedVersion, got %v", err)
	}
}

func TestAppendToStream_Validation(t *testing.T) {
	db, _ := newMockDB(t)

	for _, tc := range []struct {
		name     string
		streamID string
		events   []model.NewEvent
	}{
		{"empty stream", "", []model.NewEvent{{Type: "T"}}},
		{"no events", "ClassifiedAd-ad1", nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := queryAppendToStream(context.Background(), db, tc.streamID, store.ExpectedAny, tc.events, time.Now())
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestReadAll(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM events WHERE position > \\$1 ORDER BY position LIMIT \\$2").
		WithArgs(int64(9), int64(500)).
		WillReturnRows(sqlmock.NewRows(eventRowColumns).
			AddRow(int64(10), "e1", "ClassifiedAd-ad1", int64(1), "Marketplace.V1.ClassifiedAdRegistered", []byte(`{"Id":"ad1"}`), now).
			AddRow(int64(11), "e2", "$stats-127.0.0.1:2113", int64(1), "$statsCollected", []byte(`{}`), now))

	events, err := s.ReadAll(context.Background(), 9, 500)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Position != 10 || events[0].Type != "Marketplace.V1.ClassifiedAdRegistered" {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if !events[1].IsSystem() {
		t.Errorf("second event should be a system event")
	}
}

func TestReadStream(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM events WHERE stream_id = \\$1 ORDER BY version").
		WithArgs("ClassifiedAd-ad1").
		WillReturnRows(sqlmock.NewRows(eventRowColumns).
			AddRow(int64(3), "e1", "ClassifiedAd-ad1", int64(1), "Marketplace.V1.ClassifiedAdRegistered", []byte(`{"Id":"ad1"}`), now).
			AddRow(int64(7), "e2", "ClassifiedAd-ad1", int64(2), "Marketplace.V1.ClassifiedAdTitleChanged", []byte(`{"Id":"ad1"}`), now))

	events, err := s.ReadStream(context.Background(), "ClassifiedAd-ad1")
	if err != nil {
		t.Fatalf("ReadStream: %v", err)
	}
	if len(events) != 2 || events[1].StreamVersion != 2 || events[1].Position != 7 {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestReadAll_InvalidLimit(t *testing.T) {
	db, _ := newMockDB(t)
	if _, err := queryReadAll(context.Background(), db, 0, 0); err == nil {
		t.Fatal("expected error for zero limit")
	}
}

func TestGetLastCheckpoint(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectQuery("SELECT position FROM checkpoints WHERE projection = \\$1").
		WithArgs("owner-index").
		WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(int64(42)))

	pos, err := s.GetLastCheckpoint(context.Background(), "owner-index")
	if err != nil {
		t.Fatalf("GetLastCheckpoint: %v", err)
	}
	if pos != 42 {
		t.Errorf("position = %d, want 42", pos)
	}
}

func TestGetLastCheckpoint_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectQuery("SELECT position FROM checkpoints").
		WithArgs("available-ads").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetLastCheckpoint(context.Background(), "available-ads")
	if !errors.Is(err, store.ErrCheckpointNotFound) {
		t.Fatalf("expected ErrCheckpointNotFound, got %v", err)
	}
}

func TestCheckpoint_EmptyProjection(t *testing.T) {
	db, _ := newMockDB(t)
	s := NewWithDB(db)
	ctx := context.Background()

	if _, err := s.GetLastCheckpoint(ctx, ""); !errors.Is(err, store.ErrProjectionRequired) {
		t.Errorf("GetLastCheckpoint: expected ErrProjectionRequired, got %v", err)
	}
	if err := s.SetCheckpoint(ctx, "", 1); !errors.Is(err, store.ErrProjectionRequired) {
		t.Errorf("SetCheckpoint: expected ErrProjectionRequired, got %v", err)
	}
	if err := s.DeleteCheckpoint(ctx, ""); !errors.Is(err, store.ErrProjectionRequired) {
		t.Errorf("DeleteCheckpoint: expected ErrProjectionRequired, got %v", err)
	}
}

func TestSetCheckpoint(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectExec("INSERT INTO checkpoints .+ ON CONFLICT \\(projection\\)").
		WithArgs("owner-index", int64(11), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.SetCheckpoint(context.Background(), "owner-index", 11); err != nil {
		t.Fatalf("SetCheckpoint: %v", err)
	}
}

func TestListCheckpoints(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT projection, position, updated_at FROM checkpoints ORDER BY projection").
		WillReturnRows(sqlmock.NewRows([]string{"projection", "position", "updated_at"}).
			AddRow("available-ads", int64(7), now).
			AddRow("owner-index", int64(11), now))

	cps, err := s.ListCheckpoints(context.Background())
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(cps) != 2 {
		t.Fatalf("got %d checkpoints, want 2", len(cps))
	}
	if cps[1].Projection != "owner-index" || cps[1].Position != 11 {
		t.Errorf("unexpected checkpoint: %+v", cps[1])
	}
}

func TestDeleteCheckpoint(t *testing.T) {
	for _, tc := range []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{"deleted", 1, nil},
		{"missing", 0, store.ErrCheckpointNotFound},
	} {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			s := NewWithDB(db)

			mock.ExpectExec("DELETE FROM checkpoints WHERE projection = \\$1").
				WithArgs("owner-index").
				WillReturnResult(sqlmock.NewResult(0, tc.affected))

			err := s.DeleteCheckpoint(context.Background(), "owner-index")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("DeleteCheckpoint error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestUpdateOwnerAd_New(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM owner_ads WHERE ad_id = \\$1 FOR UPDATE").
		WithArgs("ad1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO owner_ads .+ ON CONFLICT \\(ad_id\\)").
		WithArgs("ad1", "owner1", "", float64(0), "", "draft", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.UpdateOwnerAd(context.Background(), "ad1", func(ad *model.OwnerAd) {
		ad.OwnerID = "owner1"
	})
	if err != nil {
		t.Fatalf("UpdateOwnerAd: %v", err)
	}
}

func TestUpdateOwnerAd_Existing(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM owner_ads WHERE ad_id = \\$1 FOR UPDATE").
		WithArgs("ad1").
		WillReturnRows(sqlmock.NewRows(ownerAdRowColumns).
			AddRow("ad1", "owner1", "Bike", 100.0, "EUR", "draft", now))
	mock.ExpectExec("INSERT INTO owner_ads").
		WithArgs("ad1", "owner1", "Red bike", 100.0, "EUR", "draft", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.UpdateOwnerAd(context.Background(), "ad1", func(ad *model.OwnerAd) {
		ad.Title = "Red bike"
	})
	if err != nil {
		t.Fatalf("UpdateOwnerAd: %v", err)
	}
}

func TestUpdateOwnerAd_RollbackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM owner_ads").
		WithArgs("ad1").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := s.UpdateOwnerAd(context.Background(), "ad1", func(*model.OwnerAd) {})
	if !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("expected ErrConnDone, got %v", err)
	}
}

func TestListOwnerAds(t *testing.T) {
	for _, tc := range []struct {
		name    string
		ownerID string
		query   string
	}{
		{"all owners", "", "SELECT .+ FROM owner_ads ORDER BY owner_id, ad_id"},
		{"one owner", "owner1", "SELECT .+ FROM owner_ads WHERE owner_id = \\$1 ORDER BY ad_id"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			s := NewWithDB(db)
			now := time.Now().UTC()

			exp := mock.ExpectQuery(tc.query)
			if tc.ownerID != "" {
				exp = exp.WithArgs(tc.ownerID)
			}
			exp.WillReturnRows(sqlmock.NewRows(ownerAdRowColumns).
				AddRow("ad1", "owner1", "Bike", 100.0, "EUR", "published", now))

			ads, err := s.ListOwnerAds(context.Background(), tc.ownerID)
			if err != nil {
				t.Fatalf("ListOwnerAds: %v", err)
			}
			if len(ads) != 1 || ads[0].Status != model.AdStatusPublished {
				t.Errorf("unexpected ads: %+v", ads)
			}
		})
	}
}

func TestUpdateAvailableAd(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	published := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM available_ads WHERE ad_id = \\$1 FOR UPDATE").
		WithArgs("ad1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO available_ads .+ ON CONFLICT \\(ad_id\\)").
		WithArgs("ad1", "owner1", "", "", float64(0), "", true, published, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.UpdateAvailableAd(context.Background(), "ad1", func(ad *model.AvailableAd) {
		ad.OwnerID = "owner1"
		ad.Available = true
		ad.PublishedAt = &published
	})
	if err != nil {
		t.Fatalf("UpdateAvailableAd: %v", err)
	}
}

func TestListAvailableAds(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM available_ads WHERE available ORDER BY ad_id").
		WillReturnRows(sqlmock.NewRows(availableAdRowColumns).
			AddRow("ad1", "owner1", "Bike", "Fast", 100.0, "EUR", true, now, now).
			AddRow("ad2", "owner2", "Lamp", "", 5.0, "EUR", true, nil, now))

	ads, err := s.ListAvailableAds(context.Background(), true)
	if err != nil {
		t.Fatalf("ListAvailableAds: %v", err)
	}
	if len(ads) != 2 {
		t.Fatalf("got %d ads, want 2", len(ads))
	}
	if ads[0].PublishedAt == nil {
		t.Error("ad1 should have a publication time")
	}
	if ads[1].PublishedAt != nil {
		t.Error("ad2 should not have a publication time")
	}
}
