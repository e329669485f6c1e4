//go:build integration
// +build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/osmfj/MapComplete/internal/adapters/postgres"
	"github.com/osmfj/MapComplete/internal/core/domain"
	"github.com/osmfj/MapComplete/internal/pkg/config"
)

// setupTestDB connects to the database from config and applies migrations.
func setupTestDB(t *testing.T) *postgres.DB {
	cfg, err := config.Load("mapsync-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)

	if err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestFetchLogRepo_InsertAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewFetchLogRepo(db)
	ctx := context.Background()

	dataTime := time.Now().UTC().Truncate(time.Second)
	rec := &domain.FetchRecord{
		ID:           uuid.NewString(),
		StartedAt:    time.Now().UTC().Add(time.Hour), // newest row
		Duration:     1500 * time.Millisecond,
		ZoomBucket:   15,
		Bounds:       domain.Bounds{North: 50.9, South: 50.8, East: 4.4, West: 4.3},
		Filter:       "amenity=cafe",
		Layers:       []string{"cafes"},
		Outcome:      domain.FetchSucceeded,
		FeatureCount: 42,
		DataTime:     &dataTime,
	}
	if err := repo.Insert(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	// Redelivered events carry the same ID.
	if err := repo.Insert(ctx, rec); err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}

	got, err := repo.ListRecent(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != rec.ID {
		t.Fatalf("expected the inserted record first, got %+v", got)
	}
	if got[0].Duration != rec.Duration || got[0].FeatureCount != 42 || got[0].Layers[0] != "cafes" {
		t.Errorf("round trip mismatch: %+v", got[0])
	}
	if got[0].DataTime == nil || !got[0].DataTime.Equal(dataTime) {
		t.Errorf("expected data time %v, got %v", dataTime, got[0].DataTime)
	}
}
