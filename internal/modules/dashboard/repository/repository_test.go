package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"bindash-server/internal/db/migrate"
	"bindash-server/internal/modules/dashboard/types"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})
	if err := migrate.Run(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func ptr(f float64) *float64 { return &f }

func TestNewRepository(t *testing.T) {
	if repo := NewRepository(setupTestDB(t)); repo == nil {
		t.Fatal("NewRepository returned nil")
	}
}

func TestGetSnapshots_Empty(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	got, err := repo.GetSnapshots(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetSnapshots: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("GetSnapshots: got %d rows, want 0", len(got))
	}
}

func TestInsertSnapshot_RoundTrip(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	first := &types.SnapshotRecord{
		TakenAt: base,
		Aggregates: types.Aggregates{
			AverageTemperature: ptr(21),
			AverageFillLevel:   ptr(50),
			AverageAirTemp:     ptr(19),
			LastPrecipitation:  ptr(2),
		},
		BinCount:        2,
		WeatherCount:    2,
		PedestrianCount: 1,
	}
	second := &types.SnapshotRecord{
		TakenAt:         base.Add(time.Minute),
		BinCount:        0,
		WeatherCount:    3,
		PedestrianCount: 4,
		FailedSources:   []string{"bins", "binStatus"},
	}

	for _, rec := range []*types.SnapshotRecord{first, second} {
		if err := repo.InsertSnapshot(ctx, rec); err != nil {
			t.Fatalf("InsertSnapshot: %v", err)
		}
		if rec.ID == "" {
			t.Fatal("InsertSnapshot did not assign an ID")
		}
	}

	got, err := repo.GetSnapshots(ctx, 10)
	if err != nil {
		t.Fatalf("GetSnapshots: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetSnapshots: got %d rows, want 2", len(got))
	}
	if got[0].ID != second.ID {
		t.Errorf("first row = %s; want newest %s", got[0].ID, second.ID)
	}
	if !got[1].TakenAt.Equal(base) {
		t.Errorf("TakenAt = %v; want %v", got[1].TakenAt, base)
	}
	if got[1].AverageFillLevel == nil || *got[1].AverageFillLevel != 50 {
		t.Errorf("AverageFillLevel = %v; want 50", got[1].AverageFillLevel)
	}
	if got[0].AverageTemperature != nil {
		t.Errorf("AverageTemperature = %v; want NULL round trip", *got[0].AverageTemperature)
	}
	if len(got[0].FailedSources) != 2 || got[0].FailedSources[1] != "binStatus" {
		t.Errorf("FailedSources = %v", got[0].FailedSources)
	}
	if got[1].FailedSources != nil {
		t.Errorf("FailedSources = %v; want nil", got[1].FailedSources)
	}

	limited, err := repo.GetSnapshots(ctx, 1)
	if err != nil {
		t.Fatalf("GetSnapshots(limit 1): %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("GetSnapshots(limit 1) returned %d rows", len(limited))
	}
}

func TestInsertSnapshot_DuplicateID(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	rec := &types.SnapshotRecord{ID: "fixed", TakenAt: time.Now()}

	if err := repo.InsertSnapshot(ctx, rec); err != nil {
		t.Fatalf("InsertSnapshot: %v", err)
	}
	if err := repo.InsertSnapshot(ctx, rec); err == nil {
		t.Fatal("InsertSnapshot with duplicate id: want error")
	}
}

func TestAlarms_RoundTrip(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	raised := time.Date(2024, 5, 1, 9, 0, 0, 0, time.FixedZone("AEST", 10*60*60))
	received := raised.Add(2 * time.Second)

	older := &types.AlarmRecord{BinID: "A", Type: "fill", Severity: "warning", Message: "80% full", RaisedAt: raised, ReceivedAt: received}
	newer := &types.AlarmRecord{BinID: "B", Type: "fire", Severity: "critical", RaisedAt: raised.Add(time.Hour), ReceivedAt: received}

	for _, a := range []*types.AlarmRecord{older, newer} {
		if err := repo.InsertAlarm(ctx, a); err != nil {
			t.Fatalf("InsertAlarm: %v", err)
		}
	}

	got, err := repo.GetAlarms(ctx, 10)
	if err != nil {
		t.Fatalf("GetAlarms: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetAlarms: got %d, want 2", len(got))
	}
	if got[0].BinID != "B" || got[1].BinID != "A" {
		t.Errorf("order = %s, %s; want newest first", got[0].BinID, got[1].BinID)
	}
	if got[1].Message != "80% full" || got[1].Severity != "warning" {
		t.Errorf("alarm = %+v", got[1])
	}
	if !got[1].RaisedAt.Equal(raised) || got[1].RaisedAt.Location() != time.UTC {
		t.Errorf("RaisedAt = %v; want %v in UTC", got[1].RaisedAt, raised)
	}
	if !got[1].ReceivedAt.Equal(received) {
		t.Errorf("ReceivedAt = %v; want %v", got[1].ReceivedAt, received)
	}
}
