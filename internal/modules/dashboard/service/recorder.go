package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bindash-server/internal/modules/dashboard/types"
)

type SnapshotLoader interface {
	Load(ctx context.Context) (types.Snapshot, error)
}

type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, rec *types.SnapshotRecord) error
}

// Publisher pushes an event to live clients.
type Publisher interface {
	Broadcast(msgType string, data any)
}

// Recorder periodically loads a snapshot, stores its aggregates and
// broadcasts the stored record.
type Recorder struct {
	loader    SnapshotLoader
	store     SnapshotStore
	publisher Publisher
	interval  time.Duration
	logger    *slog.Logger
}

func NewRecorder(loader SnapshotLoader, store SnapshotStore, publisher Publisher, interval time.Duration, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		loader:    loader,
		store:     store,
		publisher: publisher,
		interval:  interval,
		logger:    logger.With("component", "snapshot_recorder"),
	}
}

// Run records once immediately and then every interval until ctx ends.
// A failed round is logged and the next tick tries again.
func (r *Recorder) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return fmt.Errorf("snapshot interval must be positive, got %v", r.interval)
	}
	r.logger.Info("snapshot recorder started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RecordOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("snapshot round failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.logger.Info("snapshot recorder stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RecordOnce loads, stores and broadcasts a single snapshot.
func (r *Recorder) RecordOnce(ctx context.Context) (*types.SnapshotRecord, error) {
	snap, err := r.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	rec := NewSnapshotRecord(snap)
	if err := r.store.InsertSnapshot(ctx, rec); err != nil {
		return nil, err
	}
	r.logger.Debug("snapshot recorded", "id", rec.ID, "failed", rec.FailedSources)

	if r.publisher != nil {
		r.publisher.Broadcast("snapshot", rec)
	}
	return rec, nil
}

// NewSnapshotRecord reduces a snapshot to its persisted history row.
func NewSnapshotRecord(snap types.Snapshot) *types.SnapshotRecord {
	return &types.SnapshotRecord{
		TakenAt:         snap.TakenAt,
		Aggregates:      snap.Aggregates,
		BinCount:        len(snap.Bins.Value),
		WeatherCount:    len(snap.Weather.Value),
		PedestrianCount: len(snap.Pedestrian.Value),
		FailedSources:   snap.FailedSources(),
	}
}
