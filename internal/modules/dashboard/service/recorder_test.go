package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bindash-server/internal/modules/dashboard/types"
	"bindash-server/internal/sensorapi"
)

type stubLoader struct {
	snap types.Snapshot
	err  error
}

func (s *stubLoader) Load(ctx context.Context) (types.Snapshot, error) {
	return s.snap, s.err
}

type memStore struct {
	mu      sync.Mutex
	records []*types.SnapshotRecord
	err     error
}

func (m *memStore) InsertSnapshot(ctx context.Context, rec *types.SnapshotRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	rec.ID = "id-" + time.Now().Format("150405.000000000")
	m.records = append(m.records, rec)
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []string
}

func (p *recordingPublisher) Broadcast(msgType string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msgType)
}

func sampleSnapshot() types.Snapshot {
	bins := []sensorapi.Bin{{ID: "A", FillLevel: 40, Temperature: 20}}
	weather := []sensorapi.Weather{{AirTemp: 18, Precipitation: 1}}
	return types.Snapshot{
		TakenAt:    time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		Bins:       types.OK(bins),
		Weather:    types.OK(weather),
		Pedestrian: types.Failed[[]sensorapi.Pedestrian](errors.New("down")),
		Aggregates: ComputeAggregates(bins, weather),
	}
}

func TestNewSnapshotRecord(t *testing.T) {
	rec := NewSnapshotRecord(sampleSnapshot())

	if rec.BinCount != 1 || rec.WeatherCount != 1 || rec.PedestrianCount != 0 {
		t.Errorf("counts = %d/%d/%d", rec.BinCount, rec.WeatherCount, rec.PedestrianCount)
	}
	if rec.AverageFillLevel == nil || *rec.AverageFillLevel != 40 {
		t.Errorf("AverageFillLevel = %v", rec.AverageFillLevel)
	}
	if len(rec.FailedSources) != 1 || rec.FailedSources[0] != types.SourcePedestrian {
		t.Errorf("FailedSources = %v", rec.FailedSources)
	}
}

func TestRecorder_RecordOnce(t *testing.T) {
	store := &memStore{}
	pub := &recordingPublisher{}
	r := NewRecorder(&stubLoader{snap: sampleSnapshot()}, store, pub, time.Minute, discardLogger())

	rec, err := r.RecordOnce(context.Background())
	if err != nil {
		t.Fatalf("RecordOnce() error = %v", err)
	}
	if rec.ID == "" {
		t.Error("record was not stored")
	}
	if store.count() != 1 {
		t.Errorf("stored %d records; want 1", store.count())
	}
	if len(pub.sent) != 1 || pub.sent[0] != "snapshot" {
		t.Errorf("broadcasts = %v; want [snapshot]", pub.sent)
	}
}

func TestRecorder_RecordOnce_errors(t *testing.T) {
	t.Run("load", func(t *testing.T) {
		pub := &recordingPublisher{}
		r := NewRecorder(&stubLoader{err: ErrFetchFailed}, &memStore{}, pub, time.Minute, discardLogger())
		if _, err := r.RecordOnce(context.Background()); !errors.Is(err, ErrFetchFailed) {
			t.Errorf("err = %v; want ErrFetchFailed", err)
		}
		if len(pub.sent) != 0 {
			t.Error("nothing should be broadcast on failure")
		}
	})

	t.Run("store", func(t *testing.T) {
		pub := &recordingPublisher{}
		r := NewRecorder(&stubLoader{snap: sampleSnapshot()}, &memStore{err: errors.New("disk full")}, pub, time.Minute, discardLogger())
		if _, err := r.RecordOnce(context.Background()); err == nil {
			t.Error("err = nil; want store error")
		}
		if len(pub.sent) != 0 {
			t.Error("nothing should be broadcast on failure")
		}
	})
}

func TestRecorder_Run(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(&stubLoader{snap: sampleSnapshot()}, store, nil, 20*time.Millisecond, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()

	if err := r.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() = %v; want deadline exceeded", err)
	}
	if n := store.count(); n < 3 {
		t.Errorf("recorded %d snapshots; want at least 3", n)
	}
}

func TestRecorder_Run_invalidInterval(t *testing.T) {
	r := NewRecorder(&stubLoader{}, &memStore{}, nil, 0, discardLogger())
	if err := r.Run(context.Background()); err == nil {
		t.Error("Run() with zero interval = nil; want error")
	}
}
