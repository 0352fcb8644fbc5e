package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"bindash-server/internal/config"
	"bindash-server/internal/modules/dashboard/types"
	"bindash-server/internal/sensorapi"
)

// ErrFetchFailed is wrapped by Load under the strict policy.
var ErrFetchFailed = errors.New("fetch failed")

// AlarmsPath is read through GetData on every load. The values are kept on
// the snapshot but feed no chart or statistic.
const AlarmsPath = "/alarms"

// DataSource is the backend data API.
type DataSource interface {
	GetBins(ctx context.Context) ([]sensorapi.Bin, error)
	GetWeather(ctx context.Context) ([]sensorapi.Weather, error)
	GetPedestrian(ctx context.Context) ([]sensorapi.Pedestrian, error)
	GetBinStatus(ctx context.Context, id string) (*sensorapi.Bin, error)
	GetBinDetails(ctx context.Context, id string) (*sensorapi.DetailedBin, error)
	GetData(ctx context.Context, path string, fn func(json.RawMessage) error) error
}

type Loader struct {
	source DataSource
	strict bool
	logger *slog.Logger
	now    func() time.Time
}

func NewLoader(source DataSource, policy string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		source: source,
		strict: policy == config.PolicyStrict,
		logger: logger.With("component", "dashboard_loader"),
		now:    time.Now,
	}
}

// Load fetches every collection concurrently and derives the aggregates.
//
// Under the degrade policy fetch failures are recorded on the snapshot and
// the returned error is only non-nil when ctx itself ends. Under the strict
// policy a failure of bins, weather or pedestrian cancels the remaining
// fetches and is returned wrapped in ErrFetchFailed.
func (l *Loader) Load(ctx context.Context) (types.Snapshot, error) {
	snap := types.Snapshot{TakenAt: l.now()}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		snap.Alarms = fetch(gctx, l.logger, types.SourceAlarms, l.collectAlarms)
		return nil
	})

	g.Go(func() error {
		snap.Bins = fetch(gctx, l.logger, types.SourceBins, l.source.GetBins)
		if err := l.check(types.SourceBins, snap.Bins.Err); err != nil {
			return err
		}
		if len(snap.Bins.Value) == 0 {
			l.logger.Debug("no bins, skipping first-bin lookups")
			return nil
		}

		id := snap.Bins.Value[0].ID
		var lookups errgroup.Group
		lookups.Go(func() error {
			snap.FirstBinStatus = fetch(gctx, l.logger, types.SourceFirstBinStatus, func(ctx context.Context) (*sensorapi.Bin, error) {
				return l.source.GetBinStatus(ctx, id)
			})
			return nil
		})
		lookups.Go(func() error {
			snap.FirstBinDetails = fetch(gctx, l.logger, types.SourceFirstBinDetails, func(ctx context.Context) (*sensorapi.DetailedBin, error) {
				return l.source.GetBinDetails(ctx, id)
			})
			return nil
		})
		return lookups.Wait()
	})

	g.Go(func() error {
		snap.Weather = fetch(gctx, l.logger, types.SourceWeather, l.source.GetWeather)
		return l.check(types.SourceWeather, snap.Weather.Err)
	})

	g.Go(func() error {
		snap.Pedestrian = fetch(gctx, l.logger, types.SourcePedestrian, l.source.GetPedestrian)
		return l.check(types.SourcePedestrian, snap.Pedestrian.Err)
	})

	err := g.Wait()

	snap.Aggregates = ComputeAggregates(snap.Bins.Value, snap.Weather.Value)

	if err != nil {
		return snap, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return snap, ctxErr
	}
	if failed := snap.FailedSources(); len(failed) > 0 {
		l.logger.Info("dashboard loaded with failures", "failed", failed)
	}
	return snap, nil
}

func (l *Loader) check(source string, err error) error {
	if err == nil || !l.strict {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrFetchFailed, source, err)
}

func (l *Loader) collectAlarms(ctx context.Context) ([]json.RawMessage, error) {
	var values []json.RawMessage
	err := l.source.GetData(ctx, AlarmsPath, func(v json.RawMessage) error {
		values = append(values, v)
		return nil
	})
	return values, err
}

func fetch[T any](ctx context.Context, logger *slog.Logger, source string, call func(context.Context) (T, error)) types.Result[T] {
	start := time.Now()
	v, err := call(ctx)
	if err != nil {
		logger.Warn("fetch failed",
			"source", source,
			"duration", time.Since(start),
			"error", err,
		)
		return types.Failed[T](err)
	}
	logger.Debug("fetched", "source", source, "duration", time.Since(start))
	return types.OK(v)
}
