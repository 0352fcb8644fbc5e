package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"bindash-server/internal/modules/dashboard/charts"
	"bindash-server/internal/modules/dashboard/repository"
	"bindash-server/internal/modules/dashboard/types"
	"bindash-server/internal/sensorapi"
)

type DashboardController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type SnapshotLoader interface {
	Load(ctx context.Context) (types.Snapshot, error)
}

// BinLookup serves the per-bin proxy endpoints.
type BinLookup interface {
	GetBinStatus(ctx context.Context, id string) (*sensorapi.Bin, error)
	GetBinDetails(ctx context.Context, id string) (*sensorapi.DetailedBin, error)
}

type Options struct {
	Title    string
	Location *time.Location
	LiveURL  string
	Logger   *slog.Logger
}

type dashboardControllerImpl struct {
	loader     SnapshotLoader
	bins       BinLookup
	repository repository.DashboardRepository
	builder    *charts.Builder
	title      string
	location   *time.Location
	liveURL    string
	logger     *slog.Logger
}

func NewDashboardController(loader SnapshotLoader, bins BinLookup, repository repository.DashboardRepository, builder *charts.Builder, opts Options) DashboardController {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &dashboardControllerImpl{
		loader:     loader,
		bins:       bins,
		repository: repository,
		builder:    builder,
		title:      opts.Title,
		location:   opts.Location,
		liveURL:    opts.LiveURL,
		logger:     opts.Logger.With("component", "dashboard_controller"),
	}
}

func (c *dashboardControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /", c.handleDashboard)
	mux.HandleFunc("GET /partials/summary", c.handleSummaryPartial)
	mux.HandleFunc("GET /partials/alarms", c.handleAlarmsPartial)
	mux.HandleFunc("GET /api/v1/dashboard", c.handleDashboardJSON)
	mux.HandleFunc("GET /api/v1/bins/{id}/status", c.handleBinStatus)
	mux.HandleFunc("GET /api/v1/bins/{id}/details", c.handleBinDetails)
	mux.HandleFunc("GET /api/v1/snapshots", c.handleSnapshots)
	mux.HandleFunc("GET /api/v1/alarms", c.handleAlarms)
}
