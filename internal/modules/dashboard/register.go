package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"

	"bindash-server/internal/config"
	"bindash-server/internal/modules/dashboard/charts"
	"bindash-server/internal/modules/dashboard/controller"
	"bindash-server/internal/modules/dashboard/repository"
	"bindash-server/internal/modules/dashboard/service"
	"bindash-server/internal/mqtt"
)

// Deps are the shared collaborators the dashboard feature is built on.
type Deps struct {
	DB         *sqlx.DB
	Source     service.DataSource
	Publisher  service.Publisher
	Subscriber mqtt.AlarmSubscriber // nil when no broker is configured
	LiveURL    string
	Logger     *slog.Logger
}

// Feature is what the app needs to drive after routes are registered.
type Feature struct {
	Recorder *service.Recorder // nil when SNAPSHOT_INTERVAL is 0
}

func RegisterFeature(mux *http.ServeMux, cfg config.Config, deps Deps) *Feature {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dashboardRepository := repository.NewRepository(deps.DB)
	loader := service.NewLoader(deps.Source, cfg.FetchErrorPolicy, logger)
	builder := charts.NewBuilder(
		charts.TargetsFromConfig(cfg.Targets),
		charts.NewMapSpec(cfg.Map),
		cfg.DisplayLocation,
	)

	dashboardController := controller.NewDashboardController(loader, deps.Source, dashboardRepository, builder, controller.Options{
		Location: cfg.DisplayLocation,
		LiveURL:  deps.LiveURL,
		Logger:   logger,
	})
	dashboardController.RegisterRoutes(mux)

	if deps.Subscriber != nil {
		registerMQTTHandler(deps.Subscriber, dashboardRepository, deps.Publisher, logger.With("component", "alarms"))
	}

	feature := &Feature{}
	if cfg.SnapshotInterval > 0 {
		feature.Recorder = service.NewRecorder(loader, dashboardRepository, deps.Publisher, cfg.SnapshotInterval, logger)
	}
	return feature
}
