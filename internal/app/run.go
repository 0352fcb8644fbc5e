package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"bindash-server/internal/config"
	db "bindash-server/internal/db"
	"bindash-server/internal/db/migrate"
	httpapi "bindash-server/internal/httpapi"
	"bindash-server/internal/live"
	"bindash-server/internal/logging"
	dashboard "bindash-server/internal/modules/dashboard"
	dashboardviews "bindash-server/internal/modules/dashboard/views"
	"bindash-server/internal/mqtt"
	"bindash-server/internal/sensorapi"
)

const liveURL = "/ws"

func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"staticDir", cfg.StaticDir,
		"dbDriver", cfg.DBDriver,
		"sqlitePath", cfg.SQLitePath,
		"dbMaxOpenConns", cfg.MaxOpenConns,
		"dbMaxIdleConns", cfg.MaxIdleConns,
		"apiBaseURL", cfg.APIBaseURL,
		"apiTimeout", cfg.APITimeout,
		"fetchErrorPolicy", cfg.FetchErrorPolicy,
		"displayTZ", cfg.DisplayLocation.String(),
		"snapshotInterval", cfg.SnapshotInterval,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttAlarmTopic", cfg.MQTTAlarmTopic,
	)

	dbConn, err := db.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			logger.Error("db close", logging.Err(closeErr))
		}
	}()
	logger.Info("database connection successful", "driver", cfg.DBDriver)

	if err := migrate.Run(ctx, dbConn); err != nil {
		return err
	}

	if err := dashboardviews.LoadTemplates(); err != nil {
		return err
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	workers, workerCtx := errgroup.WithContext(workerCtx)

	hub := live.NewHub(logger.With("component", "live"))
	workers.Go(func() error {
		hub.Run(workerCtx)
		return nil
	})

	source := sensorapi.NewClient(cfg.APIBaseURL, cfg.APITimeout, logger.With("component", "sensorapi"))

	var subscriber *mqtt.Subscriber
	deps := dashboard.Deps{
		DB:        dbConn,
		Source:    source,
		Publisher: hub,
		LiveURL:   liveURL,
		Logger:    logger,
	}
	var mqttStatus httpapi.ConnectionStatus
	if cfg.MQTTEnabled() {
		subscriber = mqtt.NewSubscriber(cfg, logger.With("component", "mqtt"))
		deps.Subscriber = subscriber
		mqttStatus = subscriber
	}

	mux := httpapi.NewMux(dbConn, cfg.StaticDir, mqttStatus)
	feature := dashboard.RegisterFeature(mux, cfg, deps)
	mux.HandleFunc("GET "+liveURL, live.Handler(hub, cfg.CORSAllowedOrigins))

	// RegisterFeature installs the alarm handler, so Connect comes after it.
	if subscriber != nil {
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = subscriber.Connect(connectCtx)
		connectCancel()
		if err != nil {
			logger.Warn("mqtt connection failed (continuing without alarms)", logging.Err(err))
		}
	}

	if feature.Recorder != nil {
		workers.Go(func() error {
			err := feature.Recorder.Run(workerCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	srv := httpapi.NewServer(cfg, mux, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	serverDone := false
	select {
	case <-ctx.Done():
	case <-workerCtx.Done():
		// a worker failed before shutdown was requested
	case serveErr = <-errCh:
		serverDone = true
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("stopping background workers")
	stopWorkers()
	workerErr := workers.Wait()

	if subscriber != nil {
		logger.Info("mqtt disconnecting")
		subscriber.Disconnect()
	}

	if !serverDone {
		logger.Info("http shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	return errors.Join(serveErr, workerErr, ctx.Err())
}
