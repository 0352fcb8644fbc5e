package dashboard

import (
	"context"
	"log/slog"
	"time"

	"bindash-server/internal/modules/dashboard/repository"
	"bindash-server/internal/modules/dashboard/service"
	"bindash-server/internal/modules/dashboard/types"
	"bindash-server/internal/mqtt"
	"bindash-server/internal/sensorapi"
)

const alarmStoreTimeout = 5 * time.Second

// registerMQTTHandler stores each alarm and pushes it to live clients.
func registerMQTTHandler(subscriber mqtt.AlarmSubscriber, repo repository.DashboardRepository, publisher service.Publisher, logger *slog.Logger) {
	subscriber.SetMessageHandler(func(alarm sensorapi.Alarm) error {
		logger.Debug("processing alarm message",
			"bin_id", alarm.BinID,
			"type", alarm.Type,
			"severity", alarm.Severity,
		)

		rec := &types.AlarmRecord{
			BinID:      alarm.BinID,
			Type:       alarm.Type,
			Severity:   alarm.Severity,
			Message:    alarm.Message,
			RaisedAt:   alarm.Timestamp,
			ReceivedAt: time.Now().UTC(),
		}

		ctx, cancel := context.WithTimeout(context.Background(), alarmStoreTimeout)
		defer cancel()
		if err := repo.InsertAlarm(ctx, rec); err != nil {
			logger.Error("failed to insert alarm",
				"bin_id", alarm.BinID,
				"error", err,
			)
			return err
		}

		if publisher != nil {
			publisher.Broadcast("alarm", rec)
		}
		logger.Debug("stored alarm", "id", rec.ID, "bin_id", alarm.BinID)
		return nil
	})
}
