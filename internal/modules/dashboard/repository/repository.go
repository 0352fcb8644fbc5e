package repository

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"bindash-server/internal/modules/dashboard/types"
)

//go:embed sql/insert-snapshot.sql
var insertSnapshotSQL string

//go:embed sql/get-snapshots.sql
var getSnapshotsSQL string

//go:embed sql/insert-alarm.sql
var insertAlarmSQL string

//go:embed sql/get-alarms.sql
var getAlarmsSQL string

type DashboardRepository interface {
	InsertSnapshot(ctx context.Context, rec *types.SnapshotRecord) error
	GetSnapshots(ctx context.Context, limit int) ([]types.SnapshotRecord, error)
	InsertAlarm(ctx context.Context, alarm *types.AlarmRecord) error
	GetAlarms(ctx context.Context, limit int) ([]types.AlarmRecord, error)
}

type repositoryImpl struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) DashboardRepository {
	return &repositoryImpl{db: db}
}

// Timestamps are stored as RFC 3339 UTC text so ordering works the same on
// SQLite and PostgreSQL.
type snapshotRow struct {
	ID                 string   `db:"id"`
	TakenAt            string   `db:"taken_at"`
	AverageTemperature *float64 `db:"average_temperature"`
	AverageFillLevel   *float64 `db:"average_fill_level"`
	AverageAirTemp     *float64 `db:"average_air_temp"`
	LastPrecipitation  *float64 `db:"last_precipitation"`
	BinCount           int      `db:"bin_count"`
	WeatherCount       int      `db:"weather_count"`
	PedestrianCount    int      `db:"pedestrian_count"`
	FailedSources      string   `db:"failed_sources"`
}

type alarmRow struct {
	ID         string `db:"id"`
	BinID      string `db:"bin_id"`
	Type       string `db:"type"`
	Severity   string `db:"severity"`
	Message    string `db:"message"`
	RaisedAt   string `db:"raised_at"`
	ReceivedAt string `db:"received_at"`
}

// InsertSnapshot assigns an ID when rec has none.
func (r *repositoryImpl) InsertSnapshot(ctx context.Context, rec *types.SnapshotRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := snapshotRow{
		ID:                 rec.ID,
		TakenAt:            formatTime(rec.TakenAt),
		AverageTemperature: rec.AverageTemperature,
		AverageFillLevel:   rec.AverageFillLevel,
		AverageAirTemp:     rec.AverageAirTemp,
		LastPrecipitation:  rec.LastPrecipitation,
		BinCount:           rec.BinCount,
		WeatherCount:       rec.WeatherCount,
		PedestrianCount:    rec.PedestrianCount,
		FailedSources:      strings.Join(rec.FailedSources, ","),
	}
	if _, err := r.db.NamedExecContext(ctx, insertSnapshotSQL, row); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (r *repositoryImpl) GetSnapshots(ctx context.Context, limit int) ([]types.SnapshotRecord, error) {
	var rows []snapshotRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(getSnapshotsSQL), limit); err != nil {
		return nil, fmt.Errorf("select snapshots: %w", err)
	}
	out := make([]types.SnapshotRecord, 0, len(rows))
	for _, row := range rows {
		takenAt, err := parseTime(row.TakenAt)
		if err != nil {
			return nil, err
		}
		out = append(out, types.SnapshotRecord{
			ID:      row.ID,
			TakenAt: takenAt,
			Aggregates: types.Aggregates{
				AverageTemperature: row.AverageTemperature,
				AverageFillLevel:   row.AverageFillLevel,
				AverageAirTemp:     row.AverageAirTemp,
				LastPrecipitation:  row.LastPrecipitation,
			},
			BinCount:        row.BinCount,
			WeatherCount:    row.WeatherCount,
			PedestrianCount: row.PedestrianCount,
			FailedSources:   splitSources(row.FailedSources),
		})
	}
	return out, nil
}

// InsertAlarm assigns an ID when alarm has none.
func (r *repositoryImpl) InsertAlarm(ctx context.Context, alarm *types.AlarmRecord) error {
	if alarm.ID == "" {
		alarm.ID = uuid.NewString()
	}
	row := alarmRow{
		ID:         alarm.ID,
		BinID:      alarm.BinID,
		Type:       alarm.Type,
		Severity:   alarm.Severity,
		Message:    alarm.Message,
		RaisedAt:   formatTime(alarm.RaisedAt),
		ReceivedAt: formatTime(alarm.ReceivedAt),
	}
	if _, err := r.db.NamedExecContext(ctx, insertAlarmSQL, row); err != nil {
		return fmt.Errorf("insert alarm: %w", err)
	}
	return nil
}

func (r *repositoryImpl) GetAlarms(ctx context.Context, limit int) ([]types.AlarmRecord, error) {
	var rows []alarmRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(getAlarmsSQL), limit); err != nil {
		return nil, fmt.Errorf("select alarms: %w", err)
	}
	out := make([]types.AlarmRecord, 0, len(rows))
	for _, row := range rows {
		raisedAt, err := parseTime(row.RaisedAt)
		if err != nil {
			return nil, err
		}
		receivedAt, err := parseTime(row.ReceivedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, types.AlarmRecord{
			ID:         row.ID,
			BinID:      row.BinID,
			Type:       row.Type,
			Severity:   row.Severity,
			Message:    row.Message,
			RaisedAt:   raisedAt,
			ReceivedAt: receivedAt,
		})
	}
	return out, nil
}

// Fixed-width fractional seconds keep text ordering chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func splitSources(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
