package types

import (
	"encoding/json"
	"time"

	"bindash-server/internal/sensorapi"
)

// Result is the outcome of one backend fetch. A zero Result (no value, no
// error) means the fetch was skipped.
type Result[T any] struct {
	Value T
	Err   error
}

func OK[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func Failed[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

func (r Result[T]) Ok() bool {
	return r.Err == nil
}

func (r Result[T]) MarshalJSON() ([]byte, error) {
	out := struct {
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
		Value any    `json:"value"`
	}{OK: r.Ok()}
	if r.Err != nil {
		out.Error = r.Err.Error()
	} else {
		out.Value = r.Value
	}
	return json.Marshal(out)
}

// Aggregates are the four summary statistics. nil means undefined (no input
// records), never NaN.
type Aggregates struct {
	AverageTemperature *float64 `json:"averageTemperature"`
	AverageFillLevel   *float64 `json:"averageFillLevel"`
	AverageAirTemp     *float64 `json:"averageAirTemp"`
	LastPrecipitation  *float64 `json:"lastPrecipitation"`
}

// Snapshot is everything one dashboard load fetched and derived.
type Snapshot struct {
	TakenAt         time.Time                      `json:"takenAt"`
	Bins            Result[[]sensorapi.Bin]        `json:"bins"`
	Weather         Result[[]sensorapi.Weather]    `json:"weather"`
	Pedestrian      Result[[]sensorapi.Pedestrian] `json:"pedestrian"`
	FirstBinStatus  Result[*sensorapi.Bin]         `json:"firstBinStatus"`
	FirstBinDetails Result[*sensorapi.DetailedBin] `json:"firstBinDetails"`
	Alarms          Result[[]json.RawMessage]      `json:"alarms"`
	Aggregates      Aggregates                     `json:"aggregates"`
}

// Source names used in logs, failed-source lists and the page.
const (
	SourceBins            = "bins"
	SourceWeather         = "weather"
	SourcePedestrian      = "pedestrian"
	SourceFirstBinStatus  = "binStatus"
	SourceFirstBinDetails = "binDetails"
	SourceAlarms          = "alarms"
)

// FailedSources lists the fetches that failed, in a fixed order.
func (s Snapshot) FailedSources() []string {
	var out []string
	add := func(name string, ok bool) {
		if !ok {
			out = append(out, name)
		}
	}
	add(SourceBins, s.Bins.Ok())
	add(SourceWeather, s.Weather.Ok())
	add(SourcePedestrian, s.Pedestrian.Ok())
	add(SourceFirstBinStatus, s.FirstBinStatus.Ok())
	add(SourceFirstBinDetails, s.FirstBinDetails.Ok())
	add(SourceAlarms, s.Alarms.Ok())
	return out
}

// Degraded reports whether any collection the page renders failed to load.
func (s Snapshot) Degraded() bool {
	return !s.Bins.Ok() || !s.Weather.Ok() || !s.Pedestrian.Ok()
}

// SnapshotRecord is one persisted row of aggregate history.
type SnapshotRecord struct {
	ID              string    `json:"id"`
	TakenAt         time.Time `json:"takenAt"`
	Aggregates      `json:"aggregates"`
	BinCount        int      `json:"binCount"`
	WeatherCount    int      `json:"weatherCount"`
	PedestrianCount int      `json:"pedestrianCount"`
	FailedSources   []string `json:"failedSources"`
}

// AlarmRecord is an alarm received from the feed and stored.
type AlarmRecord struct {
	ID         string    `json:"id"`
	BinID      string    `json:"binId"`
	Type       string    `json:"type"`
	Severity   string    `json:"severity"`
	Message    string    `json:"message"`
	RaisedAt   time.Time `json:"raisedAt"`
	ReceivedAt time.Time `json:"receivedAt"`
}
