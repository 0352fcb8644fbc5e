package service

import (
	"math"

	"bindash-server/internal/modules/dashboard/types"
	"bindash-server/internal/sensorapi"
)

// Mean returns the arithmetic mean of values. ok is false for an empty slice.
// It keeps a running mean so values near the float64 limit do not overflow.
func Mean(values []float64) (mean float64, ok bool) {
	if len(values) == 0 {
		return 0, false
	}
	for i, v := range values {
		mean += (v - mean) / float64(i+1)
	}
	return mean, true
}

func AverageTemperature(bins []sensorapi.Bin) (float64, bool) {
	values := make([]float64, len(bins))
	for i, b := range bins {
		values[i] = b.Temperature.Float64()
	}
	return Mean(values)
}

func AverageFillLevel(bins []sensorapi.Bin) (float64, bool) {
	values := make([]float64, len(bins))
	for i, b := range bins {
		values[i] = b.FillLevel.Float64()
	}
	return Mean(values)
}

func AverageAirTemp(weather []sensorapi.Weather) (float64, bool) {
	values := make([]float64, len(weather))
	for i, w := range weather {
		values[i] = w.AirTemp.Float64()
	}
	return Mean(values)
}

// LastPrecipitation is the precipitation of the final weather record.
func LastPrecipitation(weather []sensorapi.Weather) (float64, bool) {
	if len(weather) == 0 {
		return 0, false
	}
	return weather[len(weather)-1].Precipitation.Float64(), true
}

// ComputeAggregates derives the four summary statistics. A failed or empty
// collection, or a non-finite result, leaves the statistic nil.
func ComputeAggregates(bins []sensorapi.Bin, weather []sensorapi.Weather) types.Aggregates {
	return types.Aggregates{
		AverageTemperature: optional(AverageTemperature(bins)),
		AverageFillLevel:   optional(AverageFillLevel(bins)),
		AverageAirTemp:     optional(AverageAirTemp(weather)),
		LastPrecipitation:  optional(LastPrecipitation(weather)),
	}
}

func optional(v float64, ok bool) *float64 {
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
