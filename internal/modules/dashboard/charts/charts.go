// Package charts builds the JSON configurations handed to Chart.js, Plotly
// and Leaflet on the dashboard page.
package charts

import (
	"math"
	"strings"
	"time"

	"bindash-server/internal/config"
	"bindash-server/internal/modules/dashboard/types"
	"bindash-server/internal/sensorapi"
)

// TimeLabelLayout matches the browser's en-US toLocaleTimeString output.
const TimeLabelLayout = "3:04:05 PM"

// InvalidDate labels a pedestrian record whose lastEdit cannot be parsed.
const InvalidDate = "Invalid Date"

// RenderTargets are the DOM element ids each renderer draws into.
type RenderTargets struct {
	FillChart     string `json:"fillChart"`
	VisitorsChart string `json:"visitorsChart"`
	DemoChart     string `json:"demoChart"`
	Map           string `json:"map"`
}

func TargetsFromConfig(cfg config.TargetConfig) RenderTargets {
	return RenderTargets{
		FillChart:     cfg.FillChart,
		VisitorsChart: cfg.VisitorsChart,
		DemoChart:     cfg.DemoChart,
		Map:           cfg.Map,
	}
}

// ChartJS is a Chart.js constructor config.
type ChartJS struct {
	Type    string         `json:"type"`
	Data    ChartData      `json:"data"`
	Options map[string]any `json:"options,omitempty"`
}

type ChartData struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

type Dataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BackgroundColor string    `json:"backgroundColor,omitempty"`
	BorderColor     string    `json:"borderColor,omitempty"`
	BorderWidth     int       `json:"borderWidth,omitempty"`
	Fill            *bool     `json:"fill,omitempty"`
	Tension         float64   `json:"tension,omitempty"`
}

// PlotlyTrace is one trace passed to Plotly.newPlot.
type PlotlyTrace struct {
	X    []string  `json:"x"`
	Y    []float64 `json:"y"`
	Type string    `json:"type"`
}

// FillLevelChart is a bar chart of fill level per bin, in bin order.
func FillLevelChart(bins []sensorapi.Bin) ChartJS {
	labels := make([]string, len(bins))
	data := make([]float64, len(bins))
	for i, b := range bins {
		labels[i] = b.ID
		data[i] = b.FillLevel.Float64()
	}
	return ChartJS{
		Type: "bar",
		Data: ChartData{
			Labels: labels,
			Datasets: []Dataset{{
				Label:           "Fill Level",
				Data:            data,
				BackgroundColor: "rgba(255, 99, 132, 0.2)",
				BorderColor:     "rgba(255, 99, 132, 1)",
				BorderWidth:     1,
			}},
		},
		Options: map[string]any{
			"scales": map[string]any{
				"y": map[string]any{"beginAtZero": true},
			},
		},
	}
}

// VisitorsChart is a line chart of visitor counts, one point per record.
func VisitorsChart(records []sensorapi.Pedestrian, loc *time.Location) ChartJS {
	labels := make([]string, len(records))
	data := make([]float64, len(records))
	for i, r := range records {
		labels[i] = TimeLabel(r.LastEdit, loc)
		data[i] = r.NumVisitors.Float64()
	}
	fill := false
	return ChartJS{
		Type: "line",
		Data: ChartData{
			Labels: labels,
			Datasets: []Dataset{{
				Label:       "Number of Visitors",
				Data:        data,
				BorderColor: "blue",
				Fill:        &fill,
				Tension:     0.1,
			}},
		},
		Options: map[string]any{
			"scales": map[string]any{
				"x": map[string]any{"title": map[string]any{"display": true, "text": "Time"}},
				"y": map[string]any{"title": map[string]any{"display": true, "text": "Number of Visitors"}},
			},
		},
	}
}

// DemoChart is the fixed Plotly bar chart.
func DemoChart() []PlotlyTrace {
	return []PlotlyTrace{{
		X:    []string{"giraffes", "orangutans", "monkeys"},
		Y:    []float64{20, 14, 23},
		Type: "bar",
	}}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// dateOnlyLayout values are UTC midnight, as browsers read them.
const dateOnlyLayout = "2006-01-02"

// TimeLabel formats a lastEdit timestamp as a local time of day. Date-time
// values without a zone are read in loc.
func TimeLabel(s string, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc).Format(TimeLabelLayout)
		}
	}
	if t, err := time.Parse(dateOnlyLayout, s); err == nil {
		return t.In(loc).Format(TimeLabelLayout)
	}
	return InvalidDate
}

// RenderSpec is everything the page script needs to draw, in draw order.
type RenderSpec struct {
	Targets  RenderTargets `json:"targets"`
	Map      MapSpec       `json:"map"`
	Fill     *ChartJS      `json:"fill"`
	Visitors *ChartJS      `json:"visitors"`
	Demo     []PlotlyTrace `json:"demo"`
}

// Builder turns snapshots into render specs.
type Builder struct {
	targets  RenderTargets
	mapSpec  MapSpec
	location *time.Location
}

func NewBuilder(targets RenderTargets, mapSpec MapSpec, loc *time.Location) *Builder {
	if loc == nil {
		loc = time.Local
	}
	return &Builder{targets: targets, mapSpec: mapSpec, location: loc}
}

// Build leaves a chart nil when its collection failed to load or carries a
// value JSON cannot encode.
func (b *Builder) Build(snap types.Snapshot) RenderSpec {
	spec := RenderSpec{
		Targets: b.targets,
		Map:     b.mapSpec,
		Demo:    DemoChart(),
	}
	if snap.Bins.Ok() {
		c := FillLevelChart(snap.Bins.Value)
		if c.finite() {
			spec.Fill = &c
		}
	}
	if snap.Pedestrian.Ok() {
		c := VisitorsChart(snap.Pedestrian.Value, b.location)
		if c.finite() {
			spec.Visitors = &c
		}
	}
	return spec
}

func (c ChartJS) finite() bool {
	for _, ds := range c.Data.Datasets {
		for _, v := range ds.Data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

func (b *Builder) Targets() RenderTargets {
	return b.targets
}
