package views

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"time"

	"bindash-server/internal/modules/dashboard/charts"
	"bindash-server/internal/modules/dashboard/types"
	"bindash-server/internal/sensorapi"
)

var dashboardTmpl *template.Template

// Placeholder shown for an undefined statistic.
const Undefined = "—"

var funcs = template.FuncMap{
	"clock": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(charts.TimeLabelLayout)
	},
}

// loadTemplatesFromFS loads dashboard templates from the given fs and dir.
// Used by LoadTemplates and by tests to simulate failure scenarios.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	dashboardTmpl, err = template.New("dashboard").Funcs(funcs).ParseFS(sub, "*.html", "partials/*.html")
	if err != nil {
		return err
	}
	return nil
}

// LoadTemplates loads embedded dashboard templates. Call during startup before
// serving requests; if it returns an error, do not start the server.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

// Stat is one summary statistic card.
type Stat struct {
	Label   string
	Value   string
	Unit    string
	Defined bool
}

// SummaryData is the view model for the summary partial.
type SummaryData struct {
	Stats   []Stat
	TakenAt time.Time
	Failed  []string

	BinCount        int
	WeatherCount    int
	PedestrianCount int
}

// BinCard describes the first bin's status and details lookups.
type BinCard struct {
	Status  *sensorapi.Bin
	Details *sensorapi.DetailedBin
	Failed  bool
}

type DashboardData struct {
	Title    string
	Summary  SummaryData
	Targets  charts.RenderTargets
	Render   charts.RenderSpec
	FirstBin *BinCard
	Alarms   []types.AlarmRecord
	LiveURL  string
}

// NewSummary builds the summary view model. TakenAt is shown in loc.
func NewSummary(snap types.Snapshot, loc *time.Location) SummaryData {
	if loc == nil {
		loc = time.Local
	}
	agg := snap.Aggregates
	s := SummaryData{
		Stats: []Stat{
			stat("Average bin temperature", agg.AverageTemperature, "°C"),
			stat("Average fill level", agg.AverageFillLevel, "%"),
			stat("Average air temperature", agg.AverageAirTemp, "°C"),
			stat("Last precipitation", agg.LastPrecipitation, "mm"),
		},
		BinCount:        len(snap.Bins.Value),
		WeatherCount:    len(snap.Weather.Value),
		PedestrianCount: len(snap.Pedestrian.Value),
	}
	if !snap.TakenAt.IsZero() {
		s.TakenAt = snap.TakenAt.In(loc)
	}
	if !snap.Bins.Ok() {
		s.Failed = append(s.Failed, types.SourceBins)
	}
	if !snap.Weather.Ok() {
		s.Failed = append(s.Failed, types.SourceWeather)
	}
	if !snap.Pedestrian.Ok() {
		s.Failed = append(s.Failed, types.SourcePedestrian)
	}
	return s
}

// NewBinCard returns nil when the lookups were skipped.
func NewBinCard(snap types.Snapshot) *BinCard {
	status, details := snap.FirstBinStatus, snap.FirstBinDetails
	if status.Ok() && details.Ok() && status.Value == nil && details.Value == nil {
		return nil
	}
	return &BinCard{
		Status:  status.Value,
		Details: details.Value,
		Failed:  !status.Ok() || !details.Ok(),
	}
}

func stat(label string, v *float64, unit string) Stat {
	if v == nil {
		return Stat{Label: label, Value: Undefined, Unit: unit}
	}
	return Stat{Label: label, Value: fmt.Sprintf("%.1f", *v), Unit: unit, Defined: true}
}

func RenderDashboard(w io.Writer, data *DashboardData) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "dashboard.html", data)
}

// RenderSummaryPartial executes only the summary partial into w.
// Use for HTMX fragment refresh.
func RenderSummaryPartial(w io.Writer, data *SummaryData) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "partials/summary.html", data)
}

// RenderAlarmsPartial executes only the alarms list partial into w.
func RenderAlarmsPartial(w io.Writer, alarms []types.AlarmRecord) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "partials/alarms.html", alarms)
}
