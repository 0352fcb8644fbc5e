package controller

import (
	"bytes"
	"errors"
	"net/http"

	"bindash-server/internal/modules/dashboard/charts"
	"bindash-server/internal/modules/dashboard/types"
	"bindash-server/internal/modules/dashboard/views"
	"bindash-server/internal/sensorapi"
	"bindash-server/internal/utils"
)

const recentAlarms = 10

func (c *dashboardControllerImpl) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	snap, err := c.loader.Load(r.Context())
	if err != nil {
		c.logger.Warn("dashboard: load failed", "error", err)
		utils.WriteError(w, http.StatusBadGateway, "failed to load sensor data")
		return
	}

	alarms, err := c.repository.GetAlarms(r.Context(), recentAlarms)
	if err != nil {
		c.logger.Error("dashboard: get alarms failed", "error", err)
		alarms = nil
	}

	data := &views.DashboardData{
		Title:    c.title,
		Summary:  views.NewSummary(snap, c.location),
		Targets:  c.builder.Targets(),
		Render:   c.builder.Build(snap),
		FirstBin: views.NewBinCard(snap),
		Alarms:   alarms,
		LiveURL:  c.liveURL,
	}

	var buf bytes.Buffer
	if err := views.RenderDashboard(&buf, data); err != nil {
		c.logger.Error("dashboard template render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

func (c *dashboardControllerImpl) handleSummaryPartial(w http.ResponseWriter, r *http.Request) {
	snap, err := c.loader.Load(r.Context())
	if err != nil {
		c.logger.Warn("summary: load failed", "error", err)
		utils.WriteError(w, http.StatusBadGateway, "failed to load sensor data")
		return
	}

	summary := views.NewSummary(snap, c.location)
	var buf bytes.Buffer
	if err := views.RenderSummaryPartial(&buf, &summary); err != nil {
		c.logger.Error("summary partial render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

func (c *dashboardControllerImpl) handleAlarmsPartial(w http.ResponseWriter, r *http.Request) {
	alarms, err := c.repository.GetAlarms(r.Context(), recentAlarms)
	if err != nil {
		c.logger.Error("alarms partial: get alarms failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load alarms")
		return
	}

	var buf bytes.Buffer
	if err := views.RenderAlarmsPartial(&buf, alarms); err != nil {
		c.logger.Error("alarms partial render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

type dashboardResponse struct {
	types.Snapshot
	FailedSources []string          `json:"failedSources"`
	Degraded      bool              `json:"degraded"`
	Render        charts.RenderSpec `json:"render"`
}

func (c *dashboardControllerImpl) handleDashboardJSON(w http.ResponseWriter, r *http.Request) {
	snap, err := c.loader.Load(r.Context())
	if err != nil {
		c.logger.Warn("dashboard api: load failed", "error", err)
		utils.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}

	failed := snap.FailedSources()
	if failed == nil {
		failed = []string{}
	}
	utils.WriteJSON(w, http.StatusOK, dashboardResponse{
		Snapshot:      snap,
		FailedSources: failed,
		Degraded:      snap.Degraded(),
		Render:        c.builder.Build(snap),
	})
}

func (c *dashboardControllerImpl) handleBinStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing bin id")
		return
	}

	bin, err := c.bins.GetBinStatus(r.Context(), id)
	if err != nil {
		c.writeLookupError(w, id, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, bin)
}

func (c *dashboardControllerImpl) handleBinDetails(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing bin id")
		return
	}

	details, err := c.bins.GetBinDetails(r.Context(), id)
	if err != nil {
		c.writeLookupError(w, id, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, details)
}

func (c *dashboardControllerImpl) writeLookupError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, sensorapi.ErrNotFound) {
		utils.WriteError(w, http.StatusNotFound, "bin not found")
		return
	}
	c.logger.Warn("bin lookup failed", "bin_id", id, "error", err)
	utils.WriteError(w, http.StatusBadGateway, "bin lookup failed")
}

func (c *dashboardControllerImpl) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimitQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := c.repository.GetSnapshots(r.Context(), limit)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, records)
}

func (c *dashboardControllerImpl) handleAlarms(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimitQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	alarms, err := c.repository.GetAlarms(r.Context(), limit)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, alarms)
}
