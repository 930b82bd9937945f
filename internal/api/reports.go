package api

import (
	"net/http"
	"strings"

	"github.com/dennisdiepolder/monti/callreport/internal/aggregator"
	"github.com/dennisdiepolder/monti/callreport/internal/alerts"
	"github.com/dennisdiepolder/monti/callreport/internal/storage"
	"github.com/dennisdiepolder/monti/callreport/internal/types"
	"github.com/rs/zerolog"
)

// ReportHandler serves stored queue metrics
type ReportHandler struct {
	store      storage.Store
	thresholds alerts.Thresholds
	logger     zerolog.Logger
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(store storage.Store, thresholds alerts.Thresholds, logger zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		store:      store,
		thresholds: thresholds,
		logger:     logger.With().Str("component", "report_handler").Logger(),
	}
}

// SummaryResponse is a stored period re-aggregated from scratch
type SummaryResponse struct {
	Period  string             `json:"period"`
	Rows    int                `json:"rows"`
	Summary types.Summary      `json:"summary"`
	Alerts  []types.QueueAlert `json:"alerts"`
}

// GetMetrics returns stored rows
// GET /api/metrics?period=
func (h *ReportHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.listRows(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// GetSummary re-aggregates stored rows into a summary with insights
// GET /api/summary?period=
func (h *ReportHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.listRows(w, r)
	if !ok {
		return
	}

	summary := aggregator.Aggregate(aggregator.RecordsFromRows(rows))
	queueAlerts := alerts.CheckQueueAlerts(summary.ByQueue, h.thresholds)
	if queueAlerts == nil {
		queueAlerts = []types.QueueAlert{}
	}

	writeJSON(w, http.StatusOK, SummaryResponse{
		Period:  strings.TrimSpace(r.URL.Query().Get("period")),
		Rows:    len(rows),
		Summary: summary,
		Alerts:  queueAlerts,
	})
}

func (h *ReportHandler) listRows(w http.ResponseWriter, r *http.Request) ([]types.QueueMetricRow, bool) {
	period := strings.TrimSpace(r.URL.Query().Get("period"))

	rows, err := h.store.ListQueueMetrics(r.Context(), period)
	if err != nil {
		h.logger.Error().Err(err).Str("period", period).Msg("failed to list queue metrics")
		writeError(w, storageStatus(err), "failed to retrieve metrics")
		return nil, false
	}
	if rows == nil {
		rows = []types.QueueMetricRow{}
	}
	return rows, true
}
