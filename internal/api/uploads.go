package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dennisdiepolder/monti/callreport/internal/aggregator"
	"github.com/dennisdiepolder/monti/callreport/internal/alerts"
	"github.com/dennisdiepolder/monti/callreport/internal/auth"
	"github.com/dennisdiepolder/monti/callreport/internal/cache"
	"github.com/dennisdiepolder/monti/callreport/internal/ingestion"
	"github.com/dennisdiepolder/monti/callreport/internal/sheet"
	"github.com/dennisdiepolder/monti/callreport/internal/storage"
	"github.com/dennisdiepolder/monti/callreport/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// room for multipart boundaries and the period field
	multipartOverhead = 1 << 20
	multipartMemory   = 32 << 20
	maxPeriodLength   = 64
)

// UploadHandler runs uploaded spreadsheets through the ingestion pipeline
type UploadHandler struct {
	processor  *ingestion.Processor
	store      storage.Store
	results    *cache.ResultCache
	notifier   Notifier
	recorder   StorageRecorder
	thresholds alerts.Thresholds
	now        func() time.Time
	logger     zerolog.Logger
}

// NewUploadHandler creates a new UploadHandler. A nil notifier disables
// realtime notifications.
func NewUploadHandler(processor *ingestion.Processor, store storage.Store, results *cache.ResultCache, notifier Notifier, thresholds alerts.Thresholds, logger zerolog.Logger) *UploadHandler {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &UploadHandler{
		processor:  processor,
		store:      store,
		results:    results,
		notifier:   notifier,
		recorder:   nopStorageRecorder{},
		thresholds: thresholds,
		now:        time.Now,
		logger:     logger.With().Str("component", "upload_handler").Logger(),
	}
}

// SetRecorder sets the persistence metrics recorder
func (h *UploadHandler) SetRecorder(r StorageRecorder) {
	if r != nil {
		h.recorder = r
	}
}

// Upload ingests one spreadsheet
// POST /api/uploads (multipart: file, period)
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetUserFromContext(r.Context())
	actor := claims.Actor()

	r.Body = http.MaxBytesReader(w, r.Body, h.processor.MaxBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, sheet.ErrPayloadTooLarge.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	period := strings.TrimSpace(r.FormValue("period"))
	if len(period) > maxPeriodLength {
		writeError(w, http.StatusBadRequest, "period is too long")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	payload, err := sheet.ReadPayload(file, h.processor.MaxBytes())
	if err != nil {
		h.reject(r, w, actor, header.Filename, err)
		return
	}

	result, err := h.processor.Process(header.Filename, payload)
	if err != nil {
		h.reject(r, w, actor, header.Filename, err)
		return
	}

	receivedAt := h.now().UTC()
	if period == "" {
		period = aggregator.DefaultPeriod(receivedAt)
	}
	upload := &types.UploadResult{
		UploadID:    uuid.NewString(),
		FileName:    header.Filename,
		Period:      period,
		Format:      string(result.Format),
		Layout:      string(result.Layout),
		RowsRead:    result.Stats.RowsRead,
		RowsSkipped: result.Stats.RowsSkipped,
		Records:     result.Stats.Records,
		Summary:     result.Summary,
		Alerts:      alerts.CheckQueueAlerts(result.Summary.ByQueue, h.thresholds),
		ReceivedAt:  receivedAt,
	}
	if upload.Alerts == nil {
		upload.Alerts = []types.QueueAlert{}
	}
	upload.Rows = aggregator.QueueRows(result.Records, upload.UploadID, period, receivedAt)

	if len(upload.Rows) > 0 {
		if err := h.store.SaveQueueMetrics(r.Context(), upload.Rows); err != nil {
			h.recorder.RecordStorageError("save_metrics")
			h.logger.Error().Err(err).
				Str("upload_id", upload.UploadID).
				Int("rows", len(upload.Rows)).
				Msg("failed to persist queue metrics")
			writeError(w, http.StatusInternalServerError, "failed to persist metrics")
			return
		}
		h.recorder.RecordRowsPersisted(len(upload.Rows))
		upload.Persisted = true
	}

	h.results.Put(upload)
	h.audit(r, actor, types.AuditUpload, fmt.Sprintf("%s: %d calls in %d rows (upload %s)",
		upload.FileName, upload.Summary.Totals.TotalCalls, len(upload.Rows), upload.UploadID))

	h.notifier.Notify(types.Notification{
		Type:      types.NotificationUploadCompleted,
		Audience:  types.AudienceAll,
		Timestamp: receivedAt,
		Title:     "Upload processed",
		Message:   fmt.Sprintf("%s: %d calls, %s answered", upload.FileName, upload.Summary.Totals.TotalCalls, aggregator.FormatPercent(upload.Summary.Totals.AnswerRate)),
		UploadID:  upload.UploadID,
		Period:    period,
	})

	h.logger.Info().
		Str("upload_id", upload.UploadID).
		Str("actor", actor).
		Str("file", upload.FileName).
		Int("rows", len(upload.Rows)).
		Int("alerts", len(upload.Alerts)).
		Msg("upload completed")

	writeJSON(w, http.StatusCreated, upload)
}

// GetUpload returns a recent upload result
// GET /api/uploads/{uploadId}
func (h *UploadHandler) GetUpload(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadId")
	if uploadID == "" {
		writeError(w, http.StatusBadRequest, "uploadId is required")
		return
	}

	upload, ok := h.results.Get(uploadID)
	if !ok {
		writeError(w, http.StatusNotFound, "upload not found")
		return
	}
	writeJSON(w, http.StatusOK, upload)
}

// ListUploads returns recent upload results, newest first
// GET /api/uploads
func (h *UploadHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	recent := h.results.Recent()
	if recent == nil {
		recent = []*types.UploadResult{}
	}
	writeJSON(w, http.StatusOK, recent)
}

func (h *UploadHandler) reject(r *http.Request, w http.ResponseWriter, actor, filename string, err error) {
	h.audit(r, actor, types.AuditUploadRejected, fmt.Sprintf("%s: %v", filename, err))

	body := map[string]interface{}{
		"error":   err.Error(),
		"outcome": ingestion.Outcome(err),
	}
	var missing *ingestion.MissingColumnError
	if errors.As(err, &missing) && missing.Suggestion != "" {
		body["suggestion"] = missing.Suggestion
	}
	writeJSON(w, rejectStatus(err), body)
}

// rejectStatus maps a pipeline error to a response status
func rejectStatus(err error) int {
	switch ingestion.Outcome(err) {
	case ingestion.OutcomeTooLarge:
		return http.StatusRequestEntityTooLarge
	case ingestion.OutcomeDecodeError, ingestion.OutcomeHeaderNotFound,
		ingestion.OutcomeMissingColumn, ingestion.OutcomeEmptyDataset:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func (h *UploadHandler) audit(r *http.Request, actor string, action types.AuditAction, detail string) {
	entry := storage.NewAuditEntry(actor, action, detail, h.now())
	if err := h.store.SaveAuditEntry(r.Context(), entry); err != nil {
		h.recorder.RecordStorageError("save_audit")
		h.logger.Error().Err(err).Str("action", string(action)).Msg("failed to save audit entry")
	}
}
