package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dennisdiepolder/monti/callreport/internal/auth"
	"github.com/dennisdiepolder/monti/callreport/internal/cache"
	"github.com/dennisdiepolder/monti/callreport/internal/storage"
	"github.com/dennisdiepolder/monti/callreport/internal/types"
	"github.com/rs/zerolog"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AdminHandler serves admin-only maintenance endpoints
type AdminHandler struct {
	store    storage.Store
	results  *cache.ResultCache
	notifier Notifier
	policy   *PasswordPolicy
	now      func() time.Time
	logger   zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(store storage.Store, results *cache.ResultCache, notifier Notifier, policy *PasswordPolicy, logger zerolog.Logger) *AdminHandler {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &AdminHandler{
		store:    store,
		results:  results,
		notifier: notifier,
		policy:   policy,
		now:      time.Now,
		logger:   logger.With().Str("component", "admin_handler").Logger(),
	}
}

// WipeMetrics backs up and then deletes every stored queue metric row
// DELETE /api/admin/metrics
func (h *AdminHandler) WipeMetrics(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetUserFromContext(r.Context())
	actor := claims.Actor()

	backupID, n, err := h.store.BackupAndTruncate(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Str("actor", actor).Msg("failed to wipe queue metrics")
		writeError(w, storageStatus(err), "failed to wipe metrics")
		return
	}

	cleared := h.results.Size()
	h.results.Clear()
	h.audit(r, actor, types.AuditMetricsWiped, fmt.Sprintf("%d rows moved to backup %s", n, backupID))

	h.notifier.Notify(types.Notification{
		Type:      types.NotificationMetricsWiped,
		Audience:  types.AudienceAdmins,
		Timestamp: h.now().UTC(),
		Title:     "Metrics wiped",
		Message:   fmt.Sprintf("%s removed %d rows (backup %s)", actor, n, backupID),
	})

	h.logger.Info().
		Str("actor", actor).
		Str("backup_id", backupID).
		Int("rows", n).
		Int("cached_results", cleared).
		Msg("queue metrics wiped")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":        "queue metrics wiped",
		"backupId":       backupID,
		"rows":           n,
		"resultsCleared": cleared,
	})
}

// GetAuditLog returns the newest audit entries
// GET /api/admin/audit?limit=
func (h *AdminHandler) GetAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxAuditLimit)
	}

	entries, err := h.store.ListAuditEntries(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list audit entries")
		writeError(w, storageStatus(err), "failed to retrieve audit log")
		return
	}
	if entries == nil {
		entries = []types.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetPasswordPolicy returns the active password policy
// GET /api/admin/password-policy
func (h *AdminHandler) GetPasswordPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.policy)
}

type passwordCheckRequest struct {
	Password string `json:"password" validate:"required,max=128"`
}

// CheckPassword reports which policy rules a candidate password violates.
// The password itself is never logged or audited.
// POST /api/admin/password-policy/check
func (h *AdminHandler) CheckPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordCheckRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.policy.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "password is required and must be at most 128 characters")
		return
	}

	violations := h.policy.Check(req.Password)

	claims, _ := auth.GetUserFromContext(r.Context())
	h.audit(r, claims.Actor(), types.AuditPasswordCheck, fmt.Sprintf("%d policy violations", len(violations)))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":      len(violations) == 0,
		"violations": violations,
	})
}

func (h *AdminHandler) audit(r *http.Request, actor string, action types.AuditAction, detail string) {
	entry := storage.NewAuditEntry(actor, action, detail, h.now())
	if err := h.store.SaveAuditEntry(r.Context(), entry); err != nil {
		h.logger.Error().Err(err).Str("action", string(action)).Msg("failed to save audit entry")
	}
}
