package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dennisdiepolder/monti/callreport/internal/alerts"
	"github.com/dennisdiepolder/monti/callreport/internal/auth"
	"github.com/dennisdiepolder/monti/callreport/internal/cache"
	"github.com/dennisdiepolder/monti/callreport/internal/ingestion"
	"github.com/dennisdiepolder/monti/callreport/internal/storage"
	"github.com/dennisdiepolder/monti/callreport/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []types.Notification
}

func (f *fakeNotifier) Notify(n types.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
}

type failingStore struct {
	*storage.MemoryStore
}

func (failingStore) SaveQueueMetrics(context.Context, []types.QueueMetricRow) error {
	return errors.New("connection reset")
}

func export(rows ...string) string {
	lines := []string{
		"Sistema de Telefonia", "Relatório de chamadas", "Período: 12/2025",
		"", "Unidade: Central", "Usuário: admin", "",
	}
	return strings.Join(append(lines, rows...), "\n")
}

var validExport = export(
	"| Fila | Atendidas | Abandonadas |",
	"|------|-----------|-------------|",
	"| credenciados | 10 | 2 |",
	"| | 5 | 1 |",
)

func uploadRequest(t *testing.T, filename, content, period string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if period != "" {
		if err := mw.WriteField("period", period); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte(content))
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req.WithContext(auth.WithUser(req.Context(), &auth.Claims{Email: "ana@example.com", Role: auth.RoleManager}))
}

func newUploadHandler(store storage.Store, maxBytes int64) (*UploadHandler, *cache.ResultCache, *fakeNotifier) {
	results := cache.NewResultCache(5)
	notifier := &fakeNotifier{}
	processor := ingestion.NewProcessor(nil, maxBytes, zerolog.Nop())
	return NewUploadHandler(processor, store, results, notifier, alerts.DefaultThresholds, zerolog.Nop()), results, notifier
}

func TestUpload(t *testing.T) {
	store := storage.NewMemoryStore()
	h, results, notifier := newUploadHandler(store, 0)

	rec := httptest.NewRecorder()
	h.Upload(rec, uploadRequest(t, "export.txt", validExport, "2025-12"))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var got types.UploadResult
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	if got.UploadID == "" {
		t.Error("expected upload ID")
	}
	if !got.Persisted {
		t.Error("expected rows to be persisted")
	}
	if got.Summary.Totals.TotalCalls != 12 {
		t.Errorf("expected 12 total calls, got %d", got.Summary.Totals.TotalCalls)
	}
	if len(got.Rows) != 1 || got.Rows[0].Queue != "Credenciados" || got.Rows[0].Period != "2025-12" {
		t.Fatalf("unexpected rows %+v", got.Rows)
	}
	if len(got.Alerts) != 1 || got.Alerts[0].Severity != types.SeverityWarning {
		t.Errorf("expected one warning alert, got %+v", got.Alerts)
	}

	stored, _ := store.ListQueueMetrics(context.Background(), "2025-12")
	if len(stored) != 1 || stored[0].Total != 12 {
		t.Errorf("expected stored row with total 12, got %+v", stored)
	}

	if _, ok := results.Get(got.UploadID); !ok {
		t.Error("expected result to be cached")
	}

	entries, _ := store.ListAuditEntries(context.Background(), 10)
	if len(entries) != 1 || entries[0].Action != types.AuditUpload || entries[0].Actor != "ana@example.com" {
		t.Errorf("unexpected audit entries %+v", entries)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.sent))
	}
	n := notifier.sent[0]
	if n.Type != types.NotificationUploadCompleted || n.Audience != types.AudienceAll || n.UploadID != got.UploadID {
		t.Errorf("unexpected notification %+v", n)
	}
}

func TestUploadRejects(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		content     string
		maxBytes    int64
		wantStatus  int
		wantOutcome string
		wantAudit   bool
	}{
		{
			name:       "missing file",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:        "header not found",
			filename:    "export.txt",
			content:     export("| Nome | Valor |", "| a | 1 |"),
			wantStatus:  http.StatusUnprocessableEntity,
			wantOutcome: ingestion.OutcomeHeaderNotFound,
			wantAudit:   true,
		},
		{
			name:        "missing column",
			filename:    "export.txt",
			content:     export("| Fila | Atendidas |", "| sac | 1 |"),
			wantStatus:  http.StatusUnprocessableEntity,
			wantOutcome: ingestion.OutcomeMissingColumn,
			wantAudit:   true,
		},
		{
			name:        "empty dataset",
			filename:    "export.txt",
			content:     export("| Fila | Atendidas | Abandonadas |", "| sac | 0 | 0 |"),
			wantStatus:  http.StatusUnprocessableEntity,
			wantOutcome: ingestion.OutcomeEmptyDataset,
			wantAudit:   true,
		},
		{
			name:        "unsupported format",
			filename:    "report.pdf",
			content:     "%PDF-1.4",
			wantStatus:  http.StatusUnprocessableEntity,
			wantOutcome: ingestion.OutcomeDecodeError,
			wantAudit:   true,
		},
		{
			name:        "too large",
			filename:    "export.txt",
			content:     validExport,
			maxBytes:    64,
			wantStatus:  http.StatusRequestEntityTooLarge,
			wantOutcome: ingestion.OutcomeTooLarge,
			wantAudit:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			h, results, notifier := newUploadHandler(store, tt.maxBytes)

			rec := httptest.NewRecorder()
			h.Upload(rec, uploadRequest(t, tt.filename, tt.content, ""))

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}

			var body map[string]interface{}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid error json: %v", err)
			}
			if body["error"] == "" {
				t.Error("expected error message")
			}
			if tt.wantOutcome != "" && body["outcome"] != tt.wantOutcome {
				t.Errorf("expected outcome %s, got %v", tt.wantOutcome, body["outcome"])
			}

			stored, _ := store.ListQueueMetrics(context.Background(), "")
			if len(stored) != 0 {
				t.Errorf("expected nothing stored, got %d rows", len(stored))
			}
			if results.Size() != 0 || len(notifier.sent) != 0 {
				t.Error("expected no cached result and no notification")
			}

			entries, _ := store.ListAuditEntries(context.Background(), 10)
			if tt.wantAudit && (len(entries) != 1 || entries[0].Action != types.AuditUploadRejected) {
				t.Errorf("expected one rejection audit entry, got %+v", entries)
			}
		})
	}
}

func TestUploadWithoutPeriod(t *testing.T) {
	store := storage.NewMemoryStore()
	h, _, notifier := newUploadHandler(store, 0)
	h.now = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }

	calm := export(
		"| Fila | Atendidas | Abandonadas |",
		"|------|-----------|-------------|",
		"| sac | 20 | 1 |",
	)
	rec := httptest.NewRecorder()
	h.Upload(rec, uploadRequest(t, "export.txt", calm, ""))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"alerts":[]`) {
		t.Errorf("expected empty alerts array, got %s", rec.Body.String())
	}

	var got types.UploadResult
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	if got.Period != "2026-03" {
		t.Errorf("expected period 2026-03, got %q", got.Period)
	}

	stored, _ := store.ListQueueMetrics(context.Background(), "2026-03")
	if len(stored) != 1 || stored[0].Period == "" {
		t.Fatalf("expected one row stored under 2026-03, got %+v", stored)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Period != "2026-03" {
		t.Errorf("expected notification for 2026-03, got %+v", notifier.sent)
	}
}

func TestUploadStorageFailure(t *testing.T) {
	h, results, notifier := newUploadHandler(failingStore{storage.NewMemoryStore()}, 0)

	rec := httptest.NewRecorder()
	h.Upload(rec, uploadRequest(t, "export.txt", validExport, ""))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	if results.Size() != 0 || len(notifier.sent) != 0 {
		t.Error("failed upload must not be cached or announced")
	}
}

func TestGetUpload(t *testing.T) {
	h, results, _ := newUploadHandler(storage.NewMemoryStore(), 0)
	results.Put(&types.UploadResult{UploadID: "up-1", FileName: "export.txt"})

	r := chi.NewRouter()
	r.Get("/api/uploads", h.ListUploads)
	r.Get("/api/uploads/{uploadId}", h.GetUpload)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/api/uploads/up-1", http.StatusOK},
		{"/api/uploads/missing", http.StatusNotFound},
		{"/api/uploads", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if !strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
				t.Error("expected json response")
			}
		})
	}
}

func seededStore(t *testing.T) *storage.MemoryStore {
	t.Helper()
	store := storage.NewMemoryStore()
	rows := []types.QueueMetricRow{
		{RowID: "a#0000", Period: "2025-11", Queue: "SAC", State: "BA", Phone: "-", Answered: 75, Abandoned: 25, Total: 100},
		{RowID: "b#0000", Period: "2025-12", Queue: "SAC", State: "SP", Phone: "-", Answered: 8, Abandoned: 2, Total: 10},
		{RowID: "b#0001", Period: "2025-12", Queue: "Vendas", State: "SP", Phone: "-", Answered: 10, Abandoned: 0, Total: 10},
	}
	if err := store.SaveQueueMetrics(context.Background(), rows); err != nil {
		t.Fatal(err)
	}
	return store
}

func TestGetMetrics(t *testing.T) {
	h := NewReportHandler(seededStore(t), alerts.DefaultThresholds, zerolog.Nop())

	tests := []struct {
		query    string
		wantRows int
	}{
		{"", 3},
		{"?period=2025-12", 2},
		{"?period=2024-01", 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.GetMetrics(rec, httptest.NewRequest(http.MethodGet, "/api/metrics"+tt.query, nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", rec.Code)
			}
			var rows []types.QueueMetricRow
			if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if rows == nil || len(rows) != tt.wantRows {
				t.Errorf("expected %d rows, got %v", tt.wantRows, rows)
			}
		})
	}
}

func TestGetSummary(t *testing.T) {
	h := NewReportHandler(seededStore(t), alerts.DefaultThresholds, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.GetSummary(rec, httptest.NewRequest(http.MethodGet, "/api/summary?period=2025-12", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var got SummaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got.Period != "2025-12" || got.Rows != 2 {
		t.Errorf("unexpected period/rows %s/%d", got.Period, got.Rows)
	}
	if got.Summary.Totals.TotalCalls != 20 || got.Summary.Totals.Answered != 18 {
		t.Errorf("unexpected totals %+v", got.Summary.Totals)
	}
	if len(got.Summary.ByQueue) != 2 {
		t.Errorf("expected 2 queues, got %d", len(got.Summary.ByQueue))
	}
	if len(got.Summary.Insights) == 0 {
		t.Error("expected insights")
	}
	// SAC: 2 of 10 abandoned reaches the critical threshold
	if len(got.Alerts) != 1 || got.Alerts[0].Queue != "SAC" || got.Alerts[0].Severity != types.SeverityCritical {
		t.Errorf("unexpected alerts %+v", got.Alerts)
	}
}

func TestReportsStorageDisabled(t *testing.T) {
	h := NewReportHandler(storage.NewNoopStore(), alerts.DefaultThresholds, zerolog.Nop())

	for name, handler := range map[string]http.HandlerFunc{"metrics": h.GetMetrics, "summary": h.GetSummary} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			if rec.Code != http.StatusServiceUnavailable {
				t.Errorf("expected status 503, got %d", rec.Code)
			}
		})
	}
}

func adminRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(auth.WithUser(req.Context(), &auth.Claims{Email: "root@example.com", Role: auth.RoleAdmin}))
}

func TestWipeMetrics(t *testing.T) {
	store := seededStore(t)
	results := cache.NewResultCache(5)
	results.Put(&types.UploadResult{UploadID: "up-1"})
	notifier := &fakeNotifier{}
	h := NewAdminHandler(store, results, notifier, NewPasswordPolicy(8), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.WipeMetrics(rec, adminRequest(http.MethodDelete, "/api/admin/metrics", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		BackupID string `json:"backupId"`
		Rows     int    `json:"rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body.BackupID == "" || body.Rows != 3 {
		t.Errorf("unexpected wipe response %+v", body)
	}

	remaining, _ := store.ListQueueMetrics(context.Background(), "")
	if len(remaining) != 0 {
		t.Errorf("expected no rows left, got %d", len(remaining))
	}
	if len(store.Backups()) != 3 {
		t.Errorf("expected 3 backup rows, got %d", len(store.Backups()))
	}
	if results.Size() != 0 {
		t.Error("expected result cache to be cleared")
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Audience != types.AudienceAdmins {
		t.Errorf("expected one admin notification, got %+v", notifier.sent)
	}

	entries, _ := store.ListAuditEntries(context.Background(), 10)
	if len(entries) != 1 || entries[0].Action != types.AuditMetricsWiped || entries[0].Actor != "root@example.com" {
		t.Errorf("unexpected audit entries %+v", entries)
	}
}

func TestWipeMetricsStorageDisabled(t *testing.T) {
	h := NewAdminHandler(storage.NewNoopStore(), cache.NewResultCache(1), nil, NewPasswordPolicy(8), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.WipeMetrics(rec, adminRequest(http.MethodDelete, "/api/admin/metrics", ""))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
}

func TestGetAuditLog(t *testing.T) {
	store := storage.NewMemoryStore()
	base := time.Date(2025, 12, 9, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		entry := storage.NewAuditEntry("ana", types.AuditUpload, "export.txt", base.Add(time.Duration(i)*time.Minute))
		if err := store.SaveAuditEntry(context.Background(), entry); err != nil {
			t.Fatal(err)
		}
	}
	h := NewAdminHandler(store, cache.NewResultCache(1), nil, NewPasswordPolicy(8), zerolog.Nop())

	tests := []struct {
		query       string
		wantStatus  int
		wantEntries int
	}{
		{"", http.StatusOK, 3},
		{"?limit=2", http.StatusOK, 2},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.GetAuditLog(rec, adminRequest(http.MethodGet, "/api/admin/audit"+tt.query, ""))

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var entries []types.AuditEntry
			if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if len(entries) != tt.wantEntries {
				t.Errorf("expected %d entries, got %d", tt.wantEntries, len(entries))
			}
		})
	}
}

func TestPasswordPolicyCheck(t *testing.T) {
	policy := NewPasswordPolicy(10)

	tests := []struct {
		password string
		want     []string
	}{
		{"Correct-Horse-9", []string{}},
		{"short1A!", []string{"must be at least 10 characters"}},
		{"alllowercase", []string{"must contain an uppercase letter", "must contain a digit", "must contain a symbol"}},
		{"ÁÉÍÓÚáéíóú1#", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			got := policy.Check(tt.password)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCheckPasswordHandler(t *testing.T) {
	store := storage.NewMemoryStore()
	h := NewAdminHandler(store, cache.NewResultCache(1), nil, NewPasswordPolicy(8), zerolog.Nop())

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantValid  bool
	}{
		{"valid", `{"password":"Sup3r-secret"}`, http.StatusOK, true},
		{"weak", `{"password":"secret"}`, http.StatusOK, false},
		{"empty", `{"password":""}`, http.StatusBadRequest, false},
		{"malformed", `{"password":`, http.StatusBadRequest, false},
		{"too long", `{"password":"` + strings.Repeat("a", 129) + `"}`, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.CheckPassword(rec, adminRequest(http.MethodPost, "/api/admin/password-policy/check", tt.body))

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var body struct {
				Valid      bool     `json:"valid"`
				Violations []string `json:"violations"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if body.Valid != tt.wantValid {
				t.Errorf("expected valid=%v, got %+v", tt.wantValid, body)
			}
			if strings.Contains(rec.Body.String(), "Sup3r-secret") {
				t.Error("response must not echo the password")
			}
		})
	}

	entries, _ := store.ListAuditEntries(context.Background(), 10)
	for _, e := range entries {
		if e.Action != types.AuditPasswordCheck || strings.Contains(e.Detail, "secret") {
			t.Errorf("unexpected audit entry %+v", e)
		}
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 audit entries, got %d", len(entries))
	}
}

func TestGetPasswordPolicy(t *testing.T) {
	h := NewAdminHandler(storage.NewMemoryStore(), cache.NewResultCache(1), nil, NewPasswordPolicy(12), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.GetPasswordPolicy(rec, adminRequest(http.MethodGet, "/api/admin/password-policy", ""))

	var got PasswordPolicy
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got.MinLength != 12 || !got.RequireSymbol {
		t.Errorf("unexpected policy %+v", got)
	}
}
