package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCORS(t *testing.T) {
	dashboard := "http://localhost:5173"
	handler := CORS([]string{dashboard, "https://reports.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "req-1")
		w.WriteHeader(http.StatusCreated)
	}))

	tests := []struct {
		name        string
		origin      string
		method      string
		preflight   string
		wantOrigin  string
		wantMethods string
	}{
		{
			name:       "upload from dashboard",
			origin:     dashboard,
			method:     http.MethodPost,
			wantOrigin: dashboard,
		},
		{
			name:       "summary from second origin",
			origin:     "https://reports.example.com",
			method:     http.MethodGet,
			wantOrigin: "https://reports.example.com",
		},
		{
			name:   "unknown origin",
			origin: "http://evil.com",
			method: http.MethodPost,
		},
		{
			name:        "wipe preflight",
			origin:      dashboard,
			method:      http.MethodOptions,
			preflight:   http.MethodDelete,
			wantOrigin:  dashboard,
			wantMethods: http.MethodDelete,
		},
		{
			name:      "put preflight rejected",
			origin:    dashboard,
			method:    http.MethodOptions,
			preflight: http.MethodPut,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/uploads", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight != "" {
				req.Header.Set("Access-Control-Request-Method", tt.preflight)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("expected Access-Control-Allow-Origin %q, got %q", tt.wantOrigin, got)
			}
			if tt.wantMethods != "" && !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), tt.wantMethods) {
				t.Errorf("expected allowed methods to include %s, got %q", tt.wantMethods, rec.Header().Get("Access-Control-Allow-Methods"))
			}
		})
	}
}

func TestCORSExposesRequestID(t *testing.T) {
	handler := CORS([]string{"*"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/api/summary", nil)
	req.Header.Set("Origin", "http://any.example.com")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if exposed := rec.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(exposed, "X-Request-Id") {
		t.Errorf("expected X-Request-Id to be exposed, got %q", exposed)
	}
}
