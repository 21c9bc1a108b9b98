package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSPAHandler(t *testing.T) {
	h := SPAHandler()

	tests := []struct {
		name        string
		path        string
		wantStatus  int
		wantBody    string
		wantCaching string
	}{
		{"index", "/", http.StatusOK, `<div id="root">`, ""},
		{"client route falls back to shell", "/projects", http.StatusOK, `<div id="root">`, "no-cache"},
		{"asset", "/assets/site.css", http.StatusOK, "font-family", "public, max-age=31536000, immutable"},
		{"unknown api path", "/api/nope", http.StatusNotFound, `"error"`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Fatalf("body %q does not contain %q", w.Body.String(), tt.wantBody)
			}
			if got := w.Header().Get("Cache-Control"); got != tt.wantCaching {
				t.Fatalf("Cache-Control = %q, want %q", got, tt.wantCaching)
			}
		})
	}
}
