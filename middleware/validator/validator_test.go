package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBodyValidator(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		want        int
	}{
		{"json accepted", http.MethodPost, "application/json; charset=utf-8", `{}`, http.StatusOK},
		{"missing content type accepted", http.MethodPost, "", `{}`, http.StatusOK},
		{"form rejected", http.MethodPost, "application/x-www-form-urlencoded", "a=b", http.StatusUnsupportedMediaType},
		{"oversized rejected", http.MethodPost, "application/json", `{"document":"` + strings.Repeat("x", 64) + `"}`, http.StatusRequestEntityTooLarge},
		{"get ignores content type", http.MethodGet, "text/plain", "", http.StatusOK},
	}
	h := NewBodyValidator(32).Wrap(ok)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
