package errorhandler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sweetpotato0/coverwise/middleware"
	"github.com/sweetpotato0/coverwise/pkg/logging"
)

func TestRecoverer(t *testing.T) {
	t.Run("converts panic to 500", func(t *testing.T) {
		h := NewRecoverer(logging.Discard()).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d", rec.Code)
		}
		var body middleware.ErrorBody
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.StatusCode != 500 || body.Message != "internal error" {
			t.Errorf("body = %+v", body)
		}
	})

	t.Run("passes through normal responses", func(t *testing.T) {
		h := NewRecoverer(nil).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusCreated {
			t.Errorf("status = %d", rec.Code)
		}
	})
}
