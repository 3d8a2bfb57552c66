package validator

import (
	"mime"
	"net/http"

	"github.com/sweetpotato0/coverwise/middleware"
)

// BodyValidator limits request bodies and requires JSON on writes.
type BodyValidator struct {
	maxBytes int64
}

// NewBodyValidator creates a body validation middleware. A non-positive
// maxBytes leaves the body size unlimited.
func NewBodyValidator(maxBytes int64) *BodyValidator {
	return &BodyValidator{maxBytes: maxBytes}
}

// Name returns the middleware name
func (m *BodyValidator) Name() string {
	return "BodyValidator"
}

// Wrap validates the request before calling next.
func (m *BodyValidator) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			if r.ContentLength > 0 && m.maxBytes > 0 && r.ContentLength > m.maxBytes {
				middleware.WriteError(w, http.StatusRequestEntityTooLarge, middleware.ErrBodyTooLarge.Error())
				return
			}
			if ct := r.Header.Get("Content-Type"); ct != "" && !isJSON(ct) {
				middleware.WriteError(w, http.StatusUnsupportedMediaType, middleware.ErrUnsupportedMediaType.Error())
				return
			}
		}
		if m.maxBytes > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, m.maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}
