package enricher

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// HeaderRequestID carries the request identifier.
const HeaderRequestID = "X-Request-ID"

type requestIDKey struct{}

// RequestIDs attaches a request identifier to the context and the response.
type RequestIDs struct {
	prefix string
}

// NewRequestIDs creates a request id middleware. Incoming X-Request-ID
// headers are kept; otherwise ids are prefix-<uuid>.
func NewRequestIDs(prefix string) *RequestIDs {
	if prefix == "" {
		prefix = "req"
	}
	return &RequestIDs{prefix: prefix}
}

// Name returns the middleware name
func (m *RequestIDs) Name() string {
	return "RequestIDs"
}

// Wrap enriches the request context.
func (m *RequestIDs) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = fmt.Sprintf("%s-%s", m.prefix, uuid.NewString())
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}

// WithRequestID stores id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by the middleware, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
