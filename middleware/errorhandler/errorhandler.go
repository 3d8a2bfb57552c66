package errorhandler

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/sweetpotato0/coverwise/middleware"
)

// Recoverer turns a panicking handler into a 500 response.
type Recoverer struct {
	logger *slog.Logger
}

// NewRecoverer creates a panic recovery middleware
func NewRecoverer(logger *slog.Logger) *Recoverer {
	return &Recoverer{logger: logger}
}

// Name returns the middleware name
func (m *Recoverer) Name() string {
	return "Recoverer"
}

// Wrap recovers panics raised by next.
func (m *Recoverer) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			if m.logger != nil {
				m.logger.Error("handler panic",
					"path", r.URL.Path,
					"panic", fmt.Sprint(rec),
					"stack", string(debug.Stack()),
				)
			}
			middleware.WriteError(w, http.StatusInternalServerError, "internal error")
		}()
		next.ServeHTTP(w, r)
	})
}
