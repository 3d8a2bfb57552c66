package middleware

import (
	"encoding/json"
	"net/http"
)

// Middleware wraps an http.Handler with cross-cutting behaviour.
type Middleware interface {
	// Name returns the name of the middleware for logging and debugging
	Name() string

	// Wrap returns a handler that runs the middleware around next
	Wrap(next http.Handler) http.Handler
}

// Func adapts a plain wrapping function to Middleware.
type Func struct {
	name string
	wrap func(http.Handler) http.Handler
}

// NewFunc names a wrapping function.
func NewFunc(name string, wrap func(http.Handler) http.Handler) Func {
	return Func{name: name, wrap: wrap}
}

// Name returns the middleware name
func (f Func) Name() string { return f.name }

// Wrap applies the function.
func (f Func) Wrap(next http.Handler) http.Handler {
	if f.wrap == nil {
		return next
	}
	return f.wrap(next)
}

// MiddlewareChain represents a sequence of middleware. The first middleware
// added is the outermost one.
type MiddlewareChain struct {
	middlewares []Middleware
}

// NewChain creates a new middleware chain
func NewChain(middlewares ...Middleware) *MiddlewareChain {
	return &MiddlewareChain{middlewares: middlewares}
}

// Add appends a middleware to the chain
func (c *MiddlewareChain) Add(m Middleware) *MiddlewareChain {
	c.middlewares = append(c.middlewares, m)
	return c
}

// Names lists the middleware in execution order.
func (c *MiddlewareChain) Names() []string {
	names := make([]string, len(c.middlewares))
	for i, m := range c.middlewares {
		names[i] = m.Name()
	}
	return names
}

// Then wraps the final handler with every middleware in the chain.
func (c *MiddlewareChain) Then(final http.Handler) http.Handler {
	h := final
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		if c.middlewares[i] == nil {
			continue
		}
		h = c.middlewares[i].Wrap(h)
	}
	return h
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an ErrorBody using the status text as the error name.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{
		Error:      http.StatusText(status),
		Message:    message,
		StatusCode: status,
	})
}
