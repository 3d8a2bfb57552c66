package provider

import "context"

// Request is a single-turn completion request.
type Request struct {
	System string
	Prompt string
}

// Completer is a text-in/text-out generation model.
//
// Implementations return an error wrapping errors.ErrMissingConfiguration when
// they have no credentials.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	// Name identifies the backend in logs and payloads.
	Name() string
}
