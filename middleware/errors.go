package middleware

import "errors"

var (
	// ErrRateLimitExceeded indicates rate limit has been exceeded
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrBodyTooLarge indicates the request body exceeded the configured limit
	ErrBodyTooLarge = errors.New("request body too large")

	// ErrUnsupportedMediaType indicates a request body that is not JSON
	ErrUnsupportedMediaType = errors.New("unsupported media type")
)
