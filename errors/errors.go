package errors

import "errors"

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrMissingConfiguration indicates that a required credential or model is absent
	ErrMissingConfiguration = errors.New("missing configuration")

	// ErrMalformedOutput indicates that an upstream service returned text
	// that does not parse as the expected structure
	ErrMalformedOutput = errors.New("malformed upstream output")

	// ErrStorage indicates that durable storage could not be read or written
	ErrStorage = errors.New("storage failure")

	// ErrDimensionMismatch indicates vectors of different lengths were mixed
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
