// Package embedding turns chunk and question text into vectors through
// an ordered chain of providers with automatic fallback.
package embedding

import "context"

// Provider produces one vector per input text, all of a fixed declared
// dimension for the life of the instance.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Name() string
}

type Error struct {
	Code     string
	Provider string
	Cause    error
}

func (e *Error) Error() string {
	msg := "embedding error (" + e.Code + ")"
	if e.Provider != "" {
		msg += " provider=" + e.Provider
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

const (
	ErrCodeNoProviders        = "no_providers"
	ErrCodeProvidersExhausted = "providers_exhausted"
	ErrCodeBadVectorCount     = "bad_vector_count"
	ErrCodeBadDimension       = "bad_dimension"
)
