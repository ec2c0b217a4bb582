package model

import (
	"context"

	"github.com/cockroachdb/errors"
	ctxpkg "github.com/stupiduntilnot/lmrelay/internal/context"
)

// CompletionResponse is the common response model for model providers.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Provider is the inference backend abstraction used by the relay.
type Provider interface {
	ChatCompletion(ctx context.Context, messages []ctxpkg.Message) (CompletionResponse, error)
}

// Failure classes. Providers mark their errors with one of these so callers
// can tell them apart with errors.Is.
var (
	ErrConnection = errors.New("inference server unreachable")
	ErrTimeout    = errors.New("inference request timed out")
	ErrUnexpected = errors.New("inference request failed")
)

// ErrorClass names a failure class in logs, events, and metrics.
type ErrorClass string

const (
	ClassNone       ErrorClass = "none"
	ClassConnection ErrorClass = "connection"
	ClassTimeout    ErrorClass = "timeout"
	ClassUnexpected ErrorClass = "unexpected"
)

// Classify maps an error returned by a Provider to its class. Errors that
// carry no mark are unexpected.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrTimeout):
		return ClassTimeout
	case errors.Is(err, ErrConnection):
		return ClassConnection
	default:
		return ClassUnexpected
	}
}
