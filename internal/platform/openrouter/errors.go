package openrouter

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrMissingAPIKey = errors.New("missing OPENROUTER_API_KEY")

// ErrRateLimit indicates the provider answered 429.
type ErrRateLimit struct {
	RetryAfter time.Duration
	Err        error
}

func (e *ErrRateLimit) Error() string {
	return fmt.Sprintf("openrouter rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *ErrRateLimit) Unwrap() error { return e.Err }

// ErrInvalidResponse means the model answered, but not with JSON that
// matches the requested schema.
type ErrInvalidResponse struct {
	Content json.RawMessage
	Err     error
}

func (e *ErrInvalidResponse) Error() string {
	return fmt.Sprintf("invalid chat response: %v", e.Err)
}

func (e *ErrInvalidResponse) Unwrap() error { return e.Err }

type ErrProviderUnavailable struct {
	Err error
}

func (e *ErrProviderUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chat provider unavailable: %v", e.Err)
	}
	return "chat provider unavailable"
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Err }
