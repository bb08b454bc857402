package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/NotARoomba/canvas/internal/domain"
)

// Error is returned by services when a request cannot be served. Status is the
// HTTP status, Code the numeric status echoed in response bodies.
type Error struct {
	Status int
	Code   domain.StatusCode
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("api error (%d, code %d)", e.Status, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code domain.StatusCode, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func InvalidData(err error) *Error   { return New(http.StatusBadRequest, domain.StatusInvalidData, err) }
func InvalidID(err error) *Error     { return New(http.StatusBadRequest, domain.StatusInvalidID, err) }
func InvalidNumber(err error) *Error { return New(http.StatusBadRequest, domain.StatusInvalidNumber, err) }
func NotFound(code domain.StatusCode, err error) *Error {
	return New(http.StatusNotFound, code, err)
}

// From maps any error onto an *Error, defaulting to a generic 500.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return New(http.StatusInternalServerError, domain.StatusGenericError, err)
}
