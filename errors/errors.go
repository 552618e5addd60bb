package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthenticated = fmt.Errorf("unauthenticated")
	ErrInvalidText     = fmt.Errorf("invalid text")
	ErrForbidden       = fmt.Errorf("forbidden")
	ErrRateLimited     = fmt.Errorf("rate limited")
	ErrUnknownUser     = fmt.Errorf("unknown user")
	ErrConnClosed      = fmt.Errorf("connection closed")
	ErrWorkerPanic     = fmt.Errorf("worker panic")
)

// Kind maps an error to its wire taxonomy string. Anything outside the
// known gates is a server_error: persistence and lookup failures are
// surfaced, never swallowed.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrInvalidText):
		return "invalid_text"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrUnknownUser):
		return "unknown_user"
	default:
		return "server_error"
	}
}

// HTTPStatus maps an error to the status code of the REST surface.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidText):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnknownUser):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
