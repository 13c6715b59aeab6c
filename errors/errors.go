package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	ErrValidation    = fmt.Errorf("validation failed")
	ErrNotFound      = fmt.Errorf("not found")
	ErrForbidden     = fmt.Errorf("forbidden")
	ErrUnauthorized  = fmt.Errorf("unauthorized")
	ErrConflictRetry = fmt.Errorf("concurrent write conflict")

	ErrTokenGeneration = fmt.Errorf("token generation failed")
	ErrSlowConsumer    = fmt.Errorf("connection outbound queue is full")
	ErrSinkClosed      = fmt.Errorf("connection sink is closed")
	ErrRateLimited     = fmt.Errorf("too many events")
	ErrUnknownEvent    = fmt.Errorf("unknown event")
)

// HTTPStatus maps the error taxonomy onto a response code.
// Anything outside the taxonomy is an internal error.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case stdErrors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case stdErrors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case stdErrors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case stdErrors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case stdErrors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// IsDomain reports whether err belongs to the client-facing taxonomy.
func IsDomain(err error) bool {
	return HTTPStatus(err) != http.StatusInternalServerError
}

// Message is what a client is told about err.
// Faults outside the taxonomy are replaced by fallback.
func Message(err error, fallback string) string {
	if IsDomain(err) {
		return err.Error()
	}
	return fallback
}

// Is and As are re-exported so callers importing this package
// under the name errors keep the standard helpers.
func Is(err, target error) bool { return stdErrors.Is(err, target) }

func As(err error, target any) bool { return stdErrors.As(err, target) }
