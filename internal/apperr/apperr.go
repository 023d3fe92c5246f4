// Package apperr defines the error kinds shared by the queue, cache and HTTP layers.
// Components wrap these sentinels with fmt.Errorf("...: %w", ...) and callers
// classify them with errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrConflict            = errors.New("conflict")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ErrRoomClosed is returned by operations on a room that has been evicted.
// It is a NotFound so callers treat it like an unknown room.
var ErrRoomClosed = fmt.Errorf("room closed: %w", ErrNotFound)

// StalePosition reports a dequeue whose position no longer holds the expected
// video. It matches both ErrConflict and ErrNotFound.
func StalePosition(position int, videoID string) error {
	return &staleError{position: position, videoID: videoID}
}

type staleError struct {
	position int
	videoID  string
}

func (e *staleError) Error() string {
	return fmt.Sprintf("position %d no longer valid for %s", e.position, e.videoID)
}

func (e *staleError) Is(target error) bool {
	return target == ErrConflict || target == ErrNotFound
}

// HTTPStatus maps an error to the response status the handlers use.
// Stale positions are surfaced as 404 so clients refresh and retry.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message is the user-facing text for err. Internal failures are not
// described to clients.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrConflict):
		return "Position no longer valid"
	case errors.Is(err, ErrRoomClosed):
		return "Room closed"
	case errors.Is(err, ErrNotFound):
		return "Not found"
	case errors.Is(err, ErrInvalidArgument):
		return "Invalid request"
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "Video service unavailable"
	default:
		return "Internal server error"
	}
}
