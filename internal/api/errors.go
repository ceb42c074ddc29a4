package api

import (
	"errors"
	"fmt"
)

// HTTPError reports a non-2xx response. It is returned before any body
// reading is attempted, so a failed stream never emits deltas.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Body)
}

// ErrStreamUnavailable is returned when a streaming response carries no
// readable body.
var ErrStreamUnavailable = errors.New("stream unavailable: response has no readable body")

// IsHTTPError reports whether err is an HTTPError and returns it.
func IsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}
