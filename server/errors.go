package server

import (
	"net/http"

	"github.com/linkpulse/linkpulse/errors"
	"github.com/linkpulse/linkpulse/pulse/schedule"
)

// statusForError maps scheduler errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, schedule.ErrUnknownJob):
		return http.StatusNotFound
	case errors.Is(err, schedule.ErrJobRunning):
		return http.StatusConflict
	case errors.Is(err, schedule.ErrBreakerOpen):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeSchedulerError writes err with its hint, if any
func writeSchedulerError(w http.ResponseWriter, err error) {
	msg := err.Error()
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		msg += " (" + hints[0] + ")"
	}
	writeError(w, statusForError(err), msg)
}
