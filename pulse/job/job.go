// Package job defines the outcome and health records shared by every
// background job.
package job

import (
	"time"

	"github.com/linkpulse/linkpulse/errors"
)

// Name identifies a logical background job
type Name string

const (
	URLExpiration        Name = "urlExpiration"
	PasswordResetCleanup Name = "passwordResetCleanup"

	// All addresses every job where an operation accepts a job name
	All Name = "all"
)

// ErrUnknownJob is returned for a job name that is not registered
var ErrUnknownJob = errors.New("unknown job")

// Names returns every registered job in a stable order
func Names() []Name {
	return []Name{URLExpiration, PasswordResetCleanup}
}

// ParseName validates s as a job name. All is accepted only when allowAll is set.
func ParseName(s string, allowAll bool) (Name, error) {
	n := Name(s)
	if n == All && allowAll {
		return n, nil
	}
	for _, known := range Names() {
		if n == known {
			return n, nil
		}
	}
	return "", errors.WithHintf(
		errors.Wrapf(ErrUnknownJob, "%q", s),
		"known jobs: %s, %s", URLExpiration, PasswordResetCleanup)
}

// Result is the outcome of one job run. It is never modified after the run
// returns it.
type Result struct {
	RunID           string    `json:"runId"`
	Success         bool      `json:"success"`
	ProcessedCount  int       `json:"processedCount"`
	ExpiredCount    int       `json:"expiredCount"`
	Errors          []string  `json:"errors"`
	ExecutionTimeMs int64     `json:"executionTimeMs"`
	Timestamp       time.Time `json:"timestamp"`
}

// FailedResult builds the result of a run that ended before producing one,
// e.g. one that panicked.
func FailedResult(runID string, started, finished time.Time, err error) Result {
	return Result{
		RunID:           runID,
		Success:         false,
		Errors:          []string{err.Error()},
		ExecutionTimeMs: ElapsedMs(started, finished),
		Timestamp:       finished,
	}
}

// ElapsedMs returns the non-negative milliseconds between two instants
func ElapsedMs(started, finished time.Time) int64 {
	ms := finished.Sub(started).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}
