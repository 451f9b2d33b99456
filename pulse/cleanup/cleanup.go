// Package cleanup removes stale password reset tokens on a schedule.
package cleanup

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/linkpulse/linkpulse/errors"
	"github.com/linkpulse/linkpulse/logger"
	"github.com/linkpulse/linkpulse/pulse/job"
)

// TokenCleaner deletes expired password reset tokens. auth.TokenStore implements it.
type TokenCleaner interface {
	CleanupExpiredResetTokens(ctx context.Context) (int64, error)
}

// Stats are cumulative over the life of the Job
type Stats struct {
	LastRun              *time.Time `json:"lastRun,omitempty"`
	TotalRuns            int        `json:"totalRuns"`
	TotalTokensCleanedUp int64      `json:"totalTokensCleanedUp"`
	LastCleanupCount     int64      `json:"lastCleanupCount"`
	Errors               int        `json:"errors"`
	LastError            string     `json:"lastError,omitempty"`
}

// Job performs one cleanup call per run. It does not retry; the scheduler
// decides whether a failed run is re-attempted.
type Job struct {
	cleaner TokenCleaner
	log     *zap.SugaredLogger
	now     func() time.Time

	mu    sync.Mutex
	stats Stats
}

// NewJob creates a cleanup job. now defaults to time.Now.
func NewJob(cleaner TokenCleaner, log *zap.SugaredLogger, now func() time.Time) *Job {
	if now == nil {
		now = time.Now
	}
	return &Job{
		cleaner: cleaner,
		log:     logger.AddPulseSymbol(logger.OrNop(log).Named("pulse.cleanup")),
		now:     now,
	}
}

// Run removes expired tokens and reports whether the call succeeded.
// Failures, including panics in the cleaner, are recorded in Stats.
func (j *Job) Run(ctx context.Context) (ok bool) {
	started := j.now()
	j.mu.Lock()
	j.stats.TotalRuns++
	j.stats.LastRun = &started
	j.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			j.fail(errors.Newf("panic: %v", r))
			ok = false
		}
	}()

	removed, err := j.cleaner.CleanupExpiredResetTokens(ctx)
	if err != nil {
		j.fail(err)
		return false
	}

	j.mu.Lock()
	j.stats.LastCleanupCount = removed
	j.stats.TotalTokensCleanedUp += removed
	j.mu.Unlock()

	j.log.Infow("Password reset token cleanup finished",
		logger.FieldJob, string(job.PasswordResetCleanup),
		logger.FieldCount, removed,
		logger.FieldDurationMS, job.ElapsedMs(started, j.now()))
	return true
}

func (j *Job) fail(err error) {
	j.mu.Lock()
	j.stats.Errors++
	j.stats.LastError = err.Error()
	j.mu.Unlock()

	j.log.Errorw("Password reset token cleanup failed",
		logger.FieldJob, string(job.PasswordResetCleanup),
		logger.FieldError, err)
}

// Stats returns a copy of the cumulative statistics
func (j *Job) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := j.stats
	if s.LastRun != nil {
		t := *s.LastRun
		s.LastRun = &t
	}
	return s
}
