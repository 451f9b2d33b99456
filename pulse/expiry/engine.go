// Package expiry flips short URLs whose expiration time has passed to the
// expired state, one bounded page at a time.
package expiry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/linkpulse/linkpulse/am"
	"github.com/linkpulse/linkpulse/db"
	"github.com/linkpulse/linkpulse/links"
	"github.com/linkpulse/linkpulse/logger"
	"github.com/linkpulse/linkpulse/pulse/job"
	"github.com/linkpulse/linkpulse/pulse/retry"
)

// Store is the storage the engine scans and updates. links.Store implements it.
type Store interface {
	FetchExpiredCandidates(ctx context.Context, run links.Run, limit, offset int) ([]links.Candidate, error)
	MarkExpired(ctx context.Context, run links.Run, ids []string, at time.Time) ([]string, error)
}

// Config controls paging and per-page retries
type Config struct {
	BatchSize      int           // candidates per page, > 0
	MaxRetries     int           // total update attempts per page
	RetryDelay     time.Duration // fixed wait between attempts
	PagesPerSecond float64       // page fetch throttle, 0 = unlimited
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		BatchSize:  am.DefaultBatchSize,
		MaxRetries: am.DefaultMaxRetries,
		RetryDelay: am.DefaultRetryDelayMS * time.Millisecond,
	}
}

// ConfigFromAm builds the engine config from the loaded configuration
func ConfigFromAm(c am.ExpirationConfig) Config {
	return Config{
		BatchSize:      c.BatchSize,
		MaxRetries:     c.MaxRetries,
		RetryDelay:     time.Duration(c.RetryDelayMS) * time.Millisecond,
		PagesPerSecond: c.PagesPerSecond,
	}
}

// Engine runs expiration scans. It keeps no state between runs, so one
// Engine may serve every run of the job.
type Engine struct {
	store   Store
	cfg     Config
	log     *zap.SugaredLogger
	audit   *zap.SugaredLogger
	now     func() time.Time
	sleep   retry.SleepFunc
	limiter *rate.Limiter
}

// Option customizes an Engine
type Option func(*Engine)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSleep replaces the wait between page retries
func WithSleep(sleep retry.SleepFunc) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// WithAuditLogger sends audit records to l instead of a child of the engine logger
func WithAuditLogger(l *zap.SugaredLogger) Option {
	return func(e *Engine) { e.audit = l }
}

// NewEngine creates an expiration engine. Invalid sizes fall back to defaults.
func NewEngine(store Store, cfg Config, log *zap.SugaredLogger, opts ...Option) *Engine {
	defaults := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}

	base := logger.OrNop(log).Named("pulse.expiry")
	e := &Engine{
		store: store,
		cfg:   cfg,
		log:   logger.AddPulseSymbol(base),
		audit: logger.AddLinkSymbol(base.Named("audit")),
		now:   time.Now,
		sleep: retry.Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}

	limit := rate.Inf
	if cfg.PagesPerSecond > 0 {
		limit = rate.Limit(cfg.PagesPerSecond)
	}
	e.limiter = rate.NewLimiter(limit, 1)
	return e
}

// Config returns the effective configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Run scans for expired candidates page by page and marks them expired.
//
// A page whose update keeps failing is skipped after MaxRetries attempts and
// one error is recorded. The scan then goes on only if earlier pages made
// progress, so a permanently broken first page cannot loop forever. A failed
// candidate fetch ends the run.
//
// The run reports success when no errors were recorded or at least one URL
// was expired; partial progress counts as success and the errors are kept.
func (e *Engine) Run(ctx context.Context) job.Result {
	started := e.now()
	run := links.Run{ID: uuid.NewString(), AsOf: started}
	ctx = logger.WithRunID(logger.WithComponent(ctx, "pulse.expiry"), run.ID)
	log := logger.FromContext(ctx, e.log).With(logger.FieldJob, string(job.URLExpiration))

	log.Infow("URL expiration run started", logger.FieldBatchSize, e.cfg.BatchSize)

	var processed, expired, offset, page int
	errs := []string{}

	policy := retry.Policy{
		Attempts: e.cfg.MaxRetries,
		Delay:    e.cfg.RetryDelay,
		Sleep:    e.sleep,
		OnRetry: func(attempt int, err error) {
			log.Warnw("Page update failed, retrying",
				logger.FieldOffset, offset,
				logger.FieldAttempt, attempt,
				"transient", db.IsBusy(err),
				logger.FieldError, err)
		},
	}

	for {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Sprintf("run interrupted at offset %d: %v", offset, err))
			break
		}
		if err := e.limiter.Wait(ctx); err != nil {
			errs = append(errs, fmt.Sprintf("run interrupted at offset %d: %v", offset, err))
			break
		}

		candidates, err := e.store.FetchExpiredCandidates(ctx, run, e.cfg.BatchSize, offset)
		if err != nil {
			log.Errorw("Fetching expired candidates failed", logger.FieldOffset, offset, logger.FieldError, err)
			errs = append(errs, fmt.Sprintf("fetch candidates at offset %d: %v", offset, err))
			break
		}
		if len(candidates) == 0 {
			break
		}
		page++

		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ID
		}

		var updated []string
		err = policy.Do(ctx, func(int) error {
			u, err := e.store.MarkExpired(ctx, run, ids, e.now())
			if db.IsDatabaseClosed(err) {
				return retry.Permanent(err)
			}
			if err != nil {
				return err
			}
			updated = u
			return nil
		})
		if err != nil {
			log.Errorw("Page skipped after retries",
				logger.FieldOffset, offset,
				logger.FieldCount, len(candidates),
				logger.FieldError, err)
			errs = append(errs, fmt.Sprintf("page at offset %d (%d candidates) skipped: %v", offset, len(candidates), err))
			offset += e.cfg.BatchSize
			if processed == 0 {
				break
			}
			continue
		}

		processed += len(candidates)
		expired += len(updated)
		e.auditPage(run.ID, candidates, updated)

		log.Debugw("Page processed",
			"page", page,
			logger.FieldOffset, offset,
			logger.FieldProcessed, len(candidates),
			logger.FieldExpired, len(updated))

		offset += e.cfg.BatchSize
		if len(candidates) < e.cfg.BatchSize {
			// Short page: the pinned candidate set is exhausted
			break
		}
	}

	finished := e.now()
	result := job.Result{
		RunID:           run.ID,
		Success:         len(errs) == 0 || expired > 0,
		ProcessedCount:  processed,
		ExpiredCount:    expired,
		Errors:          errs,
		ExecutionTimeMs: job.ElapsedMs(started, finished),
		Timestamp:       finished,
	}

	log.Infow("URL expiration run finished",
		"success", result.Success,
		"pages", page,
		logger.FieldProcessed, processed,
		logger.FieldExpired, expired,
		logger.FieldErrors, len(errs),
		logger.FieldDurationMS, result.ExecutionTimeMs)
	return result
}
