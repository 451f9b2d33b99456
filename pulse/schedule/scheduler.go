// Package schedule owns the timers, concurrency guards, circuit breaker and
// health reporting for the background jobs.
package schedule

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/linkpulse/linkpulse/errors"
	"github.com/linkpulse/linkpulse/links"
	"github.com/linkpulse/linkpulse/logger"
	"github.com/linkpulse/linkpulse/pulse/cleanup"
	"github.com/linkpulse/linkpulse/pulse/job"
	"github.com/linkpulse/linkpulse/pulse/metrics"
)

var (
	// ErrJobRunning is returned when a run is requested while the job is
	// already executing. The request is dropped, never queued.
	ErrJobRunning = errors.New("job already running")
	// ErrBreakerOpen is returned for non-manual runs of a suspended job
	ErrBreakerOpen = errors.New("circuit breaker open")
	// ErrUnknownJob is returned for unregistered job names
	ErrUnknownJob = job.ErrUnknownJob
)

type trigger string

const (
	triggerScheduled trigger = "scheduled"
	triggerInitial   trigger = "initial"
	triggerRetry     trigger = "retry"
	triggerManual    trigger = "manual"
)

// Expirer runs one URL expiration scan. *expiry.Engine implements it.
type Expirer interface {
	Run(ctx context.Context) job.Result
}

// Cleaner runs one token cleanup. *cleanup.Job implements it.
type Cleaner interface {
	Run(ctx context.Context) bool
	Stats() cleanup.Stats
}

// StatsSource provides aggregate URL counts. *links.Store implements it.
type StatsSource interface {
	Statistics(ctx context.Context, now time.Time) (*links.Stats, error)
}

// Deps are the collaborators of a Scheduler. Clock, Metrics, Logger and
// MemoryStats are optional.
type Deps struct {
	Expirer     Expirer
	Cleaner     Cleaner
	Stats       StatsSource
	Clock       Clock
	Metrics     metrics.Recorder
	Observer    Observer
	Logger      *zap.SugaredLogger
	MemoryStats func() (*mem.VirtualMemoryStat, error)
}

// Observer is told about every finished run and health check. Calls happen
// outside the scheduler lock and must not block.
type Observer interface {
	RunFinished(name job.Name, trigger string, result job.Result)
	HealthChecked(report HealthReport)
}

type nopObserver struct{}

func (nopObserver) RunFinished(job.Name, string, job.Result) {}
func (nopObserver) HealthChecked(HealthReport) {}

type pendingRun struct {
	name  job.Name
	trig  trigger
	due   time.Time
	timer Timer
}

// Scheduler runs the URL expiration and token cleanup jobs on timers.
//
// All job status lives behind mu. A run is admitted by flipping IsRunning
// under the lock, so at most one run per job executes at any time whatever
// goroutine the request arrives on.
type Scheduler struct {
	expirer  Expirer
	cleaner  Cleaner
	stats    StatsSource
	clock    Clock
	metrics  metrics.Recorder
	observer Observer
	memStats func() (*mem.VirtualMemoryStat, error)
	log      *zap.SugaredLogger

	mu          sync.Mutex
	started     bool
	gen         uint64 // bumped on every Start; stale timer callbacks compare against it
	startedAt   time.Time
	cfg         Config
	cron        *cron.Cron
	entries     map[job.Name]cron.EntryID
	pending     map[uint64]*pendingRun
	nextPending uint64
	statuses    map[job.Name]*job.Status

	inflight sync.WaitGroup
}

// New creates a stopped scheduler
func New(deps Deps) *Scheduler {
	s := &Scheduler{
		expirer:  deps.Expirer,
		cleaner:  deps.Cleaner,
		stats:    deps.Stats,
		clock:    deps.Clock,
		metrics:  deps.Metrics,
		observer: deps.Observer,
		memStats: deps.MemoryStats,
		log:      logger.AddPulseSymbol(logger.OrNop(deps.Logger).Named("pulse.scheduler")),
		pending:  make(map[uint64]*pendingRun),
		statuses: make(map[job.Name]*job.Status),
	}
	if s.clock == nil {
		s.clock = RealClock()
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.memStats == nil {
		s.memStats = mem.VirtualMemory
	}
	for _, name := range job.Names() {
		s.statuses[name] = &job.Status{}
	}
	return s
}

// Start arms the periodic job and health check timers plus a delayed
// initial run of each job. It returns false if the scheduler is already
// started, disabled by cfg, or the timers cannot be armed.
func (s *Scheduler) Start(cfg Config) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.log.Warnw("Scheduler already started, ignoring start request")
		return false
	}
	if !cfg.Enabled {
		s.log.Infow("Scheduler disabled by configuration, not starting")
		return false
	}
	if err := cfg.validate(); err != nil {
		s.log.Errorw("Scheduler not started: invalid configuration", logger.FieldError, err)
		return false
	}
	if cfg.MaxConcurrentJobs > 1 {
		s.log.Infow("max_concurrent_jobs above 1 has no effect: each job runs at most once at a time",
			"max_concurrent_jobs", cfg.MaxConcurrentJobs)
	}

	gen := s.gen + 1
	cl := cronLogger{log: s.log}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl)))

	entries := make(map[job.Name]cron.EntryID, len(job.Names()))
	for _, name := range job.Names() {
		name := name
		id, err := c.AddFunc("@every "+cfg.interval(name).String(), func() {
			s.fire(gen, name, triggerScheduled)
		})
		if err != nil {
			s.log.Errorw("Scheduler not started: cannot arm job timer",
				logger.FieldJob, string(name), logger.FieldError, err)
			return false
		}
		entries[name] = id
	}

	healthEvery := time.Duration(cfg.HealthCheckIntervalMinutes) * time.Minute
	if _, err := c.AddFunc("@every "+healthEvery.String(), func() { s.runHealthCheck(gen) }); err != nil {
		s.log.Errorw("Scheduler not started: cannot arm health check timer", logger.FieldError, err)
		return false
	}

	s.gen = gen
	s.cfg = cfg
	s.cron = c
	s.entries = entries
	s.started = true
	s.startedAt = s.clock.Now()
	c.Start()

	for _, name := range job.Names() {
		s.armLocked(cfg.InitialDelay, name, triggerInitial)
	}

	s.log.Infow("Scheduler started",
		"interval_minutes", cfg.IntervalMinutes,
		"cleanup_interval_minutes", cfg.CleanupIntervalMinutes,
		"health_check_interval_minutes", cfg.HealthCheckIntervalMinutes,
		"initial_delay", cfg.InitialDelay.String(),
		"retry_on_failure", cfg.RetryOnFailure)
	return true
}

// Stop cancels every timer. Runs already executing finish and still record
// their status. Returns false if the scheduler was not started.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return false
	}
	s.started = false
	c := s.cron
	s.cron = nil
	s.entries = nil
	for id, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, id)
	}
	s.mu.Unlock()

	// cron's stop context tracks running jobs; in-flight runs are not waited on
	c.Stop()
	s.log.Infow("Scheduler stopped")
	return true
}

// Wait blocks until no run is executing or ctx is done
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for in-flight job runs")
	}
}

// IsStarted reports whether timers are armed
func (s *Scheduler) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// TriggerURLExpiration runs the expiration job now, bypassing timers and the
// circuit breaker, and returns its result. ErrJobRunning if a run is in flight.
func (s *Scheduler) TriggerURLExpiration(ctx context.Context) (job.Result, error) {
	return s.execute(ctx, job.URLExpiration, triggerManual)
}

// TriggerPasswordResetCleanup runs the cleanup job now and reports whether
// it succeeded. ErrJobRunning if a run is in flight.
func (s *Scheduler) TriggerPasswordResetCleanup(ctx context.Context) (bool, error) {
	result, err := s.execute(ctx, job.PasswordResetCleanup, triggerManual)
	if err != nil {
		return false, err
	}
	return result.Success, nil
}

// Trigger runs the named job manually
func (s *Scheduler) Trigger(ctx context.Context, name job.Name) (job.Result, error) {
	return s.execute(ctx, name, triggerManual)
}

// ResetJobStatistics zeroes the counters of one job, or of every job for
// job.All. A run in flight keeps its IsRunning guard.
func (s *Scheduler) ResetJobStatistics(name string) error {
	n, err := job.ParseName(name, true)
	if err != nil {
		return err
	}

	targets := []job.Name{n}
	if n == job.All {
		targets = job.Names()
	}

	s.mu.Lock()
	for _, t := range targets {
		s.statuses[t].Reset()
	}
	s.mu.Unlock()

	for _, t := range targets {
		s.metrics.JobHealth(string(t), 0, false)
	}
	s.log.Infow("Job statistics reset", logger.FieldJob, name)
	return nil
}

// JobStatistics returns aggregate URL counts from storage
func (s *Scheduler) JobStatistics(ctx context.Context) (*links.Stats, error) {
	if s.stats == nil {
		return nil, errors.New("no statistics source configured")
	}
	return s.stats.Statistics(ctx, s.clock.Now())
}

// CleanupStats returns the cumulative statistics of the cleanup job
func (s *Scheduler) CleanupStats() cleanup.Stats {
	if s.cleaner == nil {
		return cleanup.Stats{}
	}
	return s.cleaner.Stats()
}

// fire is the timer entry point. Callbacks from a previous Start are dropped.
func (s *Scheduler) fire(gen uint64, name job.Name, trig trigger) {
	s.mu.Lock()
	current := s.started && s.gen == gen
	s.mu.Unlock()
	if !current {
		return
	}

	if _, err := s.execute(context.Background(), name, trig); err != nil {
		s.log.Debugw("Timer fire did not run job",
			logger.FieldJob, string(name),
			logger.FieldTrigger, string(trig),
			logger.FieldError, err)
	}
}

// armLocked schedules a one-shot run. Callers hold mu.
func (s *Scheduler) armLocked(d time.Duration, name job.Name, trig trigger) {
	id := s.nextPending
	s.nextPending++
	gen := s.gen

	p := &pendingRun{name: name, trig: trig, due: s.clock.Now().Add(d)}
	s.pending[id] = p
	p.timer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		_, ok := s.pending[id]
		delete(s.pending, id)
		s.mu.Unlock()
		if ok {
			s.fire(gen, name, trig)
		}
	})

	s.log.Debugw("One-shot run armed",
		logger.FieldJob, string(name),
		logger.FieldTrigger, string(trig),
		logger.FieldNextRun, p.due)
}

// execute admits, runs and records one job run
func (s *Scheduler) execute(ctx context.Context, name job.Name, trig trigger) (job.Result, error) {
	s.mu.Lock()
	st, ok := s.statuses[name]
	if !ok {
		s.mu.Unlock()
		return job.Result{}, errors.Wrapf(ErrUnknownJob, "%q", name)
	}
	if trig != triggerManual && st.ConsecutiveFailures >= BreakerThreshold {
		failures := st.ConsecutiveFailures
		s.mu.Unlock()
		s.log.Warnw("Skipping run, circuit breaker open",
			logger.FieldJob, string(name),
			logger.FieldTrigger, string(trig),
			logger.FieldConsecutiveFailures, failures)
		s.metrics.RunSkipped(string(name), metrics.SkipBreaker)
		return job.Result{}, errors.Wrapf(ErrBreakerOpen, "%s", name)
	}
	if st.IsRunning {
		s.mu.Unlock()
		s.log.Warnw("Skipping run, job already running",
			logger.FieldJob, string(name),
			logger.FieldTrigger, string(trig))
		s.metrics.RunSkipped(string(name), metrics.SkipRunning)
		return job.Result{}, errors.Wrapf(ErrJobRunning, "%s", name)
	}
	st.IsRunning = true
	timeout := s.cfg.runTimeout()
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	s.metrics.RunStarted(string(name))

	// The run outlives the caller and Stop; only the run timeout ends it early
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	started := s.clock.Now()
	result := s.runJob(runCtx, name, started)
	finished := s.clock.Now()

	s.mu.Lock()
	st.IsRunning = false
	st.Record(result.Success, finished)
	failures := st.ConsecutiveFailures
	retrying := trig != triggerManual && !result.Success && s.started &&
		s.cfg.RetryOnFailure && failures < RetryFailureLimit
	if retrying {
		s.armLocked(time.Duration(s.cfg.RetryDelayMinutes)*time.Minute, name, triggerRetry)
	}
	s.mu.Unlock()

	s.metrics.RunFinished(string(name), result.Success, finished.Sub(started), result.ExpiredCount)
	s.metrics.JobHealth(string(name), failures, failures >= BreakerThreshold)
	s.observer.RunFinished(name, string(trig), result)

	fields := []interface{}{
		logger.FieldJob, string(name),
		logger.FieldTrigger, string(trig),
		logger.FieldRunID, result.RunID,
		logger.FieldProcessed, result.ProcessedCount,
		logger.FieldExpired, result.ExpiredCount,
		logger.FieldDurationMS, result.ExecutionTimeMs,
		logger.FieldConsecutiveFailures, failures,
	}
	switch {
	case result.Success:
		s.log.Infow("Job run succeeded", fields...)
	case failures == BreakerThreshold:
		s.log.Errorw("Job failed repeatedly, scheduled runs suspended until a manual run succeeds",
			append(fields, logger.FieldErrors, result.Errors)...)
	default:
		s.log.Warnw("Job run failed",
			append(fields, logger.FieldErrors, result.Errors, "retry_scheduled", retrying)...)
	}
	return result, nil
}

// runJob dispatches to the job body. A panic becomes a failed result.
func (s *Scheduler) runJob(ctx context.Context, name job.Name, started time.Time) (result job.Result) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.Newf("panic in %s: %v", name, r)
			s.log.Errorw("Job panicked",
				logger.FieldJob, string(name),
				logger.FieldError, err,
				"stack", string(debug.Stack()))
			result = job.FailedResult(uuid.NewString(), started, s.clock.Now(), err)
		}
	}()

	switch name {
	case job.URLExpiration:
		return s.expirer.Run(ctx)
	case job.PasswordResetCleanup:
		return s.runCleanup(ctx, started)
	}
	return job.FailedResult(uuid.NewString(), started, s.clock.Now(),
		errors.Wrapf(ErrUnknownJob, "%q", name))
}

func (s *Scheduler) runCleanup(ctx context.Context, started time.Time) job.Result {
	ok := s.cleaner.Run(ctx)
	stats := s.cleaner.Stats()
	finished := s.clock.Now()

	result := job.Result{
		RunID:           uuid.NewString(),
		Success:         ok,
		Errors:          []string{},
		ExecutionTimeMs: job.ElapsedMs(started, finished),
		Timestamp:       finished,
	}
	if ok {
		result.ProcessedCount = int(stats.LastCleanupCount)
	} else {
		result.Errors = []string{fmt.Sprintf("token cleanup failed: %s", stats.LastError)}
	}
	return result
}
