package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/linkpulse/linkpulse/links"
	"github.com/linkpulse/linkpulse/logger"
	"github.com/linkpulse/linkpulse/pulse/cleanup"
	"github.com/linkpulse/linkpulse/pulse/job"
)

const healthCheckTimeout = time.Minute

// MemoryUsage is the host memory picture at check time
type MemoryUsage struct {
	TotalBytes     uint64  `json:"totalBytes"`
	AvailableBytes uint64  `json:"availableBytes"`
	UsedPercent    float64 `json:"usedPercent"`
}

// HealthReport is produced by every health check
type HealthReport struct {
	CheckedAt    time.Time               `json:"checkedAt"`
	IsStarted    bool                    `json:"isStarted"`
	Healthy      bool                    `json:"healthy"`
	Jobs         map[job.Name]job.Status `json:"jobs"`
	Storage      *links.Stats            `json:"storage,omitempty"`
	StorageError string                  `json:"storageError,omitempty"`
	Cleanup      cleanup.Stats           `json:"cleanup"`
	Memory       *MemoryUsage            `json:"memory,omitempty"`
	Warnings     []string                `json:"warnings"`
}

// HealthCheck inspects job status, storage and memory, logs the findings
// and returns them. It never changes scheduler state.
func (s *Scheduler) HealthCheck(ctx context.Context) HealthReport {
	now := s.clock.Now()

	s.mu.Lock()
	report := HealthReport{
		CheckedAt: now,
		IsStarted: s.started,
		Jobs:      make(map[job.Name]job.Status, len(s.statuses)),
		Warnings:  []string{},
	}
	for _, name := range job.Names() {
		report.Jobs[name] = s.statuses[name].Clone()
	}
	s.mu.Unlock()

	for _, name := range job.Names() {
		st := report.Jobs[name]
		if st.ConsecutiveFailures >= HealthWarnFailures {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%s has failed %d consecutive times", name, st.ConsecutiveFailures))
		}
		if st.LastExecution != nil && now.Sub(*st.LastExecution) > StaleRunThreshold {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%s last ran %s ago", name, now.Sub(*st.LastExecution).Round(time.Minute)))
		}
	}

	if stats, err := s.JobStatistics(ctx); err != nil {
		report.StorageError = err.Error()
		report.Warnings = append(report.Warnings, "storage statistics unavailable: "+err.Error())
	} else {
		report.Storage = stats
	}

	report.Cleanup = s.CleanupStats()

	if vm, err := s.memStats(); err != nil {
		s.log.Debugw("Memory statistics unavailable", logger.FieldError, err)
	} else if vm != nil {
		report.Memory = &MemoryUsage{
			TotalBytes:     vm.Total,
			AvailableBytes: vm.Available,
			UsedPercent:    vm.UsedPercent,
		}
	}

	report.Healthy = len(report.Warnings) == 0
	s.logHealth(report)
	s.observer.HealthChecked(report)
	return report
}

func (s *Scheduler) logHealth(r HealthReport) {
	for _, w := range r.Warnings {
		s.log.Warnw("Health check warning", "warning", w)
	}

	fields := []interface{}{
		"healthy", r.Healthy,
		"is_started", r.IsStarted,
		"warnings", len(r.Warnings),
		"tokens_cleaned_total", r.Cleanup.TotalTokensCleanedUp,
	}
	for name, st := range r.Jobs {
		fields = append(fields, string(name)+"_failures", st.ConsecutiveFailures)
	}
	if r.Storage != nil {
		fields = append(fields,
			"urls_active", r.Storage.Active,
			"urls_pending_expiration", r.Storage.PendingExpiration)
	}
	if r.Memory != nil {
		fields = append(fields, "memory_used_percent", r.Memory.UsedPercent)
	}
	s.log.Infow("Health check", fields...)
}

// runHealthCheck is the periodic entry point
func (s *Scheduler) runHealthCheck(gen uint64) {
	s.mu.Lock()
	current := s.started && s.gen == gen
	s.mu.Unlock()
	if !current {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()
	s.HealthCheck(ctx)
}
