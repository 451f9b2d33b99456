package schedule

import (
	"time"

	"github.com/linkpulse/linkpulse/pulse/job"
)

// JobSnapshot is a point-in-time copy of one job's status
type JobSnapshot struct {
	job.Status
	BreakerOpen   bool       `json:"breakerOpen"`
	NextExecution *time.Time `json:"nextExecution,omitempty"`
}

// Snapshot is returned by Status. It shares no memory with the scheduler.
type Snapshot struct {
	IsStarted bool                     `json:"isStarted"`
	Jobs      map[job.Name]JobSnapshot `json:"jobs"`
	Config    Config                   `json:"config"`
}

// Status returns a copy of every job's status plus the next time each job
// will run. NextExecution is nil while the scheduler is stopped.
func (s *Scheduler) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		IsStarted: s.started,
		Jobs:      make(map[job.Name]JobSnapshot, len(s.statuses)),
		Config:    s.cfg,
	}
	for _, name := range job.Names() {
		st := s.statuses[name]
		js := JobSnapshot{
			Status:      st.Clone(),
			BreakerOpen: st.ConsecutiveFailures >= BreakerThreshold,
		}
		if s.started {
			next := s.nextExecutionLocked(name)
			js.NextExecution = &next
		}
		snap.Jobs[name] = js
	}
	return snap
}

// nextExecutionLocked returns the earliest of the periodic entry and any
// pending one-shot run. Callers hold mu.
func (s *Scheduler) nextExecutionLocked(name job.Name) time.Time {
	var next time.Time
	if id, ok := s.entries[name]; ok && s.cron != nil {
		next = s.cron.Entry(id).Next
	}
	if next.IsZero() {
		// cron computes Next on its own goroutine shortly after Start
		next = s.startedAt.Add(s.cfg.interval(name))
	}
	for _, p := range s.pending {
		if p.name == name && p.due.Before(next) {
			next = p.due
		}
	}
	return next
}
