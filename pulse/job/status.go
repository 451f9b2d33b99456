package job

import "time"

// Status is the cumulative health record of one job. The scheduler owns it;
// callers only ever see copies.
//
// TotalExecutions always equals TotalSuccesses + TotalFailures.
type Status struct {
	IsRunning           bool       `json:"isRunning"`
	LastExecution       *time.Time `json:"lastExecution,omitempty"`
	LastSuccess         *time.Time `json:"lastSuccess,omitempty"`
	LastFailure         *time.Time `json:"lastFailure,omitempty"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	TotalExecutions     int        `json:"totalExecutions"`
	TotalSuccesses      int        `json:"totalSuccesses"`
	TotalFailures       int        `json:"totalFailures"`
}

// Record folds the outcome of a finished run into the counters
func (s *Status) Record(success bool, at time.Time) {
	s.TotalExecutions++
	s.LastExecution = timePtr(at)

	if success {
		s.TotalSuccesses++
		s.ConsecutiveFailures = 0
		s.LastSuccess = timePtr(at)
		return
	}
	s.TotalFailures++
	s.ConsecutiveFailures++
	s.LastFailure = timePtr(at)
}

// Reset returns the counters to their initial state. IsRunning is left as
// is so a run in flight keeps its guard.
func (s *Status) Reset() {
	*s = Status{IsRunning: s.IsRunning}
}

// Clone returns a deep copy
func (s Status) Clone() Status {
	c := s
	c.LastExecution = copyTime(s.LastExecution)
	c.LastSuccess = copyTime(s.LastSuccess)
	c.LastFailure = copyTime(s.LastFailure)
	return c
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return timePtr(*t)
}
