package server

// Admin HTTP handlers:
// - Health (HandleHealth)
// - Scheduler status and URL statistics (HandlePulseStatus, HandlePulseStatistics)
// - Manual triggers and counter resets (HandlePulseTrigger, HandlePulseReset)

import (
	"net/http"

	"github.com/linkpulse/linkpulse/logger"
	"github.com/linkpulse/linkpulse/pulse/job"
	"github.com/linkpulse/linkpulse/version"
)

// HandleHealth runs a health check and reports it with build info
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.sched.HealthCheck(r.Context())
	info := version.Get()

	status := "ok"
	if !report.Healthy {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"version": info.Version,
		"commit":  info.CommitHash,
		"report":  report,
	})
}

// HandlePulseStatus returns the scheduler snapshot
func (s *Server) HandlePulseStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Status())
}

// HandlePulseStatistics returns aggregate URL counts
func (s *Server) HandlePulseStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.sched.JobStatistics(r.Context())
	if err != nil {
		s.logger.Errorw("Failed to load URL statistics", logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to load statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandlePulseTrigger runs a job now and returns its result.
// 409 if the job is already running, 404 for unknown jobs.
func (s *Server) HandlePulseTrigger(w http.ResponseWriter, r *http.Request) {
	name, err := job.ParseName(r.PathValue("name"), false)
	if err != nil {
		writeSchedulerError(w, err)
		return
	}

	s.logger.Infow("Pulse manual trigger", logger.FieldJob, string(name), "remote", r.RemoteAddr)

	result, err := s.sched.Trigger(r.Context(), name)
	if err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandlePulseReset zeroes the counters of one job, or of all jobs for "all"
func (s *Server) HandlePulseReset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.sched.ResetJobStatistics(name); err != nil {
		writeSchedulerError(w, err)
		return
	}

	s.logger.Infow("Pulse statistics reset", logger.FieldJob, name, "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, map[string]string{"reset": name})
}
