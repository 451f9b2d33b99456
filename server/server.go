// Package server exposes the scheduler over a small admin HTTP API:
// status, statistics, manual triggers, counter resets, health, metrics and a
// websocket stream of run and health events.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/linkpulse/linkpulse/errors"
	"github.com/linkpulse/linkpulse/links"
	"github.com/linkpulse/linkpulse/logger"
	"github.com/linkpulse/linkpulse/pulse/job"
	"github.com/linkpulse/linkpulse/pulse/schedule"
)

// Scheduler is the part of *schedule.Scheduler the API drives
type Scheduler interface {
	Status() schedule.Snapshot
	Trigger(ctx context.Context, name job.Name) (job.Result, error)
	ResetJobStatistics(name string) error
	JobStatistics(ctx context.Context) (*links.Stats, error)
	HealthCheck(ctx context.Context) schedule.HealthReport
}

// Server serves the admin API
type Server struct {
	sched    Scheduler
	gatherer prometheus.Gatherer
	events   *EventHub
	logger   *zap.SugaredLogger
	mux      *http.ServeMux
	http     *http.Server
}

// New creates a server. gatherer and events may be nil, in which case
// /metrics and /api/pulse/events are not registered.
func New(sched Scheduler, gatherer prometheus.Gatherer, events *EventHub, log *zap.SugaredLogger) *Server {
	s := &Server{
		sched:    sched,
		gatherer: gatherer,
		events:   events,
		logger:   logger.AddPulseSymbol(logger.OrNop(log).Named("server")),
		mux:      http.NewServeMux(),
	}
	s.setupHTTPRoutes()
	s.http = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens on port until Shutdown is called. It returns nil at once if
// Shutdown already ran.
func (s *Server) Start(port int) error {
	ln, err := net.Listen("tcp", listenAddr(port))
	if err != nil {
		return errors.Wrapf(err, "listen on port %d", port)
	}
	s.logger.Infow("HTTP server listening", "addr", ln.Addr().String())
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, disconnects event clients and waits for
// active requests until ctx ends. It is safe to call before or during Start.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Infow("Initiating server shutdown")
	if s.events != nil {
		s.events.Close()
	}
	return s.http.Shutdown(ctx)
}
