package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linkpulse/linkpulse/logger"
)

// setupHTTPRoutes configures all HTTP handlers
func (s *Server) setupHTTPRoutes() {
	s.handle("GET /health", s.HandleHealth)
	s.handle("GET /api/pulse/status", s.HandlePulseStatus)
	s.handle("GET /api/pulse/statistics", s.HandlePulseStatistics)
	s.handle("POST /api/pulse/jobs/{name}/trigger", s.HandlePulseTrigger)
	s.handle("POST /api/pulse/jobs/{name}/reset", s.HandlePulseReset)

	// Hijacked connections bypass the request log wrapper
	if s.events != nil {
		s.mux.HandleFunc("GET /api/pulse/events", s.events.ServeWS)
	}
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, s.requestLogMiddleware(h))
}

// requestLogMiddleware logs each request with its status and duration
func (s *Server) requestLogMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.logger.Debugw("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			logger.FieldStatus, rec.status,
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
			"remote", r.RemoteAddr)
	}
}

func listenAddr(port int) string {
	return fmt.Sprintf(":%d", port)
}
