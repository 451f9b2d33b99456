package commands

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/linkpulse/linkpulse/am"
	"github.com/linkpulse/linkpulse/auth"
	"github.com/linkpulse/linkpulse/errors"
	"github.com/linkpulse/linkpulse/links"
	"github.com/linkpulse/linkpulse/pulse/cleanup"
	"github.com/linkpulse/linkpulse/pulse/expiry"
	"github.com/linkpulse/linkpulse/pulse/metrics"
	"github.com/linkpulse/linkpulse/pulse/schedule"
	"github.com/linkpulse/linkpulse/server"
)

// runtime is the wired set of jobs around one database
type runtime struct {
	scheduler *schedule.Scheduler
	registry  *prometheus.Registry
	events    *server.EventHub
	links     *links.Store
	tokens    *auth.TokenStore
}

// newRuntime wires storage, jobs, metrics, the event hub and the scheduler.
// The scheduler is returned stopped.
func newRuntime(cfg *am.Config, database *sql.DB, log *zap.SugaredLogger) (*runtime, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to register metrics")
	}

	linkStore := links.NewStore(database)
	tokenStore := auth.NewTokenStore(database, time.Now)

	engine := expiry.NewEngine(linkStore, expiry.ConfigFromAm(cfg.Expiration), log)
	cleaner := cleanup.NewJob(tokenStore, log, time.Now)
	events := server.NewEventHub(log)

	sched := schedule.New(schedule.Deps{
		Expirer:  engine,
		Cleaner:  cleaner,
		Stats:    linkStore,
		Metrics:  collector,
		Observer: events,
		Logger:   log,
	})

	return &runtime{
		scheduler: sched,
		registry:  reg,
		events:    events,
		links:     linkStore,
		tokens:    tokenStore,
	}, nil
}
