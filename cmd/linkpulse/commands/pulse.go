package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/linkpulse/linkpulse/am"
	"github.com/linkpulse/linkpulse/errors"
	"github.com/linkpulse/linkpulse/logger"
	"github.com/linkpulse/linkpulse/pulse/job"
	"github.com/linkpulse/linkpulse/pulse/schedule"
	"github.com/linkpulse/linkpulse/server"
	"github.com/linkpulse/linkpulse/sym"
)

const shutdownTimeout = 30 * time.Second

// PulseCmd groups the scheduler commands
var PulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: sym.Pulse + " Run or drive the background job scheduler",
	Long: sym.Pulse + ` pulse: background job scheduler

Jobs:
  urlExpiration         flips short URLs past their expiry to expired, in batches
  passwordResetCleanup  deletes expired and used password reset tokens

start runs the scheduler in the foreground. status, trigger, reset and
health talk to a running daemon over its admin API. run executes one job
in-process against the database, without a daemon.

Examples:
  linkpulse pulse start --watch
  linkpulse pulse status
  linkpulse pulse trigger urlExpiration
  linkpulse pulse reset all
  linkpulse pulse run passwordResetCleanup`,
}

var pulseStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the scheduler daemon",
	Long: `Start the scheduler in the foreground with the admin API.

With --watch, edits to the config file restart the scheduler timers with the
new intervals. Runs in flight are not interrupted. Ctrl+C stops the timers,
waits for running jobs and exits.`,
	RunE: runPulseStart,
}

var pulseRunCmd = &cobra.Command{
	Use:   "run <job>",
	Short: "Run one job now, in-process",
	Args:  cobra.ExactArgs(1),
	RunE:  runPulseRun,
}

var pulseStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show job status from a running daemon",
	RunE:  runPulseStatus,
}

var pulseTriggerCmd = &cobra.Command{
	Use:   "trigger <job>",
	Short: "Trigger a job on a running daemon",
	Args:  cobra.ExactArgs(1),
	RunE:  runPulseTrigger,
}

var pulseResetCmd = &cobra.Command{
	Use:   "reset <job|all>",
	Short: "Reset job counters on a running daemon",
	Args:  cobra.ExactArgs(1),
	RunE:  runPulseReset,
}

var pulseHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run a health check on a running daemon",
	RunE:  runPulseHealth,
}

var (
	configPathFlag string
	watchFlag      bool
	serverAddrFlag string
	jsonFlag       bool
)

func init() {
	pulseStartCmd.Flags().StringVar(&configPathFlag, "config", "", "Config file to load (and watch with --watch)")
	pulseStartCmd.Flags().BoolVar(&watchFlag, "watch", false, "Reload scheduler timing when the config file changes")

	for _, c := range []*cobra.Command{pulseStatusCmd, pulseTriggerCmd, pulseResetCmd, pulseHealthCmd} {
		c.Flags().StringVar(&serverAddrFlag, "server", "", "Admin API base URL (default http://localhost:<server.port>)")
		c.Flags().BoolVarP(&jsonFlag, "json", "j", false, "Output raw JSON")
	}
	pulseRunCmd.Flags().BoolVarP(&jsonFlag, "json", "j", false, "Output raw JSON")

	PulseCmd.AddCommand(pulseStartCmd, pulseRunCmd, pulseStatusCmd, pulseTriggerCmd, pulseResetCmd, pulseHealthCmd)
}

func loadConfig(path string) (*am.Config, error) {
	var (
		cfg *am.Config
		err error
	)
	if path != "" {
		cfg, err = am.LoadFromFile(path)
	} else {
		cfg, err = am.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func runPulseStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPathFlag)
	if err != nil {
		return err
	}

	log := logger.Logger
	database, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	rt, err := newRuntime(cfg, database, log)
	if err != nil {
		return err
	}

	schedCfg := schedule.ConfigFromAm(cfg)
	if !rt.scheduler.Start(schedCfg) {
		pterm.Warning.Println("Scheduler not started (disabled or invalid timing); admin API only")
	}

	var srv *server.Server
	serverErr := make(chan error, 1)
	if cfg.Server.Enabled {
		srv = server.New(rt.scheduler, rt.registry, rt.events, log)
		go func() { serverErr <- srv.Start(cfg.Server.Port) }()
	}

	if watchFlag {
		watcher, err := startConfigWatcher(configPathFlag, rt.scheduler)
		if err != nil {
			return err
		}
		defer watcher.Stop()
	}

	logger.AddPulseOpenSymbol(log).Infow("Pulse daemon started",
		"database", cfg.Database.Path,
		"interval_minutes", schedCfg.IntervalMinutes,
		"server_enabled", cfg.Server.Enabled,
		"server_port", cfg.Server.Port)
	pterm.Success.Printf("%s Pulse daemon started (expiration every %dm, cleanup every %dm)\n",
		sym.Pulse, schedCfg.IntervalMinutes, schedCfg.CleanupIntervalMinutes)
	pterm.Info.Println("Press Ctrl+C for graceful shutdown")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			pterm.Error.Printf("Admin server failed: %v\n", err)
		}
	}

	pterm.Info.Println("Shutting down gracefully...")
	rt.scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnw("Admin server shutdown error", logger.FieldError, err)
		}
	}
	if err := rt.scheduler.Wait(shutdownCtx); err != nil {
		pterm.Warning.Println("Jobs still running at shutdown deadline")
		return err
	}

	logger.AddPulseCloseSymbol(log).Infow("Pulse daemon stopped")
	pterm.Success.Println("Pulse daemon stopped cleanly")
	return nil
}

// startConfigWatcher restarts the scheduler timers on every valid config change
func startConfigWatcher(path string, sched *schedule.Scheduler) (*am.ConfigWatcher, error) {
	if path == "" {
		path = lastExistingConfig()
	}
	if path == "" {
		return nil, errors.WithHint(
			errors.New("no config file to watch"),
			"pass --config or create "+am.ConfigFileName)
	}

	watcher, err := am.NewConfigWatcher(path, logger.Logger)
	if err != nil {
		return nil, err
	}
	watcher.OnReload(func(cfg *am.Config) error {
		sched.Stop()
		if !sched.Start(schedule.ConfigFromAm(cfg)) {
			return errors.New("scheduler did not restart with reloaded config")
		}
		pterm.Info.Printf("%s Config reloaded, scheduler timers re-armed\n", sym.AM)
		return nil
	})
	watcher.Start()
	return watcher, nil
}

func lastExistingConfig() string {
	paths := am.SearchPaths()
	for i := len(paths) - 1; i >= 0; i-- {
		if _, err := os.Stat(paths[i]); err == nil {
			return paths[i]
		}
	}
	return ""
}

func runPulseRun(cmd *cobra.Command, args []string) error {
	name, err := job.ParseName(args[0], false)
	if err != nil {
		return err
	}
	cfg, err := loadConfig("")
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	rt, err := newRuntime(cfg, database, logger.Logger)
	if err != nil {
		return err
	}
	result, err := rt.scheduler.Trigger(cmd.Context(), name)
	if err != nil {
		return err
	}
	if jsonFlag {
		return printJSON(result)
	}
	printResult(name, result)
	return nil
}

func runPulseStatus(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient(serverAddrFlag)
	if err != nil {
		return err
	}
	var snap schedule.Snapshot
	if err := client.get(cmd.Context(), "/api/pulse/status", &snap); err != nil {
		return err
	}
	if jsonFlag {
		return printJSON(snap)
	}
	printSnapshot(snap)
	return nil
}

func runPulseTrigger(cmd *cobra.Command, args []string) error {
	name, err := job.ParseName(args[0], false)
	if err != nil {
		return err
	}
	client, err := newAPIClient(serverAddrFlag)
	if err != nil {
		return err
	}
	var result job.Result
	if err := client.post(cmd.Context(), "/api/pulse/jobs/"+string(name)+"/trigger", &result); err != nil {
		return err
	}
	if jsonFlag {
		return printJSON(result)
	}
	printResult(name, result)
	return nil
}

func runPulseReset(cmd *cobra.Command, args []string) error {
	name, err := job.ParseName(args[0], true)
	if err != nil {
		return err
	}
	client, err := newAPIClient(serverAddrFlag)
	if err != nil {
		return err
	}
	if err := client.post(cmd.Context(), "/api/pulse/jobs/"+string(name)+"/reset", nil); err != nil {
		return err
	}
	pterm.Success.Printf("Statistics reset for %s\n", name)
	return nil
}

func runPulseHealth(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient(serverAddrFlag)
	if err != nil {
		return err
	}
	var body struct {
		Status string                `json:"status"`
		Report schedule.HealthReport `json:"report"`
	}
	if err := client.get(cmd.Context(), "/health", &body); err != nil {
		return err
	}
	if jsonFlag {
		return printJSON(body)
	}
	printHealth(body.Status, body.Report)
	return nil
}
