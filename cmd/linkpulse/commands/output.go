package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/pterm/pterm"

	"github.com/linkpulse/linkpulse/errors"
	"github.com/linkpulse/linkpulse/pulse/job"
	"github.com/linkpulse/linkpulse/pulse/schedule"
	"github.com/linkpulse/linkpulse/sym"
)

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to format JSON")
	}
	fmt.Println(string(out))
	return nil
}

func printResult(name job.Name, r job.Result) {
	if r.Success {
		pterm.Success.Printf("%s %s finished in %dms\n", sym.Pulse, name, r.ExecutionTimeMs)
	} else {
		pterm.Error.Printf("%s %s failed after %dms\n", sym.Pulse, name, r.ExecutionTimeMs)
	}
	pterm.Printf("  Run:       %s\n", r.RunID)
	pterm.Printf("  Processed: %s\n", pterm.Green(fmt.Sprintf("%d", r.ProcessedCount)))
	if name == job.URLExpiration {
		pterm.Printf("  Expired:   %s\n", pterm.Green(fmt.Sprintf("%d", r.ExpiredCount)))
	}
	for _, e := range r.Errors {
		pterm.Printf("  Error:     %s\n", pterm.Red(e))
	}
}

func printSnapshot(snap schedule.Snapshot) {
	state := pterm.Red("stopped")
	if snap.IsStarted {
		state = pterm.Green("started")
	}
	pterm.Printf("%s Scheduler %s\n\n", sym.Pulse, state)

	data := pterm.TableData{{"Job", "Running", "Runs", "OK", "Failed", "Streak", "Breaker", "Last run", "Next run"}}
	for _, name := range sortedJobs(snap.Jobs) {
		js := snap.Jobs[name]
		breaker := "closed"
		if js.BreakerOpen {
			breaker = pterm.Red("open")
		}
		data = append(data, []string{
			string(name),
			fmt.Sprintf("%t", js.IsRunning),
			fmt.Sprintf("%d", js.TotalExecutions),
			fmt.Sprintf("%d", js.TotalSuccesses),
			fmt.Sprintf("%d", js.TotalFailures),
			fmt.Sprintf("%d", js.ConsecutiveFailures),
			breaker,
			formatTime(js.LastExecution),
			formatTime(js.NextExecution),
		})
	}
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func printHealth(status string, r schedule.HealthReport) {
	if r.Healthy {
		pterm.Success.Printf("%s Health %s\n", sym.Pulse, status)
	} else {
		pterm.Warning.Printf("%s Health %s\n", sym.Pulse, status)
	}
	for _, w := range r.Warnings {
		pterm.Printf("  ! %s\n", w)
	}
	if r.Storage != nil {
		pterm.Printf("  URLs: %d active, %d expired, %d pending expiration\n",
			r.Storage.Active, r.Storage.Expired, r.Storage.PendingExpiration)
	}
	if r.StorageError != "" {
		pterm.Printf("  Storage: %s\n", pterm.Red(r.StorageError))
	}
	pterm.Printf("  Tokens cleaned: %d over %d runs\n", r.Cleanup.TotalTokensCleanedUp, r.Cleanup.TotalRuns)
	if r.Memory != nil {
		pterm.Printf("  Memory: %.1f%% used\n", r.Memory.UsedPercent)
	}
}

func sortedJobs(jobs map[job.Name]schedule.JobSnapshot) []job.Name {
	names := make([]job.Name, 0, len(jobs))
	for name := range jobs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
