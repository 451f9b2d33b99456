package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/linkpulse/linkpulse/am"
	"github.com/linkpulse/linkpulse/cmd/linkpulse/commands"
	"github.com/linkpulse/linkpulse/errors"
	"github.com/linkpulse/linkpulse/logger"
)

var rootCmd = &cobra.Command{
	Use:   "linkpulse",
	Short: "linkpulse - short URL expiration and maintenance daemon",
	Long: `linkpulse - background maintenance for a URL shortener.

Runs the jobs that keep short URL storage tidy: flipping expired links to
their expired state in batches and purging stale password reset tokens.

Available commands:
  pulse   - Run the scheduler daemon or drive a running one
  db      - Migrate and inspect the database
  am      - Show and check configuration ("I am")
  version - Show build information

Examples:
  linkpulse pulse start              # Start the scheduler in the foreground
  linkpulse pulse status             # Job status from a running daemon
  linkpulse pulse trigger urlExpiration
  linkpulse db stats                 # URL and token counts`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonOutput, _ := cmd.Flags().GetBool("log-json")
		if !cmd.Flags().Changed("log-json") {
			if cfg, err := am.Load(); err == nil {
				jsonOutput = cfg.Log.JSON
			}
		}
		if err := logger.InitializeWithVerbosity(jsonOutput, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		if verbosity > 0 {
			logger.Logger.Infow("Verbose logging enabled", "level", logger.LevelName(verbosity))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit JSON logs (default from log.json)")

	rootCmd.AddCommand(commands.PulseCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
