package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/linkpulse/linkpulse/am"
	"github.com/linkpulse/linkpulse/auth"
	"github.com/linkpulse/linkpulse/db"
	"github.com/linkpulse/linkpulse/errors"
	"github.com/linkpulse/linkpulse/links"
	"github.com/linkpulse/linkpulse/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage the linkpulse database",
	Long: sym.DB + ` db: Manage the linkpulse database

Examples:
  linkpulse db migrate            # Apply pending migrations
  linkpulse db stats              # Show URL and token counts`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show URL and reset token statistics",
	RunE:  runDbStats,
}

var dbPathFlag string

func init() {
	DbCmd.PersistentFlags().StringVar(&dbPathFlag, "path", "", "Database path (default from database.path)")
	DbCmd.AddCommand(dbMigrateCmd, dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	database, err := openDatabase(dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	versions, err := db.AppliedVersions(database)
	if err != nil {
		return err
	}
	pterm.Success.Printf("%s Database up to date (%d migrations applied)\n", sym.DB, len(versions))
	for _, v := range versions {
		pterm.Printf("  %s\n", v)
	}
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	path := dbPathFlag
	if path == "" {
		cfg, err := am.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load configuration")
		}
		path = cfg.Database.Path
	}

	database, err := openDatabase(path)
	if err != nil {
		return err
	}
	defer database.Close()

	stats, err := links.NewStore(database).Statistics(cmd.Context(), time.Now())
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenStore(database, time.Now).Count(cmd.Context())
	if err != nil {
		return err
	}

	pterm.Printf("%s Database Statistics\n", sym.DB)
	pterm.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	data := pterm.TableData{
		{"Database path", path},
		{"Short URLs", fmt.Sprint(stats.Total)},
		{"  active", fmt.Sprint(stats.Active)},
		{"  expired", fmt.Sprint(stats.Expired)},
		{"  disabled", fmt.Sprint(stats.Disabled)},
		{"Pending expiration", fmt.Sprint(stats.PendingExpiration)},
		{"Expiring within 24h", fmt.Sprint(stats.ExpiringWithin24h)},
		{"Reset tokens", fmt.Sprint(tokens)},
	}
	return pterm.DefaultTable.WithData(data).Render()
}
