package commands

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/linkpulse/linkpulse/am"
	"github.com/linkpulse/linkpulse/errors"
	"github.com/linkpulse/linkpulse/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.AM + " Show and check linkpulse configuration",
	Long: sym.AM + ` am: linkpulse configuration ("I am")

Configuration sources (in order of precedence):
1. Environment variables (LINKPULSE_* prefix, plus SCHEDULER_ENABLED,
   URL_EXPIRATION_INTERVAL_MINUTES, HEALTH_CHECK_INTERVAL_MINUTES,
   URL_EXPIRATION_BATCH_SIZE and DB_PATH)
2. Project config (./linkpulse.toml, searched upwards)
3. User config (~/.linkpulse/linkpulse.toml)
4. System config (/etc/linkpulse/linkpulse.toml)
5. Default values

Examples:
  linkpulse am show                    # Effective configuration as TOML
  linkpulse am show --format json
  linkpulse am check ./linkpulse.toml  # Validate a file, flag unknown keys
  linkpulse am where                   # Which config files exist`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE:  runAmShow,
}

var amCheckCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Validate configuration",
	Long:  "Validate the effective configuration, or a single file with unknown keys reported",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAmCheck,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	RunE:  runAmWhere,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", am.FormatTOML, "Output format: toml, json, yaml")
	AmCmd.AddCommand(amShowCmd, amCheckCmd, amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	out, err := am.Render(am.NewViper().AllSettings(), configFormat)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func runAmCheck(cmd *cobra.Command, args []string) error {
	var (
		cfg *am.Config
		err error
	)
	if len(args) == 1 {
		unknown, err := am.CheckFile(args[0])
		if err != nil {
			return err
		}
		for _, key := range unknown {
			pterm.Warning.Printf("Unknown key %q (ignored)\n", key)
		}
		cfg, err = am.LoadFromFile(args[0])
		if err != nil {
			return err
		}
	} else {
		cfg, err = am.Load()
		if err != nil {
			return err
		}
	}

	if err := cfg.Validate(); err != nil {
		pterm.Error.Println(err.Error())
		return errors.New("configuration is invalid")
	}
	pterm.Success.Printf("%s Configuration is valid\n", sym.AM)
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	pterm.Printf("%s Configuration files (lowest precedence first)\n", sym.AM)
	for _, path := range am.SearchPaths() {
		if _, err := os.Stat(path); err == nil {
			pterm.Printf("  %s %s\n", pterm.Green("✓"), path)
		} else {
			pterm.Printf("  %s %s\n", pterm.Gray("✗"), path)
		}
	}
	return nil
}
