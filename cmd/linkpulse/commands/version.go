package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/linkpulse/linkpulse/errors"
	"github.com/linkpulse/linkpulse/version"
)

// VersionCmd represents the version command
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show linkpulse version information",
	Long: `Display version, build time, commit hash, and platform information.

With --require, exit non-zero unless the build satisfies a semver
constraint, e.g. --require ">= 1.2".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		require, _ := cmd.Flags().GetString("require")

		info := version.Get()

		if require != "" {
			ok, err := info.Satisfies(require)
			if err != nil {
				return err
			}
			if !ok {
				return errors.Newf("version %s does not satisfy %s", info.Version, require)
			}
		}

		if jsonOutput {
			output, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to format JSON")
			}
			fmt.Println(string(output))
			return nil
		}
		fmt.Println(info.String())
		fmt.Printf("Platform: %s\n", info.Platform)
		fmt.Printf("Go: %s\n", info.GoVersion)
		return nil
	},
}

func init() {
	VersionCmd.Flags().BoolP("json", "j", false, "Output version info as JSON")
	VersionCmd.Flags().String("require", "", "Semver constraint the build must satisfy")
}
