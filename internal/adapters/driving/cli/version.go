package cli

import (
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	// The version must print even when configuration is broken.
	PersistentPreRun: func(*cobra.Command, []string) {},
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("layerforge version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
