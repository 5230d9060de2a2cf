package commands

import (
	"github.com/spf13/cobra"

	"github.com/kolkov/affinity/affinity"
	"github.com/kolkov/affinity/cmd/affinityweave/printer"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the runtime version and affinity policy",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		info := affinity.GetInfo()
		printer.Info("affinityweave %s\n", rootCmd.Version)
		printer.Info("runtime       %s\n", info.Version)
		printer.Info("policy        %s\n", info.AffinityPolicy)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
