package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kolkov/affinity/cmd/affinityweave/printer"
)

var weaveOutput string

var weaveCmd = &cobra.Command{
	Use:   "weave [dir]",
	Short: "Write a woven copy of the module",
	Long: `Copies the module holding dir (default: the current directory) to the
output directory, weaves guarded types in the copy and links the affinity
runtime into its go.mod. The original sources are never modified.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		if weaveOutput == "" {
			return printer.Error("Missing output directory", "weave needs somewhere to write the copy.",
				[]string{"Pass -o DIR, for example: affinityweave weave -o ../app-woven"})
		}
		if entries, err := os.ReadDir(weaveOutput); err == nil && len(entries) > 0 {
			return printer.ErrorWithContext("Output directory is not empty", "",
				[][2]string{{"Output", weaveOutput}},
				[]string{"Remove it first", "Choose another directory with -o"})
		}

		ws, stats, err := prepare(cmd.Context(), dir, weaveOutput)
		if err != nil {
			return printer.Error("Weaving failed", err.Error(), nil)
		}
		if stats.Total() == 0 {
			printer.Warning("no guarded types found in %s\n", ws.srcRoot)
		}
		printer.Success("wove %s into %s: %s\n", ws.srcRoot, ws.dir, stats)
		return nil
	},
}

func init() {
	weaveCmd.Flags().StringVarP(&weaveOutput, "output", "o", "", "directory for the woven copy")
	rootCmd.AddCommand(weaveCmd)
}
