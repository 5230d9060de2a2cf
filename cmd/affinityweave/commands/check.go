package commands

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kolkov/affinity/cmd/affinityweave/instrument"
	"github.com/kolkov/affinity/cmd/affinityweave/printer"
	"github.com/kolkov/affinity/cmd/affinityweave/runtime"
)

var checkCmd = &cobra.Command{
	Use:   "check [dir...]",
	Short: "List the hooks weaving would insert",
	Long: `Parses each package directory (default: the current directory) and
prints every guarded function with the entry hook it would receive. Nothing
is written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			args = []string{"."}
		}

		root, err := runtime.FindModuleRoot(args[0])
		if err != nil {
			return printer.Error("Check failed", err.Error(), nil)
		}
		cfg, err := loadConfig(root)
		if err != nil {
			return printer.Error("Invalid configuration", err.Error(), nil)
		}
		opts := weaveOptions(cfg)

		var total instrument.Stats
		tw := tabwriter.NewWriter(printer.Out, 0, 4, 2, ' ', 0)
		for _, dir := range args {
			res, err := instrument.Package(cmd.Context(), dir, opts)
			if err != nil {
				return printer.Error("Check failed", err.Error(), nil)
			}
			for _, h := range res.Hooks() {
				fmt.Fprintf(tw, "%s:%d\t%s\t%s\t%s\n",
					relTo(root, h.Pos.Filename), h.Pos.Line, h.Type, h.Signature, hookKind(h))
			}
			total.Add(res.Stats)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		if total.Total() == 0 {
			printer.Warning("no guarded types found\n")
			return nil
		}
		printer.Success("%s\n", total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func hookKind(h instrument.Hook) string {
	kind := "strict"
	switch {
	case h.Constructor:
		kind = "constructor"
	case h.Exempt:
		kind = "exempt"
	}
	if h.Attach != "" {
		kind += ", attach " + h.Attach
	}
	return kind
}

func relTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}
