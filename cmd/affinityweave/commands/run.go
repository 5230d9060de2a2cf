package commands

import (
	"errors"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/kolkov/affinity/cmd/affinityweave/printer"
)

var runCmd = &cobra.Command{
	Use:   "run [build flags] package [arguments...]",
	Short: "Weave and run, as a drop-in for go run",
	Long: `Weaves a temporary copy of the module and runs the package there. The
program's working directory is the original source directory's counterpart
in the copy; standard input and output are passed through.

  affinityweave run . -port 8080
  affinityweave run main.go helper.go`,
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := parseGoArgs(args, true)
		if err != nil {
			return printer.Error("Invalid arguments", err.Error(), []string{"Run 'affinityweave run --help' for usage"})
		}
		if cfg.help {
			return cmd.Help()
		}
		return runRun(cmd, cfg)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, cfg *goArgs) error {
	ctx := cmd.Context()
	ws, _, err := prepare(ctx, cfg.workDir, "")
	if err != nil {
		return printer.Error("Weaving failed", err.Error(), nil)
	}
	defer ws.cleanup()

	if err := goCmd(ctx, ws.dir, nil, "mod", "tidy"); err != nil {
		return printer.Error("go mod tidy failed", err.Error(), nil)
	}

	dir, err := ws.path(cfg.workDir)
	if err != nil {
		return printer.Error("Run failed", err.Error(), nil)
	}
	args := append([]string{"run"}, cfg.flags...)
	args = append(args, cfg.packages...)
	args = append(args, cfg.progArgs...)
	err = goCmd(ctx, dir, os.Stdin, args...)

	// The program's own exit status is not a weaving failure.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	if err != nil {
		return printer.Error("Run failed", err.Error(), nil)
	}
	return nil
}
