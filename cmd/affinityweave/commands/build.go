package commands

import (
	"fmt"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kolkov/affinity/cmd/affinityweave/printer"
)

var buildCmd = &cobra.Command{
	Use:   "build [build flags] [packages]",
	Short: "Weave and build, as a drop-in for go build",
	Long: `Copies the module to a temporary directory, weaves guarded types, links
the affinity runtime and runs go build there. The binary is written next to
your sources, or where -o says.

All go build flags are passed through:

  affinityweave build -o app ./cmd/app
  affinityweave build -ldflags="-s -w" .`,
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := parseGoArgs(args, false)
		if err != nil {
			return printer.Error("Invalid arguments", err.Error(), []string{"Run 'affinityweave build --help' for usage"})
		}
		if cfg.help {
			return cmd.Help()
		}
		return runBuild(cmd, cfg)
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

// goArgs is the parsed command line of build and run.
type goArgs struct {
	// packages are the positional package or file arguments.
	packages []string

	// output is the -o value, empty when not given.
	output string

	// flags are passed through to the go tool.
	flags []string

	// progArgs follow the package for run.
	progArgs []string

	workDir string
	help    bool
}

// parseGoArgs separates affinityweave's own flags (-o, -v, -c/--config)
// from go tool flags. With run set, everything after the first package
// argument belongs to the program.
func parseGoArgs(args []string, run bool) (*goArgs, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	cfg := &goArgs{workDir: cwd}

	expectingValue := false
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if expectingValue {
			cfg.flags = append(cfg.flags, arg)
			expectingValue = false
			continue
		}

		switch {
		case arg == "-h" || arg == "--help":
			cfg.help = true
			continue
		case arg == "-o" && !run:
			if i+1 >= len(args) {
				return nil, fmt.Errorf("-o flag requires an argument")
			}
			i++
			cfg.output = args[i]
			continue
		case strings.HasPrefix(arg, "-o=") && !run:
			cfg.output = strings.TrimPrefix(arg, "-o=")
			continue
		case arg == "-c" || arg == "--config":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%s flag requires an argument", arg)
			}
			i++
			configPath = args[i]
			continue
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
			continue
		case arg == "-v":
			verbose = true
			cfg.flags = append(cfg.flags, arg)
			continue
		case arg == "--":
			if run {
				cfg.progArgs = append(cfg.progArgs, args[i+1:]...)
				i = len(args)
			}
			continue
		case strings.HasPrefix(arg, "-"):
			cfg.flags = append(cfg.flags, arg)
			expectingValue = needsValue(arg)
			continue
		}

		cfg.packages = append(cfg.packages, arg)
		if run {
			// go run takes .go files or one package, then program arguments.
			if !strings.HasSuffix(arg, ".go") {
				cfg.progArgs = append(cfg.progArgs, args[i+1:]...)
				break
			}
			for i+1 < len(args) && strings.HasSuffix(args[i+1], ".go") {
				i++
				cfg.packages = append(cfg.packages, args[i])
			}
			cfg.progArgs = append(cfg.progArgs, args[i+1:]...)
			break
		}
	}

	if len(cfg.packages) == 0 {
		cfg.packages = []string{"."}
	}
	return cfg, nil
}

// needsValue reports whether a go tool flag consumes the next argument.
func needsValue(flag string) bool {
	switch flag {
	case "-ldflags", "-gcflags", "-asmflags", "-gccgoflags",
		"-tags", "-installsuffix", "-buildmode", "-mod",
		"-modfile", "-overlay", "-pkgdir", "-toolexec", "-p":
		return true
	}
	return false
}

// defaultOutput mirrors go build's naming for a main package in dir.
func defaultOutput(dir string) string {
	name := filepath.Base(dir)
	if goruntime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(dir, name)
}

func runBuild(cmd *cobra.Command, cfg *goArgs) error {
	ctx := cmd.Context()
	ws, stats, err := prepare(ctx, cfg.workDir, "")
	if err != nil {
		return printer.Error("Weaving failed", err.Error(), nil)
	}
	defer ws.cleanup()

	if stats.Total() == 0 {
		printer.Warning("no guarded types found, building without checks\n")
	}

	if err := goCmd(ctx, ws.dir, nil, "mod", "tidy"); err != nil {
		return printer.Error("go mod tidy failed", err.Error(), nil)
	}

	output := cfg.output
	if output == "" {
		output = defaultOutput(cfg.workDir)
	} else if !filepath.IsAbs(output) {
		output = filepath.Join(cfg.workDir, output)
	}

	dir, err := ws.path(cfg.workDir)
	if err != nil {
		return printer.Error("Build failed", err.Error(), nil)
	}
	args := append([]string{"build", "-o", output}, cfg.flags...)
	args = append(args, cfg.packages...)
	if err := goCmd(ctx, dir, nil, args...); err != nil {
		return printer.Error("Build failed", err.Error(), nil)
	}

	printer.Success("built %s with %s\n", output, stats)
	return nil
}
