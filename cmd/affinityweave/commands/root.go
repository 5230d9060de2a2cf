package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kolkov/affinity/cmd/affinityweave/instrument"
	"github.com/kolkov/affinity/internal/affinity/config"
)

var (
	configPath string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "affinityweave",
	Short: "affinityweave - weave goroutine-affinity checks into Go code",
	Long: `affinityweave rewrites a copy of your module so that every exported
method of a guarded type checks which goroutine calls it. Calls made off the
event-loop goroutine are reported by the affinity runtime.

Types are guarded with a //affinity:guarded directive or through the
weave.guarded_types list in affinity.yml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command. Errors are printed by the printer package.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: $"+config.EnvVar+" or ./"+config.DefaultFile+" in the module root)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print each step")
}

// loadConfig resolves the config file: the --config flag, then the
// environment variable, then affinity.yml in moduleRoot.
func loadConfig(moduleRoot string) (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	if os.Getenv(config.EnvVar) != "" {
		return config.FromEnv()
	}
	path := filepath.Join(moduleRoot, config.DefaultFile)
	if _, err := os.Stat(path); err == nil {
		return config.Load(path)
	}
	return config.Default(), nil
}

// weaveOptions maps the weave section of cfg onto instrument options.
func weaveOptions(cfg *config.Config) instrument.Options {
	return instrument.Options{
		GuardedTypes:  cfg.Weave.GuardedTypes,
		AttachMethods: cfg.Weave.AttachMethods,
		Classifier:    cfg.Classifier(),
	}
}
