package cmd

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/kris-hansen/metagent/utils/config"
)

// version is a placeholder for the version string, which will be set at build time.
var version string

var verbose bool
var debug bool

// envConfig holds the loaded environment configuration, available to all commands
var envConfig *config.EnvConfig

var rootCmd = &cobra.Command{
	Use:   "metagent",
	Short: "Compile natural-language workflow specs into executable agents",
	Long: `Metagent transforms natural-language workflow specifications into
executable agent programs through a two-phase compiler pipeline:
an LLM-supervised spec-to-IR phase and a deterministic IR-to-code phase.

Getting Started:
  1. metagent configure          Set up your provider API keys
  2. metagent compile spec.txt   Compile a specification to an agent
  3. metagent validate ir.json   Re-validate a serialized IR

Configuration is stored in ~/.metagent/config.yaml`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Remove timestamps for cleaner CLI output
		log.SetFlags(0)

		config.Verbose = verbose
		config.Debug = debug

		envPath := config.GetEnvPath()
		loaded, err := config.LoadEnvConfig(envPath)
		if err != nil {
			return err
		}
		envConfig = loaded
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")

	if version == "" {
		version = "dev"
	}
	rootCmd.Version = version
}
