package cmd

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/kris-hansen/metagent/utils/generator"
	"github.com/kris-hansen/metagent/utils/validator"
)

var generateOutput string

var generateCmd = &cobra.Command{
	Use:   "generate <ir-file>",
	Short: "Generate agent code from a validated IR file",
	Long: `Generate skips the LLM phase entirely: it validates a serialized
IR file and runs the deterministic code generator on it. Useful for
regenerating agents after a generator upgrade, or for IRs produced
elsewhere.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := loadSpec(args[0])
		if err != nil {
			return err
		}

		result := validator.Validate(spec)
		if !result.Valid {
			log.Println(result.ErrorSummary())
			os.Exit(1)
		}

		code, meta, err := generator.New(spec).Generate(1.0)
		if err != nil {
			return err
		}

		log.Printf("Generated %d bytes for workflow %q (fingerprint %x)\n",
			meta.CodeSize, meta.WorkflowName, meta.Fingerprint)
		return writeOutput(code, generateOutput, spec.Name+".py")
	},
}

func init() {
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "output file (default: <workflow>.py, '-' for stdout)")
	rootCmd.AddCommand(generateCmd)
}
