package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/kris-hansen/metagent/utils/ast"
	"github.com/kris-hansen/metagent/utils/fileutil"
	"github.com/kris-hansen/metagent/utils/validator"
)

var validateCmd = &cobra.Command{
	Use:   "validate <ir-file>",
	Short: "Validate a serialized workflow IR",
	Long: `Validate parses a serialized IR file and checks every invariant:
schema shape, identifier syntax, variable scoping, routing integrity and
condition safety. Exit status is non-zero when validation fails.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := loadSpec(args[0])
		if err != nil {
			return err
		}

		result := validator.Validate(spec)
		for _, w := range result.Warnings {
			log.Printf("warning: %s\n", w.String())
		}
		if !result.Valid {
			log.Println(result.ErrorSummary())
			os.Exit(1)
		}

		log.Printf("Workflow %q is valid (%d inputs, %d outputs)\n",
			spec.Name, len(spec.Inputs), len(spec.Outputs))
		return nil
	},
}

func loadSpec(path string) (*ast.WorkflowSpec, error) {
	expanded, err := fileutil.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid IR path: %w", err)
	}
	data, err := fileutil.SafeReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read IR file: %w", err)
	}
	spec, err := ast.ParseWorkflowSpec(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse IR: %w", err)
	}
	return spec, nil
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
