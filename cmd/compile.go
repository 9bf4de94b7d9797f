package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kris-hansen/metagent/utils/fileutil"
	"github.com/kris-hansen/metagent/utils/pipeline"
	"github.com/kris-hansen/metagent/utils/progress"
)

var (
	compileProvider   string
	compileModel      string
	compileOutput     string
	compileIROnly     bool
	compileCheckpoint bool
)

var compileCmd = &cobra.Command{
	Use:   "compile <spec-file>",
	Short: "Compile a natural-language workflow spec into an agent program",
	Long: `Compile runs the full pipeline on a specification file:
parse the labeled sections, infer the workflow IR with an LLM, validate
it, and emit a self-contained agent source file.

The spec file uses labeled sections:

  Workflow: data_processing_pipeline
  Description: Fetch and score customer data
  Inputs:
  - customer_id (string): Customer identifier
  Steps:
  1. Fetch customer data from database using customer_id
  2. Calculate lifetime value
  Outputs:
  - result (string): Computed score`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specPath, err := fileutil.ExpandPath(args[0])
		if err != nil {
			return fmt.Errorf("invalid spec path: %w", err)
		}

		rawSpec, err := fileutil.SafeReadFile(specPath)
		if err != nil {
			return fmt.Errorf("failed to read spec file: %w", err)
		}

		opts := pipeline.Options{
			Provider:     compileProvider,
			ModelVersion: compileModel,
			EnvConfig:    envConfig,
			Verbose:      debug,
		}
		if compileModel == "" {
			if m := envConfig.GetProviderDefaultModel(compileProvider); m != "" {
				opts.ModelVersion = m
			}
		}
		if compileCheckpoint {
			opts.Sink = pipeline.NewFileSink(envConfig.GetCheckpointDir())
		}

		spinner := progress.NewSpinner()
		if verbose || debug {
			spinner.Disable()
		}
		spinner.Start(fmt.Sprintf("Compiling %s with %s...", filepath.Base(specPath), compileProvider))

		result, err := pipeline.Compile(context.Background(), string(rawSpec), opts)
		spinner.Stop()
		if err != nil {
			if result != nil && result.Status == pipeline.StatusFailed {
				printErrors(result.Errors)
			}
			return err
		}

		switch result.Status {
		case pipeline.StatusEscalated:
			log.Printf("Escalated for human review (confidence %.2f)\n", result.Confidence)
			printErrors(result.Errors)
			if result.SerializedIR != "" {
				log.Println("Partial IR:")
				fmt.Println(result.SerializedIR)
			}
			os.Exit(2)

		case pipeline.StatusComplete:
			log.Printf("Compiled workflow %q (confidence %.2f, %d bytes)\n",
				result.WorkflowName, result.Confidence, result.Metadata.CodeSize)

			if compileIROnly {
				return writeOutput(result.SerializedIR, compileOutput, result.WorkflowName+".json")
			}
			if err := writeOutput(result.GeneratedCode, compileOutput, result.WorkflowName+".py"); err != nil {
				return err
			}
			if debug {
				metaJSON, _ := json.MarshalIndent(result.Metadata, "", "  ")
				log.Printf("Generation metadata:\n%s\n", metaJSON)
			}
		}
		return nil
	},
}

func printErrors(errs []string) {
	for _, e := range errs {
		log.Printf("  - %s\n", e)
	}
}

// writeOutput writes content to the --output path, a derived default
// file name, or stdout when output is "-".
func writeOutput(content, output, defaultName string) error {
	if output == "-" {
		fmt.Println(content)
		return nil
	}
	path := output
	if path == "" {
		path = defaultName
	}
	expanded, err := fileutil.ExpandPath(path)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if err := os.WriteFile(expanded, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	log.Printf("Wrote %s\n", expanded)
	return nil
}

func init() {
	compileCmd.Flags().StringVarP(&compileProvider, "provider", "p", "claude", "LLM provider (claude, aimlapi, gemini)")
	compileCmd.Flags().StringVarP(&compileModel, "model", "m", "", "model override for the selected provider")
	compileCmd.Flags().StringVarP(&compileOutput, "output", "o", "", "output file (default: <workflow>.py, or <workflow>.json with --ir-only; '-' for stdout)")
	compileCmd.Flags().BoolVar(&compileIROnly, "ir-only", false, "emit the serialized IR instead of generated code")
	compileCmd.Flags().BoolVar(&compileCheckpoint, "checkpoint", false, "persist state checkpoints to disk")
	rootCmd.AddCommand(compileCmd)
}
