package cmd

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kris-hansen/metagent/utils/config"
	"github.com/kris-hansen/metagent/utils/models"
)

var configureList bool

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Set up provider API keys and default models",
	Long: `Configure interactively stores provider API keys and default models
in ~/.metagent/config.yaml. Environment variables (ANTHROPIC_API_KEY,
AIMLAPI_KEY, GEMINI_API_KEY) always take precedence over the file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configureList {
			return listConfiguration()
		}
		return runConfigure()
	},
}

func listConfiguration() error {
	providers := []string{models.ProviderClaude, models.ProviderAIMLAPI, models.ProviderGemini}
	for _, name := range providers {
		key := envConfig.GetProviderAPIKey(name)
		status := "not configured"
		if key != "" {
			status = "configured"
			if os.Getenv(config.ProviderEnvVar(name)) != "" {
				status = "configured (environment)"
			}
		}
		model := envConfig.GetProviderDefaultModel(name)
		if model == "" {
			model = models.DefaultModel(name) + " (default)"
		}
		log.Printf("%-8s %-26s model: %s\n", name, status, model)
	}
	return nil
}

func runConfigure() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Printf("Select provider to configure (claude, aimlapi, gemini): ")
	providerName, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	providerName = strings.TrimSpace(strings.ToLower(providerName))

	if _, err := models.CreateProvider(providerName); err != nil {
		return err
	}

	apiKey, err := config.PromptPassword(fmt.Sprintf("Enter API key for %s: ", providerName))
	if err != nil {
		return fmt.Errorf("error reading API key: %w", err)
	}
	if apiKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	fmt.Printf("Default model [%s]: ", models.DefaultModel(providerName))
	modelName, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	modelName = strings.TrimSpace(modelName)
	if modelName != "" && !models.GetRegistry().ValidateModel(providerName, modelName) {
		log.Printf("Warning: model %q is not in the registry for %s; keeping it anyway\n", modelName, providerName)
	}

	envConfig.SetProvider(providerName, &config.ProviderConfig{
		APIKey:       apiKey,
		DefaultModel: modelName,
	})

	envPath := config.GetEnvPath()
	if err := envConfig.Save(envPath); err != nil {
		return err
	}

	log.Printf("Saved configuration for %s to %s\n", providerName, envPath)
	return nil
}

func init() {
	configureCmd.Flags().BoolVarP(&configureList, "list", "l", false, "list configured providers")
	rootCmd.AddCommand(configureCmd)
}
