package config

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// PromptPassword reads a secret value from the terminal without echoing it.
// Falls back to an error when stdin is not a terminal so that scripted runs
// fail loudly instead of hanging.
func PromptPassword(prompt string) (string, error) {
	fmt.Print(prompt)

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal; set the API key via environment variable instead")
	}

	secret, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read secret input: %w", err)
	}
	return string(secret), nil
}
