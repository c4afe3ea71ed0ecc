package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"guildbot/pkg/config"
)

// envSecretsPassword lets deployments unlock the secrets file without an
// interactive prompt (systemd units, containers).
const envSecretsPassword = "GUILDBOT_SECRETS_PASSWORD"

// credentialPrompt describes one secret collected during -setup-secrets.
type credentialPrompt struct {
	name     string
	label    string
	required bool
}

//nolint:gochecknoglobals // Static prompt table.
var credentialPrompts = []credentialPrompt{
	{name: config.EnvBotToken, label: "Bot token", required: true},
	{name: config.EnvAnthropicAPIKey, label: "Anthropic API key", required: false},
	{name: config.EnvOpenAIAPIKey, label: "OpenAI API key", required: false},
	{name: config.EnvGoogleAPIKey, label: "Google API key", required: false},
}

// runSecretsSetup interactively collects credentials and writes them to the
// encrypted secrets file under the data directory.
func runSecretsSetup(workDir string) error {
	fmt.Println("🔐 guildbot secrets setup")
	fmt.Printf("Credentials will be encrypted into %s\n", filepath.Join(workDir, config.DataDirName, "secrets.json.enc"))

	if config.SecretsFileExists(workDir) {
		fmt.Println("⚠️  A secrets file already exists and will be overwritten.")
	}

	password, err := promptForPassword()
	if err != nil {
		return err
	}

	secrets := make(map[string]string)
	reader := bufio.NewReader(os.Stdin)
	for _, p := range credentialPrompts {
		value, err := promptForSecret(reader, p)
		if err != nil {
			return err
		}
		if value != "" {
			secrets[p.name] = value
		}
	}

	if err := config.EncryptSecretsFile(workDir, password, secrets); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}

	fmt.Printf("✅ Saved %d credential(s). Set %s to skip the password prompt at startup.\n",
		len(secrets), envSecretsPassword)
	return nil
}

// promptForPassword prompts for the encryption password with confirmation.
func promptForPassword() (string, error) {
	maxAttempts := 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fmt.Println()
		fmt.Print("Enter a password for the secrets file: ")
		password1, err := term.ReadPassword(syscall.Stdin)
		fmt.Println() // New line after password input
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}

		fmt.Print("Confirm password: ")
		password2, err := term.ReadPassword(syscall.Stdin)
		fmt.Println() // New line after password input
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}

		if !bytes.Equal(password1, password2) {
			if attempt < maxAttempts {
				fmt.Println("❌ Passwords do not match. Please try again.")
				continue
			}
			return "", fmt.Errorf("passwords do not match after %d attempts", maxAttempts)
		}

		if len(password1) == 0 {
			if attempt < maxAttempts {
				fmt.Println("❌ Password cannot be empty. Please try again.")
				continue
			}
			return "", fmt.Errorf("no password entered after %d attempts", maxAttempts)
		}

		password := string(password1)

		// Clear password bytes from memory
		for i := range password1 {
			password1[i] = 0
		}
		for i := range password2 {
			password2[i] = 0
		}

		return password, nil
	}
	return "", fmt.Errorf("password entry failed")
}

// promptForSecret reads one credential from stdin. Required credentials are
// re-prompted until non-empty; optional ones accept a blank line.
func promptForSecret(reader *bufio.Reader, p credentialPrompt) (string, error) {
	for {
		if p.required {
			fmt.Printf("%s (%s): ", p.label, p.name)
		} else {
			fmt.Printf("%s (%s, blank to skip): ", p.label, p.name)
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", p.label, err)
		}
		value := strings.TrimSpace(line)
		if value == "" && p.required {
			fmt.Println("❌ This credential is required.")
			continue
		}
		return value, nil
	}
}
