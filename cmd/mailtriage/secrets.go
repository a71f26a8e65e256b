package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mailtriage/pkg/config"
	"mailtriage/pkg/logx"
)

// envSecretsPassword supplies the secrets password non-interactively.
const envSecretsPassword = "MAILTRIAGE_SECRETS_PASSWORD"

var errNoPassword = errors.New("no secrets password: set " + envSecretsPassword + " or run on a terminal")

func newSecretsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the encrypted secrets file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set NAME",
		Short: "Store a secret, such as GEMINI_API_KEY, in the secrets file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return fmt.Errorf("secret name is empty")
			}
			sf := config.NewSecretsFile(root.cfg.Storage.SecretsFile)
			password, err := readSecret("Secrets password: ", envSecretsPassword)
			if err != nil {
				return err
			}
			value, err := readSecret(fmt.Sprintf("Value for %s: ", name), "")
			if err != nil {
				return err
			}
			if value == "" {
				return fmt.Errorf("refusing to store an empty value for %s", name)
			}
			if err := sf.Set(password, name, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s in %s\n", name, sf.Path)
			return nil
		},
	})
	return cmd
}

// loadSecrets decrypts the secrets file when the configured provider needs a key that the
// config does not already carry. A missing file or password is not an error; the key is
// then looked up in the environment.
func loadSecrets(cfg *config.Config) (map[string]string, error) {
	if cfg.LLM.APIKey != "" || len(cfg.LLM.APIKeyEnvVars()) == 0 || cfg.Storage.SecretsFile == "" {
		return nil, nil
	}
	sf := config.NewSecretsFile(cfg.Storage.SecretsFile)
	if !sf.Exists() {
		return nil, nil
	}
	password, err := readSecret("Secrets password: ", envSecretsPassword)
	if errors.Is(err, errNoPassword) {
		logx.NewLogger("secrets").Warn("Secrets file %s found but no password available; using the environment", sf.Path)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	secrets, err := sf.Load(password)
	if err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}
	return secrets, nil
}

// readSecret returns the value of env when set, otherwise prompts on the terminal
// without echo.
func readSecret(prompt, env string) (string, error) {
	if env != "" {
		if v := os.Getenv(env); v != "" {
			return v, nil
		}
	}
	fd := int(os.Stdin.Fd()) //nolint:gosec // fd fits in int
	if !term.IsTerminal(fd) {
		if env == "" {
			return "", fmt.Errorf("cannot prompt for a secret: stdin is not a terminal")
		}
		return "", errNoPassword
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
