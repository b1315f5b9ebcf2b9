package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dwander/schedule-parser-v2/credentials"
	scherrors "github.com/dwander/schedule-parser-v2/pkg/errors"
)

// NewAuthCommand creates the auth command group.
func NewAuthCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the LLM API key",
		Long: `Manage the API key the hybrid engine uses for the LLM reformatter.

The key is stored encrypted (AES-256-GCM) in ~/.sched/credentials.yaml. The
encryption key comes from SCHED_ENCRYPTION_KEY, the system keyring, or a
passphrase (--passphrase, or SCHED_PASSPHRASE for non-interactive use).

OPENAI_API_KEY in the environment takes precedence over the stored key.`,
	}

	cmd.AddCommand(newAuthSetKeyCommand(deps))
	cmd.AddCommand(newAuthStatusCommand(deps))
	cmd.AddCommand(newAuthClearCommand(deps))

	return cmd
}

func newAuthSetKeyCommand(deps *CommandDeps) *cobra.Command {
	var (
		apiKey         string
		usePassphrase  bool
		nonInteractive bool
	)

	cmd := &cobra.Command{
		Use:   "set-key",
		Short: "Store the LLM API key",
		Long: `Store the LLM API key, encrypted.

Examples:
  # Prompt for the key (input hidden)
  sched auth set-key

  # Protect the key with a passphrase instead of the keyring
  sched auth set-key --passphrase

  # Scripted
  sched auth set-key --key "$KEY" --non-interactive`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthSetKey(cmd, deps, apiKey, usePassphrase, nonInteractive)
		},
	}

	cmd.Flags().StringVar(&apiKey, "key", "", "API key (prompted when omitted)")
	cmd.Flags().BoolVar(&usePassphrase, "passphrase", false, "Derive the encryption key from a passphrase")
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "Fail instead of prompting for input")

	return cmd
}

func runAuthSetKey(cmd *cobra.Command, deps *CommandDeps, apiKey string, usePassphrase, nonInteractive bool) error {
	cfg, err := deps.config()
	if err != nil {
		return err
	}

	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		if nonInteractive {
			return fmt.Errorf("%w: no API key provided and --non-interactive set", scherrors.ErrNoInput)
		}
		if apiKey, err = deps.ReadSecret("API key: "); err != nil {
			return err
		}
	}
	if err := validateAPIKey(apiKey); err != nil {
		return err
	}

	var store *credentials.Store
	if usePassphrase {
		pass := os.Getenv(credentials.PassphraseEnv)
		if pass == "" {
			if nonInteractive {
				return fmt.Errorf("%w: --passphrase needs %s with --non-interactive", scherrors.ErrNoInput, credentials.PassphraseEnv)
			}
			if pass, err = deps.ReadSecret("Passphrase: "); err != nil {
				return err
			}
		}
		store, err = credentials.NewPassphraseStore(pass)
	} else {
		store, err = deps.OpenStore()
	}
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}

	if err := store.Save(&credentials.Credentials{Provider: cfg.LLM.Provider, APIKey: apiKey}); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "API key saved.")
	fmt.Fprintf(w, "  Provider:   %s\n", cfg.LLM.Provider)
	fmt.Fprintf(w, "  Key:        %s (id %s)\n", credentials.MaskAPIKey(apiKey), credentials.KeyID(apiKey))
	fmt.Fprintf(w, "  Encryption: %s\n", store.KeyDescription())
	if path, err := credentials.CredentialsPath(); err == nil {
		fmt.Fprintf(w, "  Stored in:  %s\n", path)
	}
	if os.Getenv(credentials.APIKeyEnv) != "" {
		fmt.Fprintf(w, "\nNote: %s is set and takes precedence over the stored key.\n", credentials.APIKeyEnv)
	}
	return nil
}

// validateAPIKey performs basic validation on an API key.
func validateAPIKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: API key is empty", scherrors.ErrValidation)
	case len(key) < 8:
		return fmt.Errorf("%w: API key is too short", scherrors.ErrValidation)
	case strings.ContainsAny(key, " \t\r\n"):
		return fmt.Errorf("%w: API key contains whitespace", scherrors.ErrValidation)
	}
	return nil
}

// AuthStatus is the structured output of `sched auth status`.
type AuthStatus struct {
	Active     bool   `json:"active" yaml:"active"`
	Source     string `json:"source,omitempty" yaml:"source,omitempty"`
	Key        string `json:"key,omitempty" yaml:"key,omitempty"`
	KeyID      string `json:"key_id,omitempty" yaml:"key_id,omitempty"`
	Provider   string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Stored     bool   `json:"stored" yaml:"stored"`
	Encryption string `json:"encryption,omitempty" yaml:"encryption,omitempty"`
	StoreError string `json:"store_error,omitempty" yaml:"store_error,omitempty"`
}

func newAuthStatusCommand(deps *CommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which API key the hybrid engine will use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthStatus(cmd, deps)
		},
	}
}

func runAuthStatus(cmd *cobra.Command, deps *CommandDeps) error {
	cfg, err := deps.config()
	if err != nil {
		return err
	}

	st := AuthStatus{Provider: cfg.LLM.Provider}

	store, storeErr := deps.OpenStore()
	if storeErr != nil {
		st.StoreError = storeErr.Error()
		store = nil
	} else {
		st.Stored = store.Exists()
		st.Encryption = store.KeyDescription()
	}

	key, source, err := credentials.ActiveAPIKey(store)
	switch {
	case err == nil:
		st.Active = true
		st.Source = source
		st.Key = credentials.MaskAPIKey(key)
		st.KeyID = credentials.KeyID(key)
	case errors.Is(err, credentials.ErrNoCredentials):
	default:
		st.StoreError = err.Error()
	}

	w := cmd.OutOrStdout()
	if ok, err := WriteStructured(w, cfg.OutputFormat, st); ok {
		return err
	}

	fmt.Fprintln(w, "LLM Authentication")
	fmt.Fprintln(w, "==================")
	fmt.Fprintf(w, "Provider: %s\n", st.Provider)
	if st.Active {
		fmt.Fprintf(w, "Key:      %s (id %s, from %s)\n", st.Key, st.KeyID, st.Source)
	} else {
		fmt.Fprintln(w, "Key:      none")
	}
	if st.Stored {
		fmt.Fprintf(w, "Stored:   yes (%s)\n", st.Encryption)
	} else {
		fmt.Fprintln(w, "Stored:   no")
	}
	if st.StoreError != "" {
		fmt.Fprintf(w, "Warning:  %s\n", st.StoreError)
	}
	if !st.Active {
		fmt.Fprintf(w, "\nThe hybrid engine will keep classic results. Run 'sched auth set-key' or set %s.\n", credentials.APIKeyEnv)
	}
	return nil
}

func newAuthClearCommand(deps *CommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored API key",
		Long: `Remove the stored API key. The OPENAI_API_KEY environment variable is
not affected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthClear(cmd, deps)
		},
	}
}

// runAuthClear removes the credentials file directly so a store whose
// encryption key is lost can still be cleared.
func runAuthClear(cmd *cobra.Command, deps *CommandDeps) error {
	path, err := credentials.CredentialsPath()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(w, "No stored API key found.")
		return nil
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing credentials: %w", err)
	}

	fmt.Fprintln(w, "Stored API key removed.")
	if os.Getenv(credentials.APIKeyEnv) != "" {
		fmt.Fprintf(w, "\nNote: %s is still set.\n", credentials.APIKeyEnv)
	}
	return nil
}
