package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/abdul-hamid-achik/relay/packages/core/config"
	"github.com/abdul-hamid-achik/relay/packages/dashboard"
	"github.com/abdul-hamid-achik/relay/packages/request"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize relay in the current directory",
	Long: `Initialize relay in the current directory.

This creates:
  - .relay.yaml          - Configuration file
  - .relay/session.yaml  - A session with example tabs

History and the session live next to the config so the directory can be
shared as a workspace.

Examples:
  relay init
  relay init --force`,
	Args: cobra.NoArgs,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
	rootCmd.AddCommand(initCmd)
}

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	configFile := filepath.Join(cwd, ".relay.yaml")
	sessionFile := filepath.Join(cwd, ".relay", "session.yaml")

	if !forceInit {
		for _, f := range []string{configFile, sessionFile} {
			if _, err := os.Stat(f); err == nil {
				return &exitError{code: ExitUsageError, err: fmt.Errorf("file already exists: %s (use --force to overwrite)", f)}
			}
		}
	}

	cfg := config.DefaultConfig()
	cfg.Headers = map[string]string{"User-Agent": "relay/" + version}
	cfg.HistoryPath = filepath.Join(".relay", "history.db")
	cfg.SessionPath = filepath.Join(".relay", "session.yaml")
	cfg.MaxConcurrent = 4

	if err := cfg.SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	body := `{"name": "Test Resource"}`
	session := &dashboard.Session{}
	session.Set("health", dashboard.FromModel(
		request.NewRaw(request.MethodGet, "http://localhost:3000/health", request.ModePlain, "")))
	session.Set("create", dashboard.FromModel(
		request.NewRaw(request.MethodPost, "http://localhost:3000/resources", request.ModeJSON, body,
			request.WithHeaders([]request.Tuple{{Key: "Accept", Value: "application/json"}}))))
	session.Set("login", dashboard.FromModel(
		request.NewURLEncoded(request.MethodPost, "http://localhost:3000/login", []request.Tuple{
			{Key: "username", Value: "demo"},
			{Key: "password", Value: "demo"},
		})))

	if err := dashboard.NewSessionStore(sessionFile).Save(session); err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", sessionFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\nrelay workspace initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'relay session send health' to send the first example.\n")

	return nil
}
