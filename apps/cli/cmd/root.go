package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/abdul-hamid-achik/relay/packages/core/app"
	"github.com/abdul-hamid-achik/relay/packages/core/config"
	"github.com/abdul-hamid-achik/relay/packages/output"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configFlag  string
	debugFlag   bool
	noColorFlag bool
	verboseFlag bool
	outputFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Compose and send HTTP requests from the terminal.",
	Long: `relay is an HTTP client that keeps one live request per tab,
records every finished request in a local history and can reopen any
past request exactly as it was composed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the root command and maps the result to an exit code.
func run(args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.Execute()
	if err == nil {
		return ExitSuccess
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", exitErr.err)
		}
		return exitErr.code
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitUsageError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", getEnvString("RELAY_CONFIG", ""), "Path to config file (env: RELAY_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Log debug records and mirror the log to stderr")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", getEnvBool("RELAY_NO_COLOR", false), "Disable colored output (env: RELAY_NO_COLOR)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Show response headers and full bodies")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", getEnvString("RELAY_OUTPUT", output.FormatConsole), "Output format: console, json (env: RELAY_OUTPUT)")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(versionCmd)
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return val == "yes"
		}
		return b
	}
	return defaultVal
}

// loadConfig reads the config file, then RELAY_* variables, then flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, &exitError{code: ExitConfigError, err: err}
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return nil, &exitError{code: ExitConfigError, err: err}
	}
	if debugFlag {
		cfg.Debug = config.BoolPtr(true)
	}
	if noColorFlag {
		cfg.NoColor = config.BoolPtr(true)
	}
	return cfg, nil
}

// newApp wires the application for one command invocation.
func newApp(cmd *cobra.Command, cfg *config.Config) (*app.App, error) {
	var opts []app.Option
	if cfg.GetDebug() {
		opts = append(opts, app.WithConsole(cmd.ErrOrStderr()))
	}
	a, err := app.New(cfg, opts...)
	if err != nil {
		return nil, &exitError{code: ExitConfigError, err: err}
	}
	return a, nil
}

func newFormatter(cmd *cobra.Command, cfg *config.Config) (output.Formatter, error) {
	f, err := output.NewFormatter(outputFlag, cmd.OutOrStdout(), verboseFlag, cfg.GetNoColor())
	if err != nil {
		return nil, &exitError{code: ExitUsageError, err: err}
	}
	return f, nil
}
