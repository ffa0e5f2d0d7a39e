// Package cli implements the cobra commands behind the on-file-change and
// wait-for-file binaries.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hupe1980/onfile/internal/config"
	"github.com/hupe1980/onfile/internal/logging"
	"github.com/hupe1980/onfile/internal/version"
)

// ExitError wraps an error with a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Execute runs cmd, reports a failure on its stderr, and returns the process
// exit code.
func Execute(cmd *cobra.Command) int {
	return ExecuteContext(context.Background(), cmd)
}

// ExecuteContext is Execute with a caller-supplied context.
func ExecuteContext(ctx context.Context, cmd *cobra.Command) int {
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)

	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code != 0 {
		return exitErr.Code
	}

	return 1
}

// newToolCommand completes a tool's top-level command with the behaviour
// both binaries share: global flags, configuration and logger setup, exit
// code mapping for usage errors, and --version.
func newToolCommand(cmd *cobra.Command) *cobra.Command {
	var cfgFile string

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.Version = version.GetInfo().String()
	cmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cmd, cfgFile)
		if err != nil {
			return &ExitError{Code: 2, Err: err}
		}

		logger := logging.Setup(cfg, cmd.Root().Name(), cmd.ErrOrStderr())

		ctx := cmd.Context()
		ctx = config.NewContext(ctx, cfg)
		ctx = logging.NewContext(ctx, logger)
		cmd.SetContext(ctx)

		logger.Debug("configuration loaded",
			slog.String("logLevel", cfg.LogLevel),
			slog.String("logFormat", cfg.LogFormat),
			slog.Duration("debounce", cfg.Debounce),
			slog.String("configFile", cfg.ConfigFile),
		)

		return nil
	}

	registerGlobalFlags(cmd, &cfgFile)

	// Flag parsing errors return exit code 2.
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Err: err}
	})

	return cmd
}

// usageArgs maps positional argument errors to exit code 2.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return &ExitError{Code: 2, Err: err}
		}

		return nil
	}
}
