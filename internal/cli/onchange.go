package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/onfile/internal/config"
	"github.com/hupe1980/onfile/internal/logging"
	"github.com/hupe1980/onfile/internal/runner"
	"github.com/hupe1980/onfile/internal/watch"
)

type onChangeOptions struct {
	command     string
	exitOnError bool
}

// NewOnFileChangeCommand constructs the on-file-change command.
func NewOnFileChangeCommand() *cobra.Command {
	opts := &onChangeOptions{}

	cmd := &cobra.Command{
		Use:   "on-file-change -c <cmd> <filepath>...",
		Short: "Run a command whenever a file changes",
		Long: `on-file-change watches the given files and runs a shell command each
time one of them is written or created.

The command is run with the interpreter named by $SHELL (or --shell) as
"$SHELL -c <cmd>". The absolute path of the file that triggered the run is
available in the $F environment variable. Runs never overlap: changes made
while a command is running are queued and handled afterwards.

Use -e to stop watching as soon as the command exits non-zero; the tool then
exits with the command's exit status.`,
		Example: `  on-file-change -c 'go test ./...' main.go main_test.go
  on-file-change -e -c 'gofmt -l "$F"' handler.go`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnFileChange(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.command, "cmd", "c", "", "command to run; the triggering file path is in $F (required)")
	f.BoolVarP(&opts.exitOnError, "exit-on-error", "e", false, "exit if the command fails")
	f.String("shell", "", "command interpreter (default: $SHELL)")

	return newToolCommand(cmd)
}

func runOnFileChange(cmd *cobra.Command, paths []string, opts *onChangeOptions) error {
	// An explicit empty command is valid and runs "$SHELL -c ''".
	if !cmd.Flags().Changed("cmd") {
		return &ExitError{Code: 2, Err: errors.New(`required flag "-c" not set`)}
	}

	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	r, err := runner.New(
		runner.Spec{Command: opts.command, Shell: cfg.Shell, ExitOnError: opts.exitOnError},
		runner.WithStdin(cmd.InOrStdin()),
		runner.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
		runner.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	src, err := watch.New(watch.Options{Debounce: cfg.Debounce, Logger: logger})
	if err != nil {
		return err
	}
	defer src.Close() //nolint:errcheck

	for _, p := range paths {
		if err := src.Add(p, watch.NonRecursive); err != nil {
			return fmt.Errorf("add watch for %q: %w", p, err)
		}
	}

	err = r.Run(ctx, src)

	var cmdErr *runner.CommandError
	if errors.As(err, &cmdErr) {
		return &ExitError{Code: cmdErr.Code, Err: err}
	}

	return err
}
