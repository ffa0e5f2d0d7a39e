// Package onfile provides a public Go API for the file watching behind the
// on-file-change and wait-for-file commands.
//
// This package exposes both tools as a library, allowing programmatic use
// without the CLI.
//
// Basic usage:
//
//	if err := onfile.WaitForFile(ctx, "/run/app/ready"); err != nil {
//	    log.Fatal(err)
//	}
//
// Running a command on every change:
//
//	err := onfile.OnFileChange(ctx, "go test ./...", []string{"main.go"},
//	    onfile.WithExitOnError(),
//	    onfile.WithDebounce(100*time.Millisecond),
//	)
package onfile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/onfile/internal/runner"
	"github.com/hupe1980/onfile/internal/waiter"
	"github.com/hupe1980/onfile/internal/watch"
)

// CommandError is returned by OnFileChange when the command exits non-zero
// and WithExitOnError is set. Its Code field carries the exit status.
type CommandError = runner.CommandError

// discardLogger returns a logger that discards all output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Option configures OnFileChange and WaitForFile.
// Use the With* functions to create Options.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	debounce time.Duration

	// OnFileChange.
	shell       string
	exitOnError bool
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer

	// WaitForFile.
	ignoreExisting bool
	poll           bool
	pollInterval   time.Duration
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:   discardLogger(),
		debounce: watch.DefaultDebounce,
		shell:    os.Getenv("SHELL"),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDebounce sets the quiet period after which a file event is delivered.
func WithDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

// WithShell sets the interpreter used to run the command. Defaults to $SHELL.
func WithShell(shell string) Option {
	return func(o *options) { o.shell = shell }
}

// WithExitOnError makes OnFileChange return a *CommandError as soon as the
// command exits non-zero.
func WithExitOnError() Option {
	return func(o *options) { o.exitOnError = true }
}

// WithStdin sets the command's standard input. Defaults to os.Stdin.
func WithStdin(r io.Reader) Option {
	return func(o *options) { o.stdin = r }
}

// WithOutput sets where the command's stdout and stderr go. Defaults to the
// process streams.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(o *options) {
		o.stdout = stdout
		o.stderr = stderr
	}
}

// WithIgnoreExisting makes WaitForFile wait for a create event even when the
// file already exists. It has no effect together with WithPolling.
func WithIgnoreExisting() Option {
	return func(o *options) { o.ignoreExisting = true }
}

// WithPolling makes WaitForFile check for the file every interval instead of
// watching the filesystem.
func WithPolling(interval time.Duration) Option {
	return func(o *options) {
		o.poll = true
		o.pollInterval = interval
	}
}

// OnFileChange runs command through the configured shell each time one of
// paths is written or created, with the triggering path in $F. Commands run
// one at a time in event order. It returns when ctx is done, when the
// command cannot be started, or with a *CommandError when the command fails
// and WithExitOnError is set.
func OnFileChange(ctx context.Context, command string, paths []string, opts ...Option) error {
	if len(paths) == 0 {
		return errors.New("at least one path must be given")
	}

	o := newOptions(opts)

	runnerOpts := []runner.Option{runner.WithLogger(o.logger)}
	if o.stdin != nil {
		runnerOpts = append(runnerOpts, runner.WithStdin(o.stdin))
	}

	if o.stdout != nil || o.stderr != nil {
		stdout, stderr := o.stdout, o.stderr
		if stdout == nil {
			stdout = os.Stdout
		}

		if stderr == nil {
			stderr = os.Stderr
		}

		runnerOpts = append(runnerOpts, runner.WithOutput(stdout, stderr))
	}

	r, err := runner.New(runner.Spec{Command: command, Shell: o.shell, ExitOnError: o.exitOnError}, runnerOpts...)
	if err != nil {
		return err
	}

	src, err := watch.New(watch.Options{Debounce: o.debounce, Logger: o.logger})
	if err != nil {
		return err
	}
	defer src.Close() //nolint:errcheck

	for _, p := range paths {
		if err := src.Add(p, watch.NonRecursive); err != nil {
			return err
		}
	}

	return r.Run(ctx, src)
}

// WaitForFile blocks until path exists or ctx is done. The file and any of
// its missing parent directories may be created after the call starts.
func WaitForFile(ctx context.Context, path string, opts ...Option) error {
	if path == "" {
		return errors.New("path must not be empty")
	}

	o := newOptions(opts)

	if o.poll {
		return waiter.Poll(ctx, path, o.pollInterval)
	}

	return waiter.Wait(ctx, path, waiter.Options{
		IgnoreExisting: o.ignoreExisting,
		Debounce:       o.debounce,
		Logger:         o.logger,
	})
}
