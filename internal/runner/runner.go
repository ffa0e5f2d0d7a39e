// Package runner executes a shell command for every qualifying change event
// of a watch stream, one event at a time.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/hupe1980/onfile/internal/watch"
)

// EnvVar is the environment variable carrying the triggering path.
const EnvVar = "F"

// Spec describes the command run for each event.
type Spec struct {
	// Command is passed to the shell with -c.
	Command string

	// Shell is the interpreter binary, usually taken from $SHELL.
	Shell string

	// ExitOnError stops the runner when the command exits non-zero.
	ExitOnError bool
}

// Validate reports whether s describes a runnable command. An empty Command
// is allowed; the shell treats it as a no-op.
func (s Spec) Validate() error {
	if s.Shell == "" {
		return errors.New("SHELL environment variable is not set (or use --shell)")
	}

	return nil
}

// Stream is a blocking pull iterator over change events.
type Stream interface {
	Next(ctx context.Context) (watch.Event, error)
}

// Outcome tells the event loop whether to keep going after an event.
type Outcome struct {
	fatal bool
	code  int
}

// Continue is the outcome of an event that does not stop the runner.
func Continue() Outcome { return Outcome{} }

// Fatal is the outcome of a command failure that stops the runner.
func Fatal(code int) Outcome { return Outcome{fatal: true, code: code} }

// IsFatal reports whether the runner must stop.
func (o Outcome) IsFatal() bool { return o.fatal }

// Code returns the exit status of the failed command.
func (o Outcome) Code() int { return o.code }

// CommandError reports a command that exited non-zero under ExitOnError.
type CommandError struct {
	Path string
	Code int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command failed with exit code %d (triggered by %s)", e.Code, e.Path)
}

// Runner runs a Spec for Created and Written events.
type Runner struct {
	spec   Spec
	env    []string
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithOutput sets the writers the command's stdout and stderr go to.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithStdin sets the command's standard input.
func WithStdin(stdin io.Reader) Option {
	return func(r *Runner) { r.stdin = stdin }
}

// WithEnv replaces the base environment the command inherits.
func WithEnv(env []string) Option {
	return func(r *Runner) { r.env = env }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// New creates a Runner. By default the command inherits the process
// environment and standard streams.
func New(spec Spec, opts ...Option) (*Runner, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{
		spec:   spec,
		env:    os.Environ(),
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Run consumes events until the stream ends, a command fails under
// ExitOnError, a command cannot be started, or ctx is done. The end of the
// stream is a normal termination and returns nil.
func (r *Runner) Run(ctx context.Context, events Stream) error {
	for {
		ev, err := events.Next(ctx)
		if err != nil {
			if errors.Is(err, watch.ErrClosed) {
				return nil
			}

			return err
		}

		outcome, err := r.Handle(ctx, ev)
		if err != nil {
			return err
		}

		if outcome.IsFatal() {
			return &CommandError{Path: ev.Path, Code: outcome.Code()}
		}
	}
}

// Handle processes a single event. Only Created and Written events run the
// command; everything else is ignored. The returned error is set only when
// the command could not be started.
func (r *Runner) Handle(ctx context.Context, ev watch.Event) (Outcome, error) {
	if ev.Kind != watch.Created && ev.Kind != watch.Written {
		return Continue(), nil
	}

	r.logger.Debug("running command", slog.String("path", ev.Path), slog.String("event", ev.Kind.String()))

	cmd := exec.CommandContext(ctx, r.spec.Shell, "-c", r.spec.Command) //nolint:gosec // user-supplied command
	cmd.Env = append(append([]string(nil), r.env...), EnvVar+"="+ev.Path)
	cmd.Stdin = r.stdin
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr

	err := cmd.Run()
	if err == nil {
		return Continue(), nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return Continue(), fmt.Errorf("starting %s: %w", r.spec.Shell, err)
	}

	code := exitErr.ExitCode()
	if code <= 0 {
		// Terminated by a signal.
		code = 1
	}

	r.logger.Debug("command failed", slog.String("path", ev.Path), slog.Int("code", code))

	if r.spec.ExitOnError {
		return Fatal(code), nil
	}

	return Continue(), nil
}
