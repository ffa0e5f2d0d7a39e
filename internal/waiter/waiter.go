// Package waiter blocks until a file exists, either by watching the nearest
// existing ancestor directory or by polling.
package waiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/hupe1980/onfile/internal/watch"
)

// Target is a resolved wait target.
type Target struct {
	// Path is the path as given by the user.
	Path string
	// Abs is the absolute, lexically cleaned form of Path.
	Abs string
	// Root is the nearest existing ancestor directory of Abs.
	Root string
}

// Resolve makes path absolute without requiring it to exist and finds the
// nearest ancestor, starting at the immediate parent, that is an existing
// directory.
func Resolve(path string) (Target, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Target{}, fmt.Errorf("resolving absolute path of %q: %w", path, err)
	}

	dir := filepath.Dir(abs)

	for {
		if info, statErr := os.Stat(dir); statErr == nil && info.IsDir() {
			return Target{Path: path, Abs: abs, Root: dir}, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Target{}, fmt.Errorf("unable to find existing parent directory for %q", abs)
		}

		dir = parent
	}
}

// Options configures Wait.
type Options struct {
	// IgnoreExisting waits for an explicit creation even if the file is
	// already there.
	IgnoreExisting bool

	// Debounce is the watch debounce interval.
	Debounce time.Duration

	// Logger is used for structured logging.
	Logger *slog.Logger
}

// Wait blocks until path is created. The recursive watch on the nearest
// existing ancestor is established before the existence check so that a
// file created in between is not missed. There is no timeout; cancel ctx
// to give up.
func Wait(ctx context.Context, path string, opts Options) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	target, err := Resolve(path)
	if err != nil {
		return err
	}

	src, err := watch.New(watch.Options{Debounce: opts.Debounce, Logger: opts.Logger})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer src.Close() //nolint:errcheck

	if err := src.Add(target.Root, watch.Recursive); err != nil {
		return fmt.Errorf("failed to set up watch: %w", err)
	}

	opts.Logger.Debug("waiting for file",
		slog.String("target", target.Abs),
		slog.String("root", target.Root),
		slog.Bool("ignoreExisting", opts.IgnoreExisting),
	)

	if !opts.IgnoreExisting && exists(target.Path) {
		return nil
	}

	return Until(ctx, src, target.Abs)
}

// Stream is a blocking pull iterator over change events.
type Stream interface {
	Next(ctx context.Context) (watch.Event, error)
}

// Until reads events until a Created event for exactly abs arrives. Events
// for other paths and other kinds are ignored. The end of the stream is
// treated as a normal return.
func Until(ctx context.Context, events Stream, abs string) error {
	for {
		ev, err := events.Next(ctx)
		if err != nil {
			if errors.Is(err, watch.ErrClosed) {
				return nil
			}

			return err
		}

		if ev.Kind == watch.Created && ev.Path == abs {
			return nil
		}
	}
}

var errNotYet = errors.New("file does not exist yet")

// Poll checks for path every interval until it exists. It does no path
// resolution and always returns at once for a file that is already there:
// unlike Wait it cannot be told to ignore an existing file.
func Poll(ctx context.Context, path string, interval time.Duration) error {
	if interval < 0 {
		return fmt.Errorf("negative poll interval %s", interval)
	}

	return retry.Do(
		func() error {
			if exists(path) {
				return nil
			}

			return errNotYet
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
