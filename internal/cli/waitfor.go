package cli

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/onfile/internal/config"
	"github.com/hupe1980/onfile/internal/logging"
	"github.com/hupe1980/onfile/internal/waiter"
)

// maxPollMillis is the largest -p value that fits in a time.Duration.
const maxPollMillis = uint64(math.MaxInt64) / uint64(time.Millisecond)

type waitOptions struct {
	ignoreExisting bool
	poll           uint64
}

// NewWaitForFileCommand constructs the wait-for-file command.
func NewWaitForFileCommand() *cobra.Command {
	opts := &waitOptions{}

	cmd := &cobra.Command{
		Use:   "wait-for-file <filepath>",
		Short: "Block until a file exists",
		Long: `wait-for-file blocks until the given file exists, then exits 0.

It watches the closest existing parent directory of the file recursively, so
the file and any missing directories above it may be created later. You need
permission to watch that directory. The watch is set up before checking
whether the file is already there, so a file created at startup is not
missed.

There is no timeout; wrap the command with timeout(1) if you need one.

With -p the filesystem is polled every N milliseconds instead. Polling always
returns at once for a file that already exists, even with -i.`,
		Example: `  wait-for-file /run/app/ready
  timeout 30 wait-for-file -i build/done.marker
  wait-for-file -p 500 /mnt/share/result.csv`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWaitForFile(cmd, args[0], opts)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&opts.ignoreExisting, "ignore-existing", "i", false, "wait for an explicit create event, ignoring a file that already exists")
	f.Uint64VarP(&opts.poll, "poll", "p", 0, "poll every N milliseconds instead of watching")

	return newToolCommand(cmd)
}

func runWaitForFile(cmd *cobra.Command, path string, opts *waitOptions) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	if cmd.Flags().Changed("poll") {
		if opts.poll > maxPollMillis {
			return &ExitError{Code: 2, Err: fmt.Errorf("poll interval %d ms is too large (max %d)", opts.poll, maxPollMillis)}
		}

		interval := time.Duration(opts.poll) * time.Millisecond

		logger.Debug("polling for file",
			slog.String("path", path),
			slog.Duration("interval", interval),
			slog.Bool("ignoreExisting", opts.ignoreExisting),
		)

		return waiter.Poll(ctx, path, interval)
	}

	return waiter.Wait(ctx, path, waiter.Options{
		IgnoreExisting: opts.ignoreExisting,
		Debounce:       cfg.Debounce,
		Logger:         logger,
	})
}
