package runner

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/onfile/internal/watch"
)

// sliceStream replays a fixed list of events and then reports closure.
type sliceStream struct {
	events []watch.Event
	reads  int
}

func (s *sliceStream) Next(ctx context.Context) (watch.Event, error) {
	if err := ctx.Err(); err != nil {
		return watch.Event{}, err
	}

	if len(s.events) == 0 {
		return watch.Event{}, watch.ErrClosed
	}

	ev := s.events[0]
	s.events = s.events[1:]
	s.reads++

	return ev, nil
}

func newTestRunner(t *testing.T, spec Spec, stdout io.Writer) *Runner {
	t.Helper()

	if spec.Shell == "" {
		spec.Shell = "/bin/sh"
	}

	r, err := New(spec,
		WithOutput(stdout, io.Discard),
		WithStdin(strings.NewReader("")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	return r
}

// ---------------------------------------------------------------------------
// Spec
// ---------------------------------------------------------------------------

func TestSpecValidate(t *testing.T) {
	assert.NoError(t, Spec{Command: "true", Shell: "/bin/sh"}.Validate())
	assert.NoError(t, Spec{Shell: "/bin/sh"}.Validate())
	assert.ErrorContains(t, Spec{Command: "true"}.Validate(), "SHELL")
}

func TestNew_InvalidSpec(t *testing.T) {
	_, err := New(Spec{Command: "true"})
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// Outcome
// ---------------------------------------------------------------------------

func TestOutcome(t *testing.T) {
	assert.False(t, Continue().IsFatal())

	o := Fatal(3)
	assert.True(t, o.IsFatal())
	assert.Equal(t, 3, o.Code())
}

// ---------------------------------------------------------------------------
// Handle
// ---------------------------------------------------------------------------

func TestHandle_ExportsPath(t *testing.T) {
	var out bytes.Buffer

	r := newTestRunner(t, Spec{Command: `printf '%s' "$F"`}, &out)

	outcome, err := r.Handle(context.Background(), watch.Event{Kind: watch.Written, Path: "/tmp/some/file.txt"})
	require.NoError(t, err)
	assert.False(t, outcome.IsFatal())
	assert.Equal(t, "/tmp/some/file.txt", out.String())
}

func TestHandle_IgnoredKinds(t *testing.T) {
	var out bytes.Buffer

	r := newTestRunner(t, Spec{Command: "echo ran", ExitOnError: true}, &out)

	for _, kind := range []watch.Kind{watch.Removed, watch.Renamed, watch.Other} {
		outcome, err := r.Handle(context.Background(), watch.Event{Kind: kind, Path: "/x"})
		require.NoError(t, err)
		assert.False(t, outcome.IsFatal())
	}

	assert.Empty(t, out.String())
}

func TestHandle_FailureWithExitOnError(t *testing.T) {
	r := newTestRunner(t, Spec{Command: "exit 3", ExitOnError: true}, io.Discard)

	outcome, err := r.Handle(context.Background(), watch.Event{Kind: watch.Created, Path: "/x"})
	require.NoError(t, err)
	assert.True(t, outcome.IsFatal())
	assert.Equal(t, 3, outcome.Code())
}

func TestHandle_FailureIgnoredWithoutExitOnError(t *testing.T) {
	r := newTestRunner(t, Spec{Command: "exit 3"}, io.Discard)

	outcome, err := r.Handle(context.Background(), watch.Event{Kind: watch.Created, Path: "/x"})
	require.NoError(t, err)
	assert.False(t, outcome.IsFatal())
}

func TestHandle_SpawnFailureIsAlwaysFatal(t *testing.T) {
	r := newTestRunner(t, Spec{Command: "true", Shell: "/nonexistent/shell-12345"}, io.Discard)

	_, err := r.Handle(context.Background(), watch.Event{Kind: watch.Written, Path: "/x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "starting /nonexistent/shell-12345")
}

func TestHandle_InheritsEnvironment(t *testing.T) {
	var out bytes.Buffer

	r, err := New(Spec{Command: `printf '%s:%s' "$GREETING" "$F"`, Shell: "/bin/sh"},
		WithEnv([]string{"GREETING=hi", "F=stale"}),
		WithOutput(&out, io.Discard),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	_, err = r.Handle(context.Background(), watch.Event{Kind: watch.Written, Path: "/fresh"})
	require.NoError(t, err)
	assert.Equal(t, "hi:/fresh", out.String())
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func TestRun_StreamClosedIsClean(t *testing.T) {
	r := newTestRunner(t, Spec{Command: "true"}, io.Discard)

	err := r.Run(context.Background(), &sliceStream{})
	assert.NoError(t, err)
}

func TestRun_ExitOnErrorStopsAtFirstFailure(t *testing.T) {
	stream := &sliceStream{events: []watch.Event{
		{Kind: watch.Written, Path: "/a"},
		{Kind: watch.Written, Path: "/b"},
	}}

	r := newTestRunner(t, Spec{Command: "exit 7", ExitOnError: true}, io.Discard)

	err := r.Run(context.Background(), stream)
	require.Error(t, err)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 7, cmdErr.Code)
	assert.Equal(t, "/a", cmdErr.Path)
	assert.Contains(t, err.Error(), "exit code 7")
	assert.Equal(t, 1, stream.reads, "no event is processed after the failure")
}

func TestRun_WithoutExitOnErrorKeepsGoing(t *testing.T) {
	var events []watch.Event
	for range 5 {
		events = append(events, watch.Event{Kind: watch.Written, Path: "/a"})
	}

	stream := &sliceStream{events: events}
	r := newTestRunner(t, Spec{Command: "exit 1"}, io.Discard)

	require.NoError(t, r.Run(context.Background(), stream))
	assert.Equal(t, 5, stream.reads)
}

func TestRun_SerializesCommands(t *testing.T) {
	log := filepath.Join(t.TempDir(), "order.log")

	stream := &sliceStream{events: []watch.Event{
		{Kind: watch.Written, Path: "one"},
		{Kind: watch.Created, Path: "two"},
	}}

	cmd := `echo "start $F" >> "$LOG"; sleep 0.2; echo "end $F" >> "$LOG"`
	r, err := New(Spec{Command: cmd, Shell: "/bin/sh"},
		WithEnv(append(os.Environ(), "LOG="+log)),
		WithOutput(io.Discard, io.Discard),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	require.NoError(t, r.Run(context.Background(), stream))

	data, err := os.ReadFile(log)
	require.NoError(t, err)
	assert.Equal(t, "start one\nend one\nstart two\nend two\n", string(data))
}

func TestRun_EnvironmentPerEvent(t *testing.T) {
	var out bytes.Buffer

	stream := &sliceStream{events: []watch.Event{
		{Kind: watch.Written, Path: "/w/a.txt"},
		{Kind: watch.Removed, Path: "/w/gone.txt"},
		{Kind: watch.Created, Path: "/w/b.txt"},
	}}

	r := newTestRunner(t, Spec{Command: `echo "$F"`}, &out)
	require.NoError(t, r.Run(context.Background(), stream))

	assert.Equal(t, "/w/a.txt\n/w/b.txt\n", out.String())
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newTestRunner(t, Spec{Command: "true"}, io.Discard)

	err := r.Run(ctx, &sliceStream{events: []watch.Event{{Kind: watch.Written, Path: "/a"}}})
	assert.ErrorIs(t, err, context.Canceled)
}
