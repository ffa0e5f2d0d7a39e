package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
	"gopkg.in/tomb.v2"
)

// DefaultDebounce is the quiet period used by both tools unless configured.
const DefaultDebounce = 250 * time.Millisecond

// ErrClosed is returned by Next once the event stream has ended.
var ErrClosed = errors.New("watch: event stream closed")

// Options configures a Source.
type Options struct {
	// Debounce is the quiet period a path must observe before its merged
	// event is emitted.
	Debounce time.Duration

	// Logger is used for structured logging.
	Logger *slog.Logger
}

// DefaultOptions returns the default source options.
func DefaultOptions() Options {
	return Options{
		Debounce: DefaultDebounce,
		Logger:   slog.Default(),
	}
}

// Source is a debounced filesystem event stream. A single background
// goroutine reads fsnotify, coalesces events and queues them in FIFO order;
// the queue is unbounded so slow consumers never cause events to be dropped.
type Source struct {
	fs     *fsnotify.Watcher
	logger *slog.Logger
	t      tomb.Tomb

	events  chan Event
	expired chan expiry

	// Owned by the loop goroutine.
	debouncer *debouncer
	lastRaw   fsnotify.Event
	moved     os.FileInfo // identity of lastRaw.Name when lastRaw was a Rename
	errLog    rate.Sometimes

	mu     sync.Mutex
	roots  []string
	idents map[string]os.FileInfo
}

// New creates a Source and starts its event loop. Paths are added with Add.
func New(opts Options) (*Source, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Debounce < 0 {
		return nil, fmt.Errorf("negative debounce interval %s", opts.Debounce)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	s := &Source{
		fs:      w,
		logger:  opts.Logger,
		events:  make(chan Event),
		expired: make(chan expiry),
		errLog:  rate.Sometimes{First: 5, Interval: 10 * time.Second},
		idents:  make(map[string]os.FileInfo),
	}

	s.debouncer = newDebouncer(opts.Debounce, s.post)
	s.t.Go(s.loop)

	return s, nil
}

// Add starts watching path. Paths are made absolute first so that emitted
// events always carry absolute paths. A Recursive watch on a directory also
// covers every directory below it, including ones created later.
func (s *Source) Add(path string, mode Mode) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %q: %w", path, err)
	}

	if mode == Recursive {
		info, statErr := os.Stat(abs)
		if statErr != nil {
			return fmt.Errorf("watching %q: %w", abs, statErr)
		}

		if info.IsDir() {
			s.mu.Lock()
			s.roots = append(s.roots, abs)
			s.mu.Unlock()

			if err := s.addTree(abs, nil); err != nil {
				return fmt.Errorf("watching %q: %w", abs, err)
			}

			s.logger.Debug("watch added", slog.String("path", abs), slog.Bool("recursive", true))

			return nil
		}
	}

	if err := s.fs.Add(abs); err != nil {
		return fmt.Errorf("watching %q: %w", abs, err)
	}

	s.rememberEntries(abs)

	s.logger.Debug("watch added", slog.String("path", abs), slog.Bool("recursive", false))

	return nil
}

// Events returns the channel of debounced events. It is closed when the
// source is closed or the underlying watcher stops.
func (s *Source) Events() <-chan Event {
	return s.events
}

// Next blocks until the next event is available. It returns ErrClosed when
// the stream has ended and the context error if ctx is done first.
func (s *Source) Next(ctx context.Context) (Event, error) {
	select {
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case ev, ok := <-s.events:
		if !ok {
			return Event{}, ErrClosed
		}

		return ev, nil
	}
}

// Close stops the event loop and releases the underlying watcher.
func (s *Source) Close() error {
	s.t.Kill(nil)
	loopErr := s.t.Wait()

	return errors.Join(loopErr, s.fs.Close())
}

// post hands a debounce flush to the loop. It runs on timer goroutines.
func (s *Source) post(x expiry) {
	select {
	case s.expired <- x:
	case <-s.t.Dying():
	}
}

func (s *Source) loop() error {
	defer close(s.events)
	defer s.debouncer.stop()

	var queue []Event

	for {
		var (
			out  chan<- Event
			head Event
		)

		if len(queue) > 0 {
			out = s.events
			head = queue[0]
		}

		select {
		case <-s.t.Dying():
			return nil

		case raw, ok := <-s.fs.Events:
			if !ok {
				return nil
			}

			s.handle(raw)

		case watchErr, ok := <-s.fs.Errors:
			if !ok {
				return nil
			}

			s.errLog.Do(func() {
				s.logger.Error("watcher error", slog.String("error", watchErr.Error()))
			})

		case x := <-s.expired:
			if ev, ok := s.debouncer.expire(x); ok {
				s.logger.Debug("event", slog.String("kind", ev.Kind.String()), slog.String("path", ev.Path))
				queue = append(queue, ev)
			}

		case out <- head:
			queue[0] = Event{}
			queue = queue[1:]
		}
	}
}

// handle feeds one raw fsnotify event into the debouncer.
func (s *Source) handle(raw fsnotify.Event) {
	if raw.Op == 0 {
		return
	}

	prev, prevMoved := s.lastRaw, s.moved
	s.lastRaw, s.moved = raw, nil

	ev := Event{Kind: kindOf(raw.Op), Path: raw.Name}

	switch ev.Kind {
	case Removed:
		s.forget(raw.Name)
	case Renamed:
		s.moved = s.forget(raw.Name)
	case Written:
		s.remember(raw.Name)
	case Created:
		info := s.remember(raw.Name)

		// fsnotify carries no rename cookie, so Rename(old) followed by
		// Create(new) is only paired when both name the same file.
		if prev.Has(fsnotify.Rename) && prev.Name != raw.Name && sameFile(prevMoved, info) {
			if pending, ok := s.debouncer.pending(prev.Name); ok && pending.Kind == Renamed && pending.From == "" {
				s.debouncer.cancel(prev.Name)
				ev = Event{Kind: Renamed, Path: raw.Name, From: prev.Name}
			}
		}

		if info != nil && info.IsDir() && s.underRecursiveRoot(raw.Name) {
			s.debouncer.schedule(ev)

			if err := s.addTree(raw.Name, s.debouncer.schedule); err != nil {
				s.logger.Warn("watching new directory", slog.String("path", raw.Name), slog.String("error", err.Error()))
			}

			return
		}
	}

	s.debouncer.schedule(ev)
}

func sameFile(a, b os.FileInfo) bool {
	return a != nil && b != nil && os.SameFile(a, b)
}

// remember records the identity of path and returns it, or nil when path
// cannot be stat'ed.
func (s *Source) remember(path string) os.FileInfo {
	info, err := os.Lstat(path)
	if err != nil {
		return nil
	}

	s.mu.Lock()
	s.idents[path] = info
	s.mu.Unlock()

	return info
}

// rememberEntries records path and, for a directory, its direct entries.
func (s *Source) rememberEntries(path string) {
	info := s.remember(path)
	if info == nil || !info.IsDir() {
		return
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return
	}

	for _, e := range entries {
		s.remember(filepath.Join(path, e.Name()))
	}
}

// forget drops the identity recorded for path and returns it.
func (s *Source) forget(path string) os.FileInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := s.idents[path]
	delete(s.idents, path)

	return info
}

func (s *Source) underRecursiveRoot(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, root := range s.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}

		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}

	return false
}

// addTree walks root and adds every directory to the watcher. When report is
// non-nil every entry below root is reported as Created, which covers files
// written into a new directory before its watch was in place.
func (s *Source) addTree(root string, report func(Event)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Entries of a freshly created directory may vanish mid-walk.
			if report != nil && errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			return err
		}

		if report != nil && path != root {
			report(Event{Kind: Created, Path: path})
		}

		if d.IsDir() {
			return s.fs.Add(path)
		}

		return nil
	})
}
