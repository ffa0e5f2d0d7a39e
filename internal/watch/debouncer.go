package watch

import (
	"time"
)

// expiry identifies one scheduled flush of a pending path. A flush whose
// generation no longer matches the entry was superseded by a later event.
type expiry struct {
	path string
	gen  uint64
}

type debounceEntry struct {
	event Event
	timer *time.Timer
	gen   uint64
}

// debouncer coalesces raw events per path. Every raw event for a path
// restarts that path's quiet period; once the interval passes without a new
// event the merged event is handed to fire. It is owned by a single
// goroutine and is not safe for concurrent use.
type debouncer struct {
	interval time.Duration
	entries  map[string]*debounceEntry
	fire     func(expiry)
	gen      uint64
}

func newDebouncer(interval time.Duration, fire func(expiry)) *debouncer {
	return &debouncer{
		interval: interval,
		entries:  make(map[string]*debounceEntry),
		fire:     fire,
	}
}

// schedule folds ev into the pending event for its path and restarts the
// quiet period.
func (d *debouncer) schedule(ev Event) {
	entry, ok := d.entries[ev.Path]
	if !ok {
		entry = &debounceEntry{event: ev}
		d.entries[ev.Path] = entry
	} else {
		kind, keep := merge(entry.event.Kind, ev.Kind)
		if !keep {
			d.cancel(ev.Path)
			return
		}

		entry.event.Kind = kind
		if kind == Renamed && ev.From != "" {
			entry.event.From = ev.From
		}
	}

	if entry.timer != nil {
		entry.timer.Stop()
	}

	d.gen++
	entry.gen = d.gen

	x := expiry{path: ev.Path, gen: entry.gen}
	entry.timer = time.AfterFunc(d.interval, func() { d.fire(x) })
}

// pending returns the event currently waiting for path, if any.
func (d *debouncer) pending(path string) (Event, bool) {
	entry, ok := d.entries[path]
	if !ok {
		return Event{}, false
	}

	return entry.event, true
}

// cancel drops the pending event for path without emitting it.
func (d *debouncer) cancel(path string) {
	if entry, ok := d.entries[path]; ok {
		if entry.timer != nil {
			entry.timer.Stop()
		}

		delete(d.entries, path)
	}
}

// expire removes and returns the event flushed by x. Stale flushes report
// false.
func (d *debouncer) expire(x expiry) (Event, bool) {
	entry, ok := d.entries[x.path]
	if !ok || entry.gen != x.gen {
		return Event{}, false
	}

	delete(d.entries, x.path)

	return entry.event, true
}

// stop cancels every pending flush.
func (d *debouncer) stop() {
	for path := range d.entries {
		d.cancel(path)
	}
}
