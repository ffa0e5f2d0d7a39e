package watch

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// Kind classifies a debounced change event.
type Kind int

// Supported event kinds.
const (
	Other Kind = iota
	Created
	Written
	Removed
	Renamed
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Written:
		return "written"
	case Removed:
		return "removed"
	case Renamed:
		return "renamed"
	default:
		return "other"
	}
}

// Event is a single debounced change notification.
type Event struct {
	Kind Kind
	// Path is the affected path. For Renamed it is the destination.
	Path string
	// From is the source path of a Renamed event and empty otherwise.
	From string
}

func (e Event) String() string {
	if e.Kind == Renamed && e.From != "" {
		return fmt.Sprintf("%s %s -> %s", e.Kind, e.From, e.Path)
	}

	return fmt.Sprintf("%s %s", e.Kind, e.Path)
}

// Mode selects whether a watch covers a directory subtree.
type Mode int

// Supported watch modes.
const (
	NonRecursive Mode = iota
	Recursive
)

// kindOf maps a raw fsnotify operation to an event kind. When several bits
// are set the most significant change wins.
func kindOf(op fsnotify.Op) Kind {
	switch {
	case op.Has(fsnotify.Create):
		return Created
	case op.Has(fsnotify.Remove):
		return Removed
	case op.Has(fsnotify.Rename):
		return Renamed
	case op.Has(fsnotify.Write):
		return Written
	default:
		return Other
	}
}

// merge folds a new raw kind into the kind already pending for a path.
// keep is false when the two cancel out and nothing should be emitted.
func merge(pending, next Kind) (kind Kind, keep bool) {
	switch {
	case next == Other:
		return pending, true
	case pending == Other:
		return next, true
	case pending == Created && next == Written:
		return Created, true
	case pending == Created && next == Removed:
		return Other, false
	case pending == Removed && next == Created:
		return Written, true
	case pending == Renamed && next == Written:
		return Renamed, true
	default:
		return next, true
	}
}
