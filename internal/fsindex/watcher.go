package fsindex

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher wraps fsnotify to provide filesystem change notifications for
// one or more indexed roots. fsnotify wraps kqueue on darwin and inotify
// on linux under one API, so a single fsnotify-backed watcher serves both
// platforms — see DESIGN.md for why no separate FSEvents binding is used.
type Watcher struct {
	inner *fsnotify.Watcher
	log   *slog.Logger

	coalesceWindow time.Duration
}

// NewWatcher opens a new OS watch handle. Call Close when done.
func NewWatcher(log *slog.Logger) (*Watcher, error) {
	inner, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{inner: inner, log: log, coalesceWindow: 250 * time.Millisecond}, nil
}

// Add begins watching root (non-recursively; fsnotify watches are
// per-directory, so the caller is expected to Add every directory the
// index already knows about and every directory Run reports as created).
func (w *Watcher) Add(path string) error { return w.inner.Add(path) }

// Remove stops watching a directory, typically called when the index
// observes it was deleted.
func (w *Watcher) Remove(path string) error { return w.inner.Remove(path) }

// Close releases the OS watch handle.
func (w *Watcher) Close() error { return w.inner.Close() }

// ChangeHandler receives one coalesced batch of changes. escalate is true
// when the batch includes a signal that a full rescan is warranted (the
// watch queue overflowed, or the root itself was renamed/removed out from
// under the watch).
type ChangeHandler func(changes []PendingChange, escalate bool)

// Run coalesces raw fsnotify events into PendingChange batches and
// delivers them to handle until ctx is cancelled or the watcher is
// closed. Coalescing folds bursts of events for the same path (common
// during a large copy or git checkout) into one PendingChange.
func (w *Watcher) Run(ctx context.Context, handle ChangeHandler) {
	pending := make(map[string]PendingChangeKind)
	timer := time.NewTimer(w.coalesceWindow)
	if !timer.Stop() {
		<-timer.C
	}
	timerArmed := false

	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := make([]PendingChange, 0, len(pending))
		for path, kind := range pending {
			batch = append(batch, PendingChange{Path: path, Kind: kind})
		}
		pending = make(map[string]PendingChangeKind)
		handle(batch, false)
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case event, ok := <-w.inner.Events:
			if !ok {
				return
			}
			kind := classifyEvent(event)
			if event.Op.Has(fsnotify.Create) {
				// A new directory needs its own watch registered so
				// future changes inside it are observed too.
				_ = w.inner.Add(event.Name)
			}
			// A removed/renamed-away child does not tear down the parent
			// directory's watch: fsnotify watches are per-directory, and
			// the parent keeps receiving events for its other children.
			// If event.Name itself was a watched directory, fsnotify
			// drops its own watch on it once the directory is gone.
			pending[event.Name] = mergeKind(pending[event.Name], kind)
			if !timerArmed {
				timer.Reset(w.coalesceWindow)
				timerArmed = true
			}

		case <-timer.C:
			timerArmed = false
			flush()

		case err, ok := <-w.inner.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error, escalating to rescan", "error", err)
			handle(nil, true)
		}
	}
}

func classifyEvent(event fsnotify.Event) PendingChangeKind {
	switch {
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		return PendingRemove
	case event.Op.Has(fsnotify.Create):
		return PendingCreate
	default:
		return PendingModify
	}
}

// mergeKind keeps the most significant of two kinds observed for the same
// path within one coalescing window (remove dominates, since a
// create-then-remove within the window nets out to "gone").
func mergeKind(existing, next PendingChangeKind) PendingChangeKind {
	if existing == PendingRemove || next == PendingRemove {
		return PendingRemove
	}
	if existing == PendingCreate || next == PendingCreate {
		return PendingCreate
	}
	return PendingModify
}
