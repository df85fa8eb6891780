package fsindex

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cocommand/cocommand/internal/namepool"
)

// PendingChange is a watcher-observed filesystem event queued while a
// build is in flight, applied to Data once the build finishes so no
// change is lost to a race between "watcher saw it" and "build replaced
// the whole tree".
type PendingChange struct {
	Path string
	Kind PendingChangeKind
}

// PendingChangeKind classifies a queued change.
type PendingChangeKind uint8

const (
	PendingCreate PendingChangeKind = iota
	PendingModify
	PendingRemove
	PendingRescanRequired
)

// SharedRoot is the Root Index: the build-state machine and mutable Data
// for one watched root, shared between the build goroutine, the watcher,
// and query callers.
type SharedRoot struct {
	mu   sync.RWMutex
	data *Data

	state        atomic.Int32 // BuildState
	buildGen     atomic.Int64 // incremented every time a new build starts
	cancelBuild  atomic.Bool
	lastError    atomic.Value // string
	lastEventID  atomic.Int64
	rescanCount  atomic.Int64

	progress Progress

	pendingMu sync.Mutex
	pending   []PendingChange

	CachePath string
}

// NewSharedRoot creates an idle Root Index backed by a fresh, empty Data.
func NewSharedRoot(pool *namepool.Pool, cachePath string) *SharedRoot {
	r := &SharedRoot{
		data:      NewData(pool),
		CachePath: cachePath,
	}
	r.state.Store(int32(StateIdle))
	r.lastError.Store("")
	return r
}

// forTests builds a SharedRoot already in Ready state around a
// caller-provided Data, for tests that want to exercise query/update
// paths without running a real walk.
func forTests(data *Data) *SharedRoot {
	r := &SharedRoot{data: data}
	r.state.Store(int32(StateReady))
	r.lastError.Store("")
	return r
}

// State returns the current build state.
func (r *SharedRoot) State() BuildState { return BuildState(r.state.Load()) }

// BeginBuild transitions to Building, bumps the build generation, clears
// the cancellation flag, and resets progress counters. It returns the new
// generation, which a caller should compare against CurrentGeneration
// before committing a build's result (an older build finishing after a
// newer one started must be discarded).
func (r *SharedRoot) BeginBuild(startedAt int64) int64 {
	prevState := r.State()
	if prevState == StateReady {
		r.state.Store(int32(StateUpdating))
	} else {
		r.state.Store(int32(StateBuilding))
	}
	r.cancelBuild.Store(false)
	r.progress.ResetForBuild(time.Unix(startedAt, 0).UTC())
	return r.buildGen.Add(1)
}

// CurrentGeneration returns the generation of the most recently started
// build.
func (r *SharedRoot) CurrentGeneration() int64 { return r.buildGen.Load() }

// RequestCancel asks an in-flight build to stop at its next poll.
func (r *SharedRoot) RequestCancel() { r.cancelBuild.Store(true) }

// CancelRequested reports whether RequestCancel was called since the
// current build began.
func (r *SharedRoot) CancelRequested() bool { return r.cancelBuild.Load() }

// Progress exposes the live build counters for status queries.
func (r *SharedRoot) Progress() *Progress { return &r.progress }

// CommitBuild installs newData as the live Data and transitions to Ready.
// gen must match CurrentGeneration or the commit is rejected as stale (a
// later build superseded this one). It returns the watcher changes that
// were queued while the build was running, which the caller (the Index
// Manager) must replay against newData — a build reflects a point-in-time
// walk, and any change observed after that point would otherwise be lost.
func (r *SharedRoot) CommitBuild(gen int64, newData *Data) ([]PendingChange, bool) {
	if gen != r.buildGen.Load() {
		return nil, false
	}
	r.mu.Lock()
	r.data = newData
	r.mu.Unlock()
	r.state.Store(int32(StateReady))
	r.progress.FinishedAt.Store(r.progress.LastUpdateAt.Load())
	return r.drainPending(), true
}

// FailBuild transitions to Error and records the cause.
func (r *SharedRoot) FailBuild(gen int64, cause error) bool {
	if gen != r.buildGen.Load() {
		return false
	}
	r.state.Store(int32(StateError))
	if cause != nil {
		r.lastError.Store(cause.Error())
	}
	return true
}

// LastError returns the message recorded by the most recent FailBuild, or
// "" if none.
func (r *SharedRoot) LastError() string {
	if v, ok := r.lastError.Load().(string); ok {
		return v
	}
	return ""
}

// View runs fn with read access to the current Data. Callers must not
// retain the *Data pointer past fn's return: a concurrent build may swap
// it out from under a longer-lived reference.
func (r *SharedRoot) View(fn func(*Data)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn(r.data)
}

// QueuePendingChange records a watcher event observed while a build is in
// flight. If the current state is Ready, the caller should apply the
// change directly to Data instead of queuing it.
func (r *SharedRoot) QueuePendingChange(c PendingChange) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	r.pending = append(r.pending, c)
}

func (r *SharedRoot) drainPending() []PendingChange {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	drained := r.pending
	r.pending = nil
	return drained
}

// SetLastEventID records the watcher resume token for the most recently
// applied event, so a reconnecting watcher can ask to resume after it
// instead of forcing a full rescan.
func (r *SharedRoot) SetLastEventID(id int64) { r.lastEventID.Store(id) }

// LastEventID returns the most recently recorded watcher resume token.
func (r *SharedRoot) LastEventID() int64 { return r.lastEventID.Load() }

// IncrementRescanCount records that a full rescan was triggered (e.g. by a
// watcher overflow or a root-changed escalation), for status reporting.
func (r *SharedRoot) IncrementRescanCount() int64 { return r.rescanCount.Add(1) }

// RescanCount returns the number of full rescans triggered so far.
func (r *SharedRoot) RescanCount() int64 { return r.rescanCount.Load() }
