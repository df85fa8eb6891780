package fsindex

import (
	"sync/atomic"
	"time"
)

// BuildState is the Root Index's build-state enum.
type BuildState uint8

const (
	StateIdle BuildState = iota
	StateBuilding
	StateReady
	StateError
	StateUpdating
)

func (s BuildState) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	case StateUpdating:
		return "updating"
	default:
		return "idle"
	}
}

// Progress tracks build counters read lock-free by queries while a walk is
// in flight.
type Progress struct {
	ScannedFiles atomic.Int64
	ScannedDirs  atomic.Int64
	Errors       atomic.Int64
	StartedAt    atomic.Int64 // unix seconds, 0 = unset
	LastUpdateAt atomic.Int64
	FinishedAt   atomic.Int64
}

// ResetForBuild zeroes counters and stamps StartedAt/LastUpdateAt for a new
// build, clearing FinishedAt.
func (p *Progress) ResetForBuild(startedAt time.Time) {
	p.ScannedFiles.Store(0)
	p.ScannedDirs.Store(0)
	p.Errors.Store(0)
	p.StartedAt.Store(startedAt.Unix())
	p.LastUpdateAt.Store(startedAt.Unix())
	p.FinishedAt.Store(0)
}

// Snapshot is a point-in-time copy of Progress suitable for status queries.
type Snapshot struct {
	ScannedFiles int64
	ScannedDirs  int64
	Errors       int64
	StartedAt    *time.Time
	LastUpdateAt *time.Time
	FinishedAt   *time.Time
}

func unixOrNil(seconds int64) *time.Time {
	if seconds == 0 {
		return nil
	}
	t := time.Unix(seconds, 0).UTC()
	return &t
}

// Snapshot takes a lock-free snapshot of the current progress.
func (p *Progress) Snapshot() Snapshot {
	return Snapshot{
		ScannedFiles: p.ScannedFiles.Load(),
		ScannedDirs:  p.ScannedDirs.Load(),
		Errors:       p.Errors.Load(),
		StartedAt:    unixOrNil(p.StartedAt.Load()),
		LastUpdateAt: unixOrNil(p.LastUpdateAt.Load()),
		FinishedAt:   unixOrNil(p.FinishedAt.Load()),
	}
}

// Flush policy constants governing how aggressively the cache is
// persisted to disk after a build.
const (
	FlushPollInterval = 10 * time.Second
	FlushIdleInterval = 5 * time.Minute
	FlushMaxDelay     = 10 * time.Minute

	// CacheMaxAge is the TTL past which a cache file is rejected on load.
	CacheMaxAge = 72 * time.Hour

	// CacheVersion is the schema version embedded in a cache blob.
	CacheVersion = 1
)
