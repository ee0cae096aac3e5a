package service

import (
    "context"
    "log"
    "time"

    "github.com/showseat/booking/internal/storage"
)

// DefaultReapInterval is how often the reaper sweeps when no interval is
// configured.
const DefaultReapInterval = 2 * time.Minute

// Reaper periodically releases holds whose deadline has passed.  It is an
// explicit background task: the caller spawns Run in a goroutine at
// process startup and stops it by cancelling the context.  The sweep is a
// single bulk transition, so it cannot interleave with lock/confirm/
// release calls on unrelated sessions, and a race against an explicit
// release or confirm on the same session is harmless because all
// transitions out of Held are idempotent and monotonic.
type Reaper struct {
    locks    storage.LockStore
    interval time.Duration
    now      func() time.Time
}

// NewReaper constructs a reaper sweeping at the given interval; a
// non-positive interval falls back to DefaultReapInterval.
func NewReaper(locks storage.LockStore, interval time.Duration) *Reaper {
    if locks == nil {
        panic("nil store passed to NewReaper")
    }
    if interval <= 0 {
        interval = DefaultReapInterval
    }
    return &Reaper{
        locks:    locks,
        interval: interval,
        now:      func() time.Time { return time.Now().UTC() },
    }
}

// SetClock replaces the reaper's time source.  Used by tests.
func (r *Reaper) SetClock(now func() time.Time) { r.now = now }

// Run sweeps on a fixed interval until the context is cancelled.  A
// failed sweep is logged and retried on the next tick; it never stops the
// loop.
func (r *Reaper) Run(ctx context.Context) {
    t := time.NewTicker(r.interval)
    defer t.Stop()
    log.Printf("reaper: started (interval=%s)", r.interval)
    for {
        select {
        case <-ctx.Done():
            log.Printf("reaper: stopped")
            return
        case <-t.C:
            r.Sweep(ctx)
        }
    }
}

// Sweep releases every expired hold once and returns the count.  Exposed
// separately from Run so callers and tests can trigger a sweep on demand.
func (r *Reaper) Sweep(ctx context.Context) int {
    n, err := r.locks.ReleaseExpired(ctx, r.now())
    if err != nil {
        log.Printf("reaper: sweep failed: %v", err)
        return 0
    }
    if n > 0 {
        log.Printf("reaper: released %d expired seat holds", n)
    }
    return n
}
