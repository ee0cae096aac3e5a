package service

import (
    "context"
    "strconv"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/showseat/booking/internal/model"
    "github.com/showseat/booking/internal/storage"
)

// testClock is a movable time source shared by a manager and its test.
type testClock struct {
    mu sync.Mutex
    t  time.Time
}

func newTestClock() *testClock {
    return &testClock{t: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.t
}

func (c *testClock) Advance(d time.Duration) {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.t = c.t.Add(d)
}

// newSeededStore builds a memory store with one 20-seat show and two
// users.
func newSeededStore(showStart time.Time) *storage.MemoryStore {
    mem := storage.NewMemoryStore()
    seats := make([]string, 0, 20)
    for _, row := range []string{"A", "B"} {
        for n := 1; n <= 10; n++ {
            seats = append(seats, row+strconv.Itoa(n))
        }
    }
    mem.AddShow(&model.Show{ID: 1, Title: "Evening Premiere", StartsAt: showStart, Seats: seats})
    mem.AddUser(&model.User{ID: 1, Email: "alice@example.com", Name: "Alice"})
    mem.AddUser(&model.User{ID: 2, Email: "bob@example.com", Name: "Bob"})
    return mem
}

func newTestManager(t *testing.T) (*SeatLockManager, *storage.MemoryStore, *testClock) {
    t.Helper()
    clock := newTestClock()
    mem := newSeededStore(clock.Now().Add(48 * time.Hour))
    mgr := NewSeatLockManager(mem, mem, mem, LockConfig{})
    mgr.SetClock(clock.Now)
    return mgr, mem, clock
}

func TestLockCreatesSessionWithDeadline(t *testing.T) {
    mgr, mem, clock := newTestManager(t)
    ctx := context.Background()

    sessionID, expiresAt, err := mgr.Lock(ctx, 1, 1, []string{"A1", "A2"})
    require.NoError(t, err)
    require.NotEmpty(t, sessionID)
    assert.Equal(t, clock.Now().Add(DefaultLockTTL), expiresAt)

    holds, err := mem.SessionHolds(ctx, sessionID)
    require.NoError(t, err)
    require.Len(t, holds, 2)
    for _, h := range holds {
        assert.Equal(t, model.HoldHeld, h.Status)
        assert.Equal(t, expiresAt, h.ExpiresAt)
    }
}

func TestLockConflictReportsSeats(t *testing.T) {
    mgr, _, _ := newTestManager(t)
    ctx := context.Background()

    _, _, err := mgr.Lock(ctx, 1, 1, []string{"A1", "A2"})
    require.NoError(t, err)

    _, _, err = mgr.Lock(ctx, 1, 2, []string{"A2", "A3"})
    require.ErrorIs(t, err, ErrSeatUnavailable)
    var conflict *storage.SeatConflictError
    require.ErrorAs(t, err, &conflict)
    assert.Equal(t, []string{"A2"}, conflict.Seats)

    // The batch failed whole, so A3 must still be lockable.
    _, _, err = mgr.Lock(ctx, 1, 2, []string{"A3", "A4"})
    assert.NoError(t, err)
}

func TestLockValidation(t *testing.T) {
    mgr, _, _ := newTestManager(t)
    ctx := context.Background()

    _, _, err := mgr.Lock(ctx, 99, 1, []string{"A1"})
    assert.ErrorIs(t, err, ErrShowNotFound)

    _, _, err = mgr.Lock(ctx, 1, 99, []string{"A1"})
    assert.ErrorIs(t, err, ErrUserNotFound)

    _, _, err = mgr.Lock(ctx, 1, 1, nil)
    assert.ErrorIs(t, err, ErrUnknownSeat)

    _, _, err = mgr.Lock(ctx, 1, 1, []string{"Z9"})
    assert.ErrorIs(t, err, ErrUnknownSeat)

    eleven := []string{"A1", "A2", "A3", "A4", "A5", "A6", "A7", "A8", "A9", "A10", "B1"}
    _, _, err = mgr.Lock(ctx, 1, 1, eleven)
    assert.ErrorIs(t, err, ErrTooManySeats)
}

func TestLockDeduplicatesSeats(t *testing.T) {
    mgr, mem, _ := newTestManager(t)
    ctx := context.Background()

    sessionID, _, err := mgr.Lock(ctx, 1, 1, []string{"A1", "A1", "", "A1"})
    require.NoError(t, err)
    holds, err := mem.SessionHolds(ctx, sessionID)
    require.NoError(t, err)
    assert.Len(t, holds, 1)
}

func TestReleaseIsIdempotent(t *testing.T) {
    mgr, _, _ := newTestManager(t)
    ctx := context.Background()

    sessionID, _, err := mgr.Lock(ctx, 1, 1, []string{"A1"})
    require.NoError(t, err)

    require.NoError(t, mgr.Release(ctx, sessionID))
    require.NoError(t, mgr.Release(ctx, sessionID))
    require.NoError(t, mgr.Release(ctx, "no-such-session"))

    // The seat is free for another holder immediately.
    _, _, err = mgr.Lock(ctx, 1, 2, []string{"A1"})
    assert.NoError(t, err)
}

func TestConfirmUnknownSession(t *testing.T) {
    mgr, _, _ := newTestManager(t)
    err := mgr.Confirm(context.Background(), "no-such-session")
    assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestExpiredHoldsFreeSeats(t *testing.T) {
    mgr, _, clock := newTestManager(t)
    ctx := context.Background()

    old, _, err := mgr.Lock(ctx, 1, 1, []string{"A1", "A2"})
    require.NoError(t, err)

    avail, err := mgr.CheckAvailability(ctx, 1, []string{"A1", "A3"})
    require.NoError(t, err)
    assert.False(t, avail["A1"])
    assert.True(t, avail["A3"])

    clock.Advance(DefaultLockTTL + time.Second)

    // No reaper has run, yet the expired holds must not block anything.
    avail, err = mgr.CheckAvailability(ctx, 1, []string{"A1", "A2"})
    require.NoError(t, err)
    assert.True(t, avail["A1"])
    assert.True(t, avail["A2"])

    _, _, err = mgr.Lock(ctx, 1, 2, []string{"A1", "A2"})
    require.NoError(t, err)

    secs, err := mgr.RemainingSeconds(ctx, old)
    require.NoError(t, err)
    assert.Zero(t, secs)
}

func TestRemainingSecondsCountsDown(t *testing.T) {
    mgr, _, clock := newTestManager(t)
    ctx := context.Background()

    sessionID, _, err := mgr.Lock(ctx, 1, 1, []string{"A1"})
    require.NoError(t, err)

    secs, err := mgr.RemainingSeconds(ctx, sessionID)
    require.NoError(t, err)
    assert.EqualValues(t, 600, secs)

    clock.Advance(time.Minute)
    secs, err = mgr.RemainingSeconds(ctx, sessionID)
    require.NoError(t, err)
    assert.EqualValues(t, 540, secs)

    require.NoError(t, mgr.Release(ctx, sessionID))
    secs, err = mgr.RemainingSeconds(ctx, sessionID)
    require.NoError(t, err)
    assert.Zero(t, secs)

    secs, err = mgr.RemainingSeconds(ctx, "no-such-session")
    require.NoError(t, err)
    assert.Zero(t, secs)
}

func TestExtendSession(t *testing.T) {
    mgr, _, clock := newTestManager(t)
    ctx := context.Background()

    sessionID, _, err := mgr.Lock(ctx, 1, 1, []string{"A1"})
    require.NoError(t, err)

    require.NoError(t, mgr.Extend(ctx, sessionID, 5))
    secs, err := mgr.RemainingSeconds(ctx, sessionID)
    require.NoError(t, err)
    assert.EqualValues(t, 900, secs)

    assert.ErrorIs(t, mgr.Extend(ctx, sessionID, 6), ErrExtensionLimit)
    assert.ErrorIs(t, mgr.Extend(ctx, sessionID, 0), ErrExtensionLimit)
    assert.ErrorIs(t, mgr.Extend(ctx, sessionID, -1), ErrExtensionLimit)

    // Extending past the deadline is a no-op, not a resurrection.
    clock.Advance(16 * time.Minute)
    require.NoError(t, mgr.Extend(ctx, sessionID, 5))
    secs, err = mgr.RemainingSeconds(ctx, sessionID)
    require.NoError(t, err)
    assert.Zero(t, secs)
}

func TestActiveSeatsForShow(t *testing.T) {
    mgr, _, _ := newTestManager(t)
    ctx := context.Background()

    _, _, err := mgr.Lock(ctx, 1, 1, []string{"A1", "B2"})
    require.NoError(t, err)

    seats, err := mgr.ActiveSeatsForShow(ctx, 1)
    require.NoError(t, err)
    assert.ElementsMatch(t, []string{"A1", "B2"}, seats)

    _, err = mgr.ActiveSeatsForShow(ctx, 99)
    assert.ErrorIs(t, err, ErrShowNotFound)
}

func TestConcurrentLockSingleWinner(t *testing.T) {
    mgr, _, _ := newTestManager(t)
    ctx := context.Background()

    const attempts = 16
    var wg sync.WaitGroup
    errs := make([]error, attempts)
    for i := 0; i < attempts; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            holder := uint64(1 + i%2)
            _, _, err := mgr.Lock(ctx, 1, holder, []string{"B5"})
            errs[i] = err
        }(i)
    }
    wg.Wait()

    winners := 0
    for _, err := range errs {
        if err == nil {
            winners++
        } else {
            assert.ErrorIs(t, err, ErrSeatUnavailable)
        }
    }
    assert.Equal(t, 1, winners)
}

func TestReaperSweepReleasesExpired(t *testing.T) {
    mgr, mem, clock := newTestManager(t)
    ctx := context.Background()

    sessionID, _, err := mgr.Lock(ctx, 1, 1, []string{"A1", "A2", "A3"})
    require.NoError(t, err)

    reaper := NewReaper(mem, DefaultReapInterval)
    reaper.SetClock(clock.Now)

    assert.Zero(t, reaper.Sweep(ctx))

    clock.Advance(DefaultLockTTL + time.Second)
    assert.Equal(t, 3, reaper.Sweep(ctx))
    assert.Zero(t, reaper.Sweep(ctx))

    holds, err := mem.SessionHolds(ctx, sessionID)
    require.NoError(t, err)
    for _, h := range holds {
        assert.Equal(t, model.HoldReleased, h.Status)
    }
}
