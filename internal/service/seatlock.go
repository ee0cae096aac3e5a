package service

import (
    "context"
    "time"

    "github.com/google/uuid"

    "github.com/showseat/booking/internal/model"
    "github.com/showseat/booking/internal/storage"
)

// Defaults for the lock policy.  All three are overridable through
// LockConfig.
const (
    DefaultLockTTL      = 10 * time.Minute
    DefaultMaxSeats     = 10
    DefaultMaxExtension = 5 * time.Minute
)

// LockConfig carries the tunables of the seat lock manager.  Zero values
// fall back to the defaults above.
type LockConfig struct {
    TTL          time.Duration // hold lifetime granted by a lock request
    MaxSeats     int           // maximum seats per session
    MaxExtension time.Duration // per-call cap for Extend
}

// SeatLockManager owns exclusive, time-bounded holds on (show, seat)
// pairs.  Atomicity of the availability check plus hold creation is
// delegated to the LockStore; the manager validates inputs, assigns
// session identifiers and applies the lock policy.  Expired holds are
// swept synchronously before every lock and availability evaluation, so
// a stale hold never blocks a request even when the reaper has not run
// yet.
type SeatLockManager struct {
    locks storage.LockStore
    shows storage.ShowStore
    users storage.UserStore
    cfg   LockConfig
    now   func() time.Time
}

// NewSeatLockManager constructs a seat lock manager with the provided
// collaborators.  All stores must be non-nil.
func NewSeatLockManager(locks storage.LockStore, shows storage.ShowStore, users storage.UserStore, cfg LockConfig) *SeatLockManager {
    if locks == nil || shows == nil || users == nil {
        panic("nil store passed to NewSeatLockManager")
    }
    if cfg.TTL <= 0 {
        cfg.TTL = DefaultLockTTL
    }
    if cfg.MaxSeats <= 0 {
        cfg.MaxSeats = DefaultMaxSeats
    }
    if cfg.MaxExtension <= 0 {
        cfg.MaxExtension = DefaultMaxExtension
    }
    return &SeatLockManager{
        locks: locks,
        shows: shows,
        users: users,
        cfg:   cfg,
        now:   func() time.Time { return time.Now().UTC() },
    }
}

// SetClock replaces the manager's time source.  Used by tests to move
// holds past their deadline without sleeping.
func (m *SeatLockManager) SetClock(now func() time.Time) { m.now = now }

// dedupe removes duplicates and empty labels while preserving order.
func dedupe(seats []string) []string {
    unique := make([]string, 0, len(seats))
    seen := make(map[string]struct{}, len(seats))
    for _, s := range seats {
        if s == "" {
            continue
        }
        if _, ok := seen[s]; !ok {
            seen[s] = struct{}{}
            unique = append(unique, s)
        }
    }
    return unique
}

// Lock validates the request and creates one hold per seat, all sharing a
// fresh session identifier and a deadline of now+TTL.  The whole batch
// fails atomically: if any seat has an active hold the store returns a
// *storage.SeatConflictError and nothing is inserted.  It returns the new
// session id and its expiry.
func (m *SeatLockManager) Lock(ctx context.Context, showID, holderID uint64, seats []string) (string, time.Time, error) {
    show, err := m.shows.ShowByID(ctx, showID)
    if err != nil {
        return "", time.Time{}, err
    }
    if _, err := m.users.UserByID(ctx, holderID); err != nil {
        return "", time.Time{}, err
    }
    unique := dedupe(seats)
    if len(unique) == 0 {
        return "", time.Time{}, ErrUnknownSeat
    }
    if len(unique) > m.cfg.MaxSeats {
        return "", time.Time{}, ErrTooManySeats
    }
    for _, seat := range unique {
        if !show.HasSeat(seat) {
            return "", time.Time{}, ErrUnknownSeat
        }
    }

    now := m.now()
    session := &model.LockSession{
        ID:        uuid.NewString(),
        ShowID:    showID,
        HolderID:  holderID,
        Seats:     unique,
        ExpiresAt: now.Add(m.cfg.TTL),
        CreatedAt: now,
    }
    if err := m.locks.CreateSession(ctx, session, now); err != nil {
        return "", time.Time{}, err
    }
    return session.ID, session.ExpiresAt, nil
}

// Release transitions every held seat under the session to Released.  It
// is idempotent: releasing an unknown, already released or already
// confirmed session is a no-op, never an error.
func (m *SeatLockManager) Release(ctx context.Context, sessionID string) error {
    _, err := m.locks.ReleaseSession(ctx, sessionID)
    return err
}

// Confirm transitions every held seat under the session to Confirmed.  It
// fails with ErrSessionNotFound when no holds exist for the session and
// is a no-op when the session is already confirmed.
func (m *SeatLockManager) Confirm(ctx context.Context, sessionID string) error {
    _, err := m.locks.ConfirmSession(ctx, sessionID)
    return err
}

// SessionHolds returns the holds created under a session.
func (m *SeatLockManager) SessionHolds(ctx context.Context, sessionID string) ([]model.SeatHold, error) {
    return m.locks.SessionHolds(ctx, sessionID)
}

// RemainingSeconds returns the whole-second floor of time left until the
// session's shared deadline.  Unknown sessions, sessions whose holds are
// no longer held, and sessions past their deadline all yield 0 — even
// before the reaper has swept them.
func (m *SeatLockManager) RemainingSeconds(ctx context.Context, sessionID string) (int64, error) {
    holds, err := m.locks.SessionHolds(ctx, sessionID)
    if err != nil {
        return 0, err
    }
    if len(holds) == 0 {
        return 0, nil
    }
    // All holds share the session deadline; the first is representative.
    first := holds[0]
    if first.Status != model.HoldHeld {
        return 0, nil
    }
    now := m.now()
    if !now.Before(first.ExpiresAt) {
        return 0, nil
    }
    return int64(first.ExpiresAt.Sub(now).Seconds()), nil
}

// Extend adds the given number of minutes to the deadline of every
// still-held seat in the session.  Requests above the per-call cap fail
// with ErrExtensionLimit; extending an expired or released session is a
// no-op, not an error.
func (m *SeatLockManager) Extend(ctx context.Context, sessionID string, minutes int) error {
    by := time.Duration(minutes) * time.Minute
    if by > m.cfg.MaxExtension {
        return ErrExtensionLimit
    }
    if minutes <= 0 {
        return ErrExtensionLimit
    }
    _, err := m.locks.ExtendSession(ctx, sessionID, by, m.now())
    return err
}

// ActiveSeatsForShow returns a snapshot of the seats currently under an
// active hold for the show, for availability display.  Expired holds are
// swept first so they never appear.
func (m *SeatLockManager) ActiveSeatsForShow(ctx context.Context, showID uint64) ([]string, error) {
    if _, err := m.shows.ShowByID(ctx, showID); err != nil {
        return nil, err
    }
    now := m.now()
    if _, err := m.locks.ReleaseExpired(ctx, now); err != nil {
        return nil, err
    }
    return m.locks.ActiveSeats(ctx, showID, now)
}

// CheckAvailability reports per-seat availability: true means no active
// hold blocks the seat.  Expired holds are swept before the check so a
// stale hold never reports as unavailable.
func (m *SeatLockManager) CheckAvailability(ctx context.Context, showID uint64, seats []string) (map[string]bool, error) {
    if _, err := m.shows.ShowByID(ctx, showID); err != nil {
        return nil, err
    }
    now := m.now()
    if _, err := m.locks.ReleaseExpired(ctx, now); err != nil {
        return nil, err
    }
    active, err := m.locks.ActiveSeats(ctx, showID, now)
    if err != nil {
        return nil, err
    }
    blocked := make(map[string]struct{}, len(active))
    for _, s := range active {
        blocked[s] = struct{}{}
    }
    out := make(map[string]bool, len(seats))
    for _, seat := range dedupe(seats) {
        _, taken := blocked[seat]
        out[seat] = !taken
    }
    return out, nil
}
