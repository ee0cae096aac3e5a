// Package storage defines the persistence contracts the booking core runs
// against, together with the sentinel errors shared by all
// implementations.  Two implementations exist: an in-memory store used by
// tests and single-process deployments, and a MySQL store for shared
// deployments.  Every mutating operation is atomic within a single
// implementation call; the uniqueness of active holds per (show, seat) is
// the final arbiter between racing lock attempts.
package storage

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/showseat/booking/internal/model"
)

// ErrSeatUnavailable is returned when a lock request targets at least one
// seat that already has an active hold.  The whole batch fails; no partial
// locking occurs.  Handlers should translate this into an HTTP 409.
var ErrSeatUnavailable = errors.New("seat unavailable")

// ErrSessionNotFound is returned when no holds exist under the given
// session identifier.
var ErrSessionNotFound = errors.New("session not found")

// ErrPaymentNotFound is returned when a payment lookup matches no record.
var ErrPaymentNotFound = errors.New("payment not found")

// ErrShowNotFound is returned when a show lookup matches no record.
var ErrShowNotFound = errors.New("show not found")

// ErrUserNotFound is returned when a user lookup matches no record.
var ErrUserNotFound = errors.New("user not found")

// ErrBookingNotFound is returned when a booking lookup matches no record.
var ErrBookingNotFound = errors.New("booking not found")

// SeatConflictError reports which seats blocked a lock request.  It
// unwraps to ErrSeatUnavailable so callers can use errors.Is for the
// coarse check and errors.As when they need the seat labels.
type SeatConflictError struct {
    Seats []string
}

func (e *SeatConflictError) Error() string {
    return fmt.Sprintf("seats unavailable: %s", strings.Join(e.Seats, ","))
}

func (e *SeatConflictError) Unwrap() error { return ErrSeatUnavailable }

// LockStore persists seat holds and lock sessions.  Implementations must
// guarantee that CreateSession's availability check and hold insertion
// happen atomically, and that all status transitions are idempotent and
// monotonic (HELD may move to RELEASED or CONFIRMED exactly once).
type LockStore interface {
    // CreateSession sweeps expired holds for the session's show, verifies
    // that none of the requested seats has an active hold, and inserts one
    // HELD hold per seat, all sharing the session's deadline.  On conflict
    // it returns a *SeatConflictError and inserts nothing.
    CreateSession(ctx context.Context, session *model.LockSession, now time.Time) error

    // SessionHolds returns every hold created under the session, in seat
    // order.  An unknown session yields an empty slice, not an error.
    SessionHolds(ctx context.Context, sessionID string) ([]model.SeatHold, error)

    // ReleaseSession transitions every HELD hold under the session to
    // RELEASED and reports how many changed.  Unknown or already settled
    // sessions are a no-op.
    ReleaseSession(ctx context.Context, sessionID string) (int, error)

    // ConfirmSession transitions every HELD hold under the session to
    // CONFIRMED.  It returns ErrSessionNotFound when no holds exist for
    // the session at all; a session whose holds are already confirmed is
    // a no-op.
    ConfirmSession(ctx context.Context, sessionID string) (int, error)

    // ExtendSession pushes the deadline of every still-HELD, unexpired
    // hold in the session forward by the given duration.  Expired or
    // settled holds are untouched.
    ExtendSession(ctx context.Context, sessionID string, by time.Duration, now time.Time) (int, error)

    // ActiveSeats returns the labels of seats under an active hold for the
    // show at the given instant.
    ActiveSeats(ctx context.Context, showID uint64, now time.Time) ([]string, error)

    // ReleaseExpired bulk-transitions every HELD hold whose deadline has
    // passed into RELEASED, across all shows, and reports the count.  It
    // is the reaper's sweep and also backs the synchronous on-demand
    // sweeps performed before reads.
    ReleaseExpired(ctx context.Context, now time.Time) (int, error)
}

// PaymentStore persists payment records.  CreatePayment is idempotent per
// session: when a record already exists for the session the stored record
// is returned unchanged and created is false, so concurrent duplicate
// initiations observe a single record.
//
// Status changes go through UpdatePaymentStatus exclusively; it is the
// compare-and-swap that keeps the lifecycle monotonic under concurrent
// settlement and refund attempts.  UpdatePayment persists the non-status
// fields and must only be called by the caller holding the current status
// claim.
type PaymentStore interface {
    CreatePayment(ctx context.Context, p *model.Payment) (stored *model.Payment, created bool, err error)
    PaymentByTransactionID(ctx context.Context, transactionID string) (*model.Payment, error)
    PaymentBySessionID(ctx context.Context, sessionID string) (*model.Payment, error)
    PaymentByID(ctx context.Context, id uint64) (*model.Payment, error)
    UpdatePayment(ctx context.Context, p *model.Payment) error
    // UpdatePaymentStatus atomically transitions the record from one
    // status to another.  It reports false, without error, when the
    // stored status no longer matches from — the caller lost the race
    // and must re-read instead of writing.
    UpdatePaymentStatus(ctx context.Context, id uint64, from, to model.PaymentStatus) (bool, error)
}

// ShowStore is the catalog lookup the core consumes.  MarkSeatsConfirmed
// is the only write the core ever performs against inventory.
type ShowStore interface {
    ShowByID(ctx context.Context, id uint64) (*model.Show, error)
    MarkSeatsConfirmed(ctx context.Context, showID uint64, seats []string) error
}

// UserStore is the identity lookup plus the wallet-credit operation used
// by the refund workflow.
type UserStore interface {
    UserByID(ctx context.Context, id uint64) (*model.User, error)
    // CreditWallet atomically adds amount to the user's wallet balance and
    // returns the new balance.
    CreditWallet(ctx context.Context, userID uint64, amount float64) (float64, error)
}

// BookingStore persists the downstream confirmation records created when
// a payment settles successfully.
type BookingStore interface {
    CreateBooking(ctx context.Context, b *model.Booking) error
    BookingByID(ctx context.Context, id uint64) (*model.Booking, error)
    BookingsByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
    UpdateBooking(ctx context.Context, b *model.Booking) error
}

// Store aggregates every persistence concern of the booking core.  The
// in-memory and MySQL implementations both satisfy it.
type Store interface {
    LockStore
    PaymentStore
    ShowStore
    UserStore
    BookingStore
}
