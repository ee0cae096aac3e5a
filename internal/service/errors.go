// Package service implements the booking core: the seat lock manager, the
// expiry reaper, the payment ledger and the cancellation policy engine.
// Components take their collaborators as constructor arguments; there is
// no hidden registry.
package service

import (
    "errors"

    "github.com/showseat/booking/internal/storage"
)

// Sentinel errors returned by the core.  Lookup errors are re-exported
// from the storage package so handlers can match either layer with a
// single errors.Is check.
var (
    ErrShowNotFound    = storage.ErrShowNotFound
    ErrUserNotFound    = storage.ErrUserNotFound
    ErrSessionNotFound = storage.ErrSessionNotFound
    ErrPaymentNotFound = storage.ErrPaymentNotFound
    ErrBookingNotFound = storage.ErrBookingNotFound
    ErrSeatUnavailable = storage.ErrSeatUnavailable

    // ErrTooManySeats rejects lock requests exceeding the per-session
    // seat limit.
    ErrTooManySeats = errors.New("too many seats requested")

    // ErrUnknownSeat rejects lock requests naming seats the show's
    // inventory does not contain, and empty seat lists.
    ErrUnknownSeat = errors.New("seat not in show inventory")

    // ErrExtensionLimit rejects extend requests above the per-call cap.
    ErrExtensionLimit = errors.New("extension limit exceeded")

    // ErrLocksExpired means the lock session backing a payment has run
    // out of time; the checkout must restart from seat selection.
    ErrLocksExpired = errors.New("seat locks have expired")

    // ErrInvalidPaymentState means the requested operation is not valid
    // for the payment's current status.
    ErrInvalidPaymentState = errors.New("operation not valid for payment state")

    // ErrRefundFailed means the gateway declined the refund; the payment
    // stays in Success.
    ErrRefundFailed = errors.New("refund processing failed")

    // ErrCancellationWindowClosed rejects cancellations requested less
    // than six hours before showtime.
    ErrCancellationWindowClosed = errors.New("cancellation window closed")

    // ErrForbidden is returned when the caller does not own the resource
    // being operated on.
    ErrForbidden = errors.New("forbidden")
)
