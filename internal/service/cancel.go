package service

import (
    "context"
    "fmt"
    "log"
    "time"

    "github.com/showseat/booking/internal/model"
    "github.com/showseat/booking/internal/storage"
)

// RefundQuote is the outcome of evaluating the cancellation policy for a
// booking at a point in time.
type RefundQuote struct {
    CanCancel      bool    `json:"can_cancel"`
    RefundAmount   float64 `json:"refund_amount"`
    Percentage     float64 `json:"refund_percentage"`
    HoursUntilShow int64   `json:"hours_until_show"`
    Message        string  `json:"message"`
}

// RefundPolicy maps time-until-show onto a refund percentage.  The
// schedule is tiered: more than 24 hours out refunds 95% of the paid
// total, between 6 and 24 hours refunds 50%, and within 6 hours of the
// show cancellation is closed entirely.
type RefundPolicy struct {
    now func() time.Time
}

// NewRefundPolicy returns the standard tiered policy.
func NewRefundPolicy() *RefundPolicy {
    return &RefundPolicy{now: func() time.Time { return time.Now().UTC() }}
}

// SetClock replaces the policy's time source.  Used by tests.
func (rp *RefundPolicy) SetClock(now func() time.Time) { rp.now = now }

// Quote evaluates the policy for a show starting at showStart against the
// amount paid.  Hours are truncated toward zero, so 24h59m counts as 24
// hours and lands in the 50% tier.  When the window is closed the quote
// carries CanCancel=false and a zero refund; callers enforcing the policy
// should treat that as ErrCancellationWindowClosed.
func (rp *RefundPolicy) Quote(showStart time.Time, amountPaid float64) RefundQuote {
    hours := int64(showStart.UTC().Sub(rp.now()).Hours())
    switch {
    case hours > 24:
        return RefundQuote{
            CanCancel:      true,
            RefundAmount:   amountPaid * 0.95,
            Percentage:     95,
            HoursUntilShow: hours,
            Message:        "Eligible for 95% refund",
        }
    case hours >= 6:
        return RefundQuote{
            CanCancel:      true,
            RefundAmount:   amountPaid * 0.50,
            Percentage:     50,
            HoursUntilShow: hours,
            Message:        "Eligible for 50% refund",
        }
    default:
        return RefundQuote{
            CanCancel:      false,
            HoursUntilShow: hours,
            Message:        "Cancellation not allowed within 6 hours of showtime",
        }
    }
}

// CancellationService cancels confirmed bookings: it evaluates the refund
// policy against the show's start time, drives the partial refund through
// the payment ledger and flips the booking to Cancelled.
type CancellationService struct {
    bookings storage.BookingStore
    shows    storage.ShowStore
    payments storage.PaymentStore
    ledger   *PaymentLedger
    policy   *RefundPolicy
}

// NewCancellationService wires the cancellation workflow.
func NewCancellationService(bookings storage.BookingStore, shows storage.ShowStore, payments storage.PaymentStore, ledger *PaymentLedger, policy *RefundPolicy) *CancellationService {
    if bookings == nil || shows == nil || payments == nil || ledger == nil || policy == nil {
        panic("nil dependency passed to NewCancellationService")
    }
    return &CancellationService{bookings: bookings, shows: shows, payments: payments, ledger: ledger, policy: policy}
}

// PolicyFor previews the refund a user would receive for cancelling the
// booking right now, without cancelling anything.
func (cs *CancellationService) PolicyFor(ctx context.Context, bookingID, userID uint64) (*RefundQuote, error) {
    b, err := cs.bookings.BookingByID(ctx, bookingID)
    if err != nil {
        return nil, err
    }
    if b.UserID != userID {
        return nil, ErrForbidden
    }
    show, err := cs.shows.ShowByID(ctx, b.ShowID)
    if err != nil {
        return nil, err
    }
    q := cs.policy.Quote(show.StartsAt, b.TotalAmount)
    return &q, nil
}

// Cancel cancels a confirmed booking owned by userID.  The refund amount
// comes from the policy quote; within the closed window the booking is
// left untouched and ErrCancellationWindowClosed is returned.  Cancelling
// an already-cancelled booking is rejected as an invalid state rather
// than treated as idempotent, since the caller may otherwise expect a
// second refund.
func (cs *CancellationService) Cancel(ctx context.Context, bookingID, userID uint64) (*model.Booking, *RefundQuote, error) {
    b, err := cs.bookings.BookingByID(ctx, bookingID)
    if err != nil {
        return nil, nil, err
    }
    if b.UserID != userID {
        return nil, nil, ErrForbidden
    }
    if b.Status != model.BookingConfirmed {
        return nil, nil, fmt.Errorf("%w: cannot cancel booking in status %s", ErrInvalidPaymentState, b.Status)
    }
    show, err := cs.shows.ShowByID(ctx, b.ShowID)
    if err != nil {
        return nil, nil, err
    }
    q := cs.policy.Quote(show.StartsAt, b.TotalAmount)
    if !q.CanCancel {
        return nil, nil, ErrCancellationWindowClosed
    }

    p, err := cs.payments.PaymentByTransactionID(ctx, b.TransactionID)
    if err != nil {
        return nil, nil, err
    }
    reason := fmt.Sprintf("Booking %d cancelled %dh before showtime", b.ID, q.HoursUntilShow)
    if _, err := cs.ledger.Refund(ctx, p.ID, q.RefundAmount, reason); err != nil {
        return nil, nil, err
    }

    b.Status = model.BookingCancelled
    if err := cs.bookings.UpdateBooking(ctx, b); err != nil {
        return nil, nil, err
    }
    log.Printf("cancel: booking %d cancelled, refunded %.2f (%d%%)", b.ID, q.RefundAmount, int(q.Percentage))
    return b, &q, nil
}

// BookingsForUser lists a user's bookings, newest first.
func (cs *CancellationService) BookingsForUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
    return cs.bookings.BookingsByUser(ctx, userID)
}

// BookingByID returns a booking after verifying ownership.
func (cs *CancellationService) BookingByID(ctx context.Context, bookingID, userID uint64) (*model.Booking, error) {
    b, err := cs.bookings.BookingByID(ctx, bookingID)
    if err != nil {
        return nil, err
    }
    if b.UserID != userID {
        return nil, ErrForbidden
    }
    return b, nil
}
