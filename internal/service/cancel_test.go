package service

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/showseat/booking/internal/model"
)

func TestRefundPolicyTiers(t *testing.T) {
    clock := newTestClock()
    policy := NewRefundPolicy()
    policy.SetClock(clock.Now)

    cases := []struct {
        name      string
        until     time.Duration
        canCancel bool
        refund    float64
        percent   float64
        hours     int64
    }{
        {"30h out", 30 * time.Hour, true, 950, 95, 30},
        {"just over 25h", 25 * time.Hour, true, 950, 95, 25},
        {"exactly 24h", 24 * time.Hour, true, 500, 50, 24},
        {"just under 24h", 24*time.Hour - time.Minute, true, 500, 50, 23},
        {"12h out", 12 * time.Hour, true, 500, 50, 12},
        {"exactly 6h", 6 * time.Hour, true, 500, 50, 6},
        {"just under 6h", 6*time.Hour - time.Minute, false, 0, 0, 5},
        {"3h out", 3 * time.Hour, false, 0, 0, 3},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            q := policy.Quote(clock.Now().Add(tc.until), 1000)
            assert.Equal(t, tc.canCancel, q.CanCancel)
            assert.InDelta(t, tc.refund, q.RefundAmount, 1e-9)
            assert.InDelta(t, tc.percent, q.Percentage, 1e-9)
            assert.Equal(t, tc.hours, q.HoursUntilShow)
        })
    }
}

// cancelFixture extends the payment fixture with a booked ticket ready to
// cancel.
type cancelFixture struct {
    *paymentFixture
    svc       *CancellationService
    policy    *RefundPolicy
    bookingID uint64
    total     float64
}

func newCancelFixture(t *testing.T) *cancelFixture {
    t.Helper()
    f := newPaymentFixture(t, 100)
    policy := NewRefundPolicy()
    policy.SetClock(f.clock.Now)
    svc := NewCancellationService(f.store, f.store, f.store, f.ledger, policy)

    ctx := context.Background()
    session := f.lock(t, "A1", "A2")
    p, err := f.ledger.Initiate(ctx, session, 1, 1000, model.MethodUPI, "")
    require.NoError(t, err)
    settled, err := f.ledger.Settle(ctx, p.TransactionID)
    require.NoError(t, err)

    bookings, err := f.store.BookingsByUser(ctx, 1)
    require.NoError(t, err)
    require.Len(t, bookings, 1)

    return &cancelFixture{
        paymentFixture: f,
        svc:            svc,
        policy:         policy,
        bookingID:      bookings[0].ID,
        total:          settled.TotalAmount,
    }
}

func TestCancelOutsideDayRefunds95Percent(t *testing.T) {
    f := newCancelFixture(t)
    ctx := context.Background()

    // The show starts 48h from the fixture clock.
    b, q, err := f.svc.Cancel(ctx, f.bookingID, 1)
    require.NoError(t, err)
    assert.Equal(t, model.BookingCancelled, b.Status)
    assert.InDelta(t, f.total*0.95, q.RefundAmount, 1e-9)

    p, err := f.ledger.PaymentBySessionID(ctx, b.SessionID)
    require.NoError(t, err)
    assert.Equal(t, model.PaymentRefunded, p.Status)
    assert.InDelta(t, f.total*0.95, p.RefundAmount, 1e-9)

    user, err := f.store.UserByID(ctx, 1)
    require.NoError(t, err)
    assert.InDelta(t, f.total*0.95, user.WalletBalance, 1e-9)
}

func TestCancelMidWindowRefunds50Percent(t *testing.T) {
    f := newCancelFixture(t)
    f.clock.Advance(36 * time.Hour) // 12h before the show

    _, q, err := f.svc.Cancel(context.Background(), f.bookingID, 1)
    require.NoError(t, err)
    assert.InDelta(t, f.total*0.50, q.RefundAmount, 1e-9)
}

func TestCancelInsideSixHoursRejected(t *testing.T) {
    f := newCancelFixture(t)
    f.clock.Advance(45 * time.Hour) // 3h before the show

    _, _, err := f.svc.Cancel(context.Background(), f.bookingID, 1)
    assert.ErrorIs(t, err, ErrCancellationWindowClosed)

    // The booking is untouched.
    b, err := f.svc.BookingByID(context.Background(), f.bookingID, 1)
    require.NoError(t, err)
    assert.Equal(t, model.BookingConfirmed, b.Status)
}

func TestCancelTwiceRejected(t *testing.T) {
    f := newCancelFixture(t)
    ctx := context.Background()

    _, _, err := f.svc.Cancel(ctx, f.bookingID, 1)
    require.NoError(t, err)

    _, _, err = f.svc.Cancel(ctx, f.bookingID, 1)
    assert.ErrorIs(t, err, ErrInvalidPaymentState)
}

func TestCancelRequiresOwnership(t *testing.T) {
    f := newCancelFixture(t)
    ctx := context.Background()

    _, _, err := f.svc.Cancel(ctx, f.bookingID, 2)
    assert.ErrorIs(t, err, ErrForbidden)

    _, err = f.svc.PolicyFor(ctx, f.bookingID, 2)
    assert.ErrorIs(t, err, ErrForbidden)

    _, _, err = f.svc.Cancel(ctx, 999, 1)
    assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestPolicyPreviewDoesNotCancel(t *testing.T) {
    f := newCancelFixture(t)
    ctx := context.Background()

    q, err := f.svc.PolicyFor(ctx, f.bookingID, 1)
    require.NoError(t, err)
    assert.True(t, q.CanCancel)
    assert.InDelta(t, f.total*0.95, q.RefundAmount, 1e-9)

    b, err := f.svc.BookingByID(ctx, f.bookingID, 1)
    require.NoError(t, err)
    assert.Equal(t, model.BookingConfirmed, b.Status)
}
