package service

import (
    "context"
    "sync"
    "sync/atomic"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/showseat/booking/internal/gateway"
    "github.com/showseat/booking/internal/model"
    "github.com/showseat/booking/internal/storage"
)

// paymentFixture bundles the full checkout stack against the in-memory
// store, with a deterministic gateway and a movable clock.
type paymentFixture struct {
    store  *storage.MemoryStore
    locks  *SeatLockManager
    ledger *PaymentLedger
    gw     *gateway.Simulator
    clock  *testClock
}

func newPaymentFixture(t *testing.T, successPercent int) *paymentFixture {
    t.Helper()
    clock := newTestClock()
    mem := newSeededStore(clock.Now().Add(48 * time.Hour))
    locks := NewSeatLockManager(mem, mem, mem, LockConfig{})
    locks.SetClock(clock.Now)
    gw := gateway.NewSimulator(successPercent, 0, 0)
    ledger := NewPaymentLedger(mem, mem, mem, mem, locks, gw, nil, PaymentConfig{})
    ledger.SetClock(clock.Now)
    return &paymentFixture{store: mem, locks: locks, ledger: ledger, gw: gw, clock: clock}
}

func (f *paymentFixture) lock(t *testing.T, seats ...string) string {
    t.Helper()
    sessionID, _, err := f.locks.Lock(context.Background(), 1, 1, seats)
    require.NoError(t, err)
    return sessionID
}

func TestInitiateComputesFees(t *testing.T) {
    f := newPaymentFixture(t, 100)
    session := f.lock(t, "A1", "A2")

    p, err := f.ledger.Initiate(context.Background(), session, 1, 1000, model.MethodUPI, "")
    require.NoError(t, err)

    assert.InDelta(t, 25.0, p.ConvenienceFee, 1e-9)
    assert.InDelta(t, 184.5, p.Tax, 1e-9)
    assert.InDelta(t, 1209.5, p.TotalAmount, 1e-9)
    assert.Equal(t, model.PaymentPending, p.Status)
    assert.Contains(t, p.TransactionID, "TXN_")
}

func TestInitiateAppliesFeeFloor(t *testing.T) {
    f := newPaymentFixture(t, 100)
    session := f.lock(t, "A1")

    // 2.5% of 400 is 10, below the 20 floor.
    p, err := f.ledger.Initiate(context.Background(), session, 1, 400, model.MethodCreditCard, "")
    require.NoError(t, err)
    assert.InDelta(t, 20.0, p.ConvenienceFee, 1e-9)
    assert.InDelta(t, 75.6, p.Tax, 1e-9)
    assert.InDelta(t, 495.6, p.TotalAmount, 1e-9)
}

func TestInitiatePromoCodes(t *testing.T) {
    cases := []struct {
        code     string
        discount float64
    }{
        {"SAVE10", 100},
        {"save10", 100},
        {"SAVE20", 200},
        {"FIRSTBOOKING", 100}, // 15% of 1000 capped at 100
        {"NOPE", 0},
        {"", 0},
    }
    for _, tc := range cases {
        t.Run(tc.code, func(t *testing.T) {
            f := newPaymentFixture(t, 100)
            session := f.lock(t, "A1")
            p, err := f.ledger.Initiate(context.Background(), session, 1, 1000, model.MethodUPI, tc.code)
            require.NoError(t, err)
            assert.InDelta(t, tc.discount, p.DiscountAmount, 1e-9)
            assert.InDelta(t, 1209.5-tc.discount, p.TotalAmount, 1e-9)
        })
    }
}

func TestInitiateIsIdempotentPerSession(t *testing.T) {
    f := newPaymentFixture(t, 100)
    session := f.lock(t, "A1")
    ctx := context.Background()

    first, err := f.ledger.Initiate(ctx, session, 1, 1000, model.MethodUPI, "")
    require.NoError(t, err)

    // Different amount and promo on the retry must not create or mutate
    // anything.
    second, err := f.ledger.Initiate(ctx, session, 1, 2000, model.MethodCreditCard, "SAVE20")
    require.NoError(t, err)
    assert.Equal(t, first.TransactionID, second.TransactionID)
    assert.InDelta(t, first.TotalAmount, second.TotalAmount, 1e-9)
}

func TestInitiateRejectsExpiredSession(t *testing.T) {
    f := newPaymentFixture(t, 100)
    session := f.lock(t, "A1")

    f.clock.Advance(DefaultLockTTL + time.Second)
    _, err := f.ledger.Initiate(context.Background(), session, 1, 1000, model.MethodUPI, "")
    assert.ErrorIs(t, err, ErrLocksExpired)
}

func TestSettleSuccessConfirmsSeats(t *testing.T) {
    f := newPaymentFixture(t, 100)
    session := f.lock(t, "A1", "A2")
    ctx := context.Background()

    p, err := f.ledger.Initiate(ctx, session, 1, 1000, model.MethodUPI, "")
    require.NoError(t, err)

    settled, err := f.ledger.Settle(ctx, p.TransactionID)
    require.NoError(t, err)
    assert.Equal(t, model.PaymentSuccess, settled.Status)
    require.NotNil(t, settled.CompletedAt)
    assert.Contains(t, settled.GatewayTransactionID, "TXN_")

    holds, err := f.store.SessionHolds(ctx, session)
    require.NoError(t, err)
    for _, h := range holds {
        assert.Equal(t, model.HoldConfirmed, h.Status)
    }
    assert.ElementsMatch(t, []string{"A1", "A2"}, f.store.ConfirmedSeats(1))

    bookings, err := f.store.BookingsByUser(ctx, 1)
    require.NoError(t, err)
    require.Len(t, bookings, 1)
    assert.Equal(t, model.BookingConfirmed, bookings[0].Status)
    assert.ElementsMatch(t, []string{"A1", "A2"}, bookings[0].Seats)
    assert.InDelta(t, settled.TotalAmount, bookings[0].TotalAmount, 1e-9)
}

func TestSettleIsIdempotentOnSuccess(t *testing.T) {
    f := newPaymentFixture(t, 100)
    session := f.lock(t, "A1")
    ctx := context.Background()

    p, err := f.ledger.Initiate(ctx, session, 1, 1000, model.MethodUPI, "")
    require.NoError(t, err)
    _, err = f.ledger.Settle(ctx, p.TransactionID)
    require.NoError(t, err)

    again, err := f.ledger.Settle(ctx, p.TransactionID)
    require.NoError(t, err)
    assert.Equal(t, model.PaymentSuccess, again.Status)

    bookings, err := f.store.BookingsByUser(ctx, 1)
    require.NoError(t, err)
    assert.Len(t, bookings, 1)
}

func TestSettleFailureReleasesSeats(t *testing.T) {
    f := newPaymentFixture(t, 0)
    session := f.lock(t, "A1", "A2")
    ctx := context.Background()

    p, err := f.ledger.Initiate(ctx, session, 1, 1000, model.MethodUPI, "")
    require.NoError(t, err)

    failed, err := f.ledger.Settle(ctx, p.TransactionID)
    require.NoError(t, err)
    assert.Equal(t, model.PaymentFailed, failed.Status)
    assert.NotEmpty(t, failed.GatewayResponse)

    // The seats go straight back on sale.
    avail, err := f.locks.CheckAvailability(ctx, 1, []string{"A1", "A2"})
    require.NoError(t, err)
    assert.True(t, avail["A1"])
    assert.True(t, avail["A2"])

    _, err = f.ledger.Settle(ctx, p.TransactionID)
    assert.ErrorIs(t, err, ErrInvalidPaymentState)
}

func TestSettleAfterLockExpiry(t *testing.T) {
    f := newPaymentFixture(t, 100)
    session := f.lock(t, "A1")
    ctx := context.Background()

    p, err := f.ledger.Initiate(ctx, session, 1, 1000, model.MethodUPI, "")
    require.NoError(t, err)

    f.clock.Advance(DefaultLockTTL + time.Second)
    failed, err := f.ledger.Settle(ctx, p.TransactionID)
    require.ErrorIs(t, err, ErrLocksExpired)
    assert.Equal(t, model.PaymentFailed, failed.Status)
}

func TestSettleUnknownTransaction(t *testing.T) {
    f := newPaymentFixture(t, 100)
    _, err := f.ledger.Settle(context.Background(), "TXN_nope")
    assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestRefundCreditsWallet(t *testing.T) {
    f := newPaymentFixture(t, 100)
    session := f.lock(t, "A1")
    ctx := context.Background()

    p, err := f.ledger.Initiate(ctx, session, 1, 1000, model.MethodUPI, "")
    require.NoError(t, err)
    settled, err := f.ledger.Settle(ctx, p.TransactionID)
    require.NoError(t, err)

    refunded, err := f.ledger.Refund(ctx, settled.ID, 0, "show rescheduled")
    require.NoError(t, err)
    assert.Equal(t, model.PaymentRefunded, refunded.Status)
    assert.InDelta(t, settled.TotalAmount, refunded.RefundAmount, 1e-9)
    require.NotNil(t, refunded.RefundedAt)
    assert.Equal(t, "show rescheduled", refunded.RefundReason)

    user, err := f.store.UserByID(ctx, 1)
    require.NoError(t, err)
    assert.InDelta(t, settled.TotalAmount, user.WalletBalance, 1e-9)

    // A repeat refund returns the record without crediting again.
    _, err = f.ledger.Refund(ctx, settled.ID, 0, "again")
    require.NoError(t, err)
    user, err = f.store.UserByID(ctx, 1)
    require.NoError(t, err)
    assert.InDelta(t, settled.TotalAmount, user.WalletBalance, 1e-9)
}

func TestRefundPartialAmount(t *testing.T) {
    f := newPaymentFixture(t, 100)
    session := f.lock(t, "A1")
    ctx := context.Background()

    p, err := f.ledger.Initiate(ctx, session, 1, 1000, model.MethodUPI, "")
    require.NoError(t, err)
    settled, err := f.ledger.Settle(ctx, p.TransactionID)
    require.NoError(t, err)

    refunded, err := f.ledger.Refund(ctx, settled.ID, 500, "partial")
    require.NoError(t, err)
    assert.InDelta(t, 500, refunded.RefundAmount, 1e-9)
}

func TestRefundRequiresSuccess(t *testing.T) {
    f := newPaymentFixture(t, 100)
    session := f.lock(t, "A1")
    ctx := context.Background()

    p, err := f.ledger.Initiate(ctx, session, 1, 1000, model.MethodUPI, "")
    require.NoError(t, err)

    _, err = f.ledger.Refund(ctx, p.ID, 0, "too early")
    assert.ErrorIs(t, err, ErrInvalidPaymentState)
}

// countingGateway wraps a Gateway and counts the calls that reach it.
type countingGateway struct {
    inner   gateway.Gateway
    charges int32
    refunds int32
}

func (g *countingGateway) Charge(ctx context.Context, amount float64, method string, payerRef string) (gateway.ChargeResult, error) {
    atomic.AddInt32(&g.charges, 1)
    return g.inner.Charge(ctx, amount, method, payerRef)
}

func (g *countingGateway) Refund(ctx context.Context, gatewayTransactionID string, amount float64) (gateway.RefundResult, error) {
    atomic.AddInt32(&g.refunds, 1)
    return g.inner.Refund(ctx, gatewayTransactionID, amount)
}

// pairGate holds the first two callers until both have arrived, so both
// read the same status before either attempts the transition.  Later
// callers pass straight through.
type pairGate struct {
    mu      sync.Mutex
    arrived int
    release chan struct{}
}

func newPairGate() *pairGate { return &pairGate{release: make(chan struct{})} }

func (g *pairGate) wait() {
    g.mu.Lock()
    if g.arrived >= 2 {
        g.mu.Unlock()
        return
    }
    g.arrived++
    if g.arrived == 2 {
        close(g.release)
        g.mu.Unlock()
        return
    }
    g.mu.Unlock()
    <-g.release
}

// settleRaceStore widens the read-then-claim window of Settle by gating
// the transaction lookup.
type settleRaceStore struct {
    *storage.MemoryStore
    gate *pairGate
}

func (s *settleRaceStore) PaymentByTransactionID(ctx context.Context, transactionID string) (*model.Payment, error) {
    p, err := s.MemoryStore.PaymentByTransactionID(ctx, transactionID)
    s.gate.wait()
    return p, err
}

// refundRaceStore does the same for Refund's record lookup.
type refundRaceStore struct {
    *storage.MemoryStore
    gate *pairGate
}

func (s *refundRaceStore) PaymentByID(ctx context.Context, id uint64) (*model.Payment, error) {
    p, err := s.MemoryStore.PaymentByID(ctx, id)
    s.gate.wait()
    return p, err
}

func TestConcurrentSettleChargesOnce(t *testing.T) {
    clock := newTestClock()
    mem := newSeededStore(clock.Now().Add(48 * time.Hour))
    payments := &settleRaceStore{MemoryStore: mem, gate: newPairGate()}
    locks := NewSeatLockManager(mem, mem, mem, LockConfig{})
    locks.SetClock(clock.Now)
    gw := &countingGateway{inner: gateway.NewSimulator(100, 0, 0)}
    ledger := NewPaymentLedger(payments, mem, mem, mem, locks, gw, nil, PaymentConfig{})
    ledger.SetClock(clock.Now)
    ctx := context.Background()

    session, _, err := locks.Lock(ctx, 1, 1, []string{"A1"})
    require.NoError(t, err)
    p, err := ledger.Initiate(ctx, session, 1, 1000, model.MethodUPI, "")
    require.NoError(t, err)

    errs := make(chan error, 2)
    for i := 0; i < 2; i++ {
        go func() {
            _, err := ledger.Settle(ctx, p.TransactionID)
            errs <- err
        }()
    }
    for i := 0; i < 2; i++ {
        // The loser either observes the winner's Success or reports the
        // in-flight claim; it never settles a second time.
        if err := <-errs; err != nil {
            assert.ErrorIs(t, err, ErrInvalidPaymentState)
        }
    }

    assert.EqualValues(t, 1, atomic.LoadInt32(&gw.charges))

    stored, err := mem.PaymentByTransactionID(ctx, p.TransactionID)
    require.NoError(t, err)
    assert.Equal(t, model.PaymentSuccess, stored.Status)

    holds, err := mem.SessionHolds(ctx, session)
    require.NoError(t, err)
    for _, h := range holds {
        assert.Equal(t, model.HoldConfirmed, h.Status)
    }
    bookings, err := mem.BookingsByUser(ctx, 1)
    require.NoError(t, err)
    assert.Len(t, bookings, 1)
}

func TestConcurrentRefundCreditsOnce(t *testing.T) {
    clock := newTestClock()
    mem := newSeededStore(clock.Now().Add(48 * time.Hour))
    payments := &refundRaceStore{MemoryStore: mem, gate: newPairGate()}
    locks := NewSeatLockManager(mem, mem, mem, LockConfig{})
    locks.SetClock(clock.Now)
    gw := &countingGateway{inner: gateway.NewSimulator(100, 0, 0)}
    ledger := NewPaymentLedger(payments, mem, mem, mem, locks, gw, nil, PaymentConfig{})
    ledger.SetClock(clock.Now)
    ctx := context.Background()

    session, _, err := locks.Lock(ctx, 1, 1, []string{"A1"})
    require.NoError(t, err)
    p, err := ledger.Initiate(ctx, session, 1, 1000, model.MethodUPI, "")
    require.NoError(t, err)
    settled, err := ledger.Settle(ctx, p.TransactionID)
    require.NoError(t, err)

    errs := make(chan error, 2)
    for i := 0; i < 2; i++ {
        go func() {
            _, err := ledger.Refund(ctx, settled.ID, 0, "show cancelled")
            errs <- err
        }()
    }
    for i := 0; i < 2; i++ {
        if err := <-errs; err != nil {
            assert.ErrorIs(t, err, ErrInvalidPaymentState)
        }
    }

    assert.EqualValues(t, 1, atomic.LoadInt32(&gw.refunds))

    stored, err := mem.PaymentByID(ctx, settled.ID)
    require.NoError(t, err)
    assert.Equal(t, model.PaymentRefunded, stored.Status)

    user, err := mem.UserByID(ctx, 1)
    require.NoError(t, err)
    assert.InDelta(t, settled.TotalAmount, user.WalletBalance, 1e-9)
}

func TestStatusMessages(t *testing.T) {
    p := &model.Payment{Status: model.PaymentPending}
    assert.Equal(t, "Payment initiated. Please proceed to complete payment.", StatusMessage(p))

    p.Status = model.PaymentFailed
    p.GatewayResponse = "Card declined"
    assert.Equal(t, "Payment failed: Card declined", StatusMessage(p))

    p.Status = model.PaymentSuccess
    assert.Equal(t, "Payment completed successfully", StatusMessage(p))
}
