package service

import (
    "context"
    "errors"
    "fmt"
    "log"
    "strings"
    "time"

    "github.com/google/uuid"

    "github.com/showseat/booking/internal/gateway"
    "github.com/showseat/booking/internal/model"
    "github.com/showseat/booking/internal/queue"
    "github.com/showseat/booking/internal/storage"
)

// Pricing defaults.  Fee and tax rates are fractions of the base amount.
const (
    DefaultConvenienceFeeRate = 0.025
    DefaultConvenienceFeeMin  = 20.0
    DefaultTaxRate            = 0.18
    DefaultChargeTimeout      = 15 * time.Second
)

// PaymentConfig carries the ledger tunables.  Zero values fall back to
// the defaults above.
type PaymentConfig struct {
    ConvenienceFeeRate float64       // fee as a fraction of the base amount
    ConvenienceFeeMin  float64       // fee floor
    TaxRate            float64       // tax as a fraction of base+fee
    ChargeTimeout      time.Duration // bound on every gateway call
}

// EventPublisher is the optional broker hook notified when a settlement
// confirms a session.  A nil publisher disables events.
type EventPublisher interface {
    PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
}

// PaymentLedger creates and settles payment records tied one-to-one with
// lock sessions.  Initiation is idempotent per session, settlement is
// idempotent per transaction, and every settlement outcome drives the
// seat lock manager: success confirms the session's holds and creates the
// booking, failure releases them.  A settlement is never left in
// Processing — gateway errors and timeouts are converted into a terminal
// Failed state with the holds released.
type PaymentLedger struct {
    payments storage.PaymentStore
    users    storage.UserStore
    shows    storage.ShowStore
    bookings storage.BookingStore
    locks    *SeatLockManager
    gw       gateway.Gateway
    events   EventPublisher
    cfg      PaymentConfig
    now      func() time.Time
}

// NewPaymentLedger constructs a ledger.  events may be nil to disable
// broker notifications; everything else must be non-nil.
func NewPaymentLedger(
    payments storage.PaymentStore,
    users storage.UserStore,
    shows storage.ShowStore,
    bookings storage.BookingStore,
    locks *SeatLockManager,
    gw gateway.Gateway,
    events EventPublisher,
    cfg PaymentConfig,
) *PaymentLedger {
    if payments == nil || users == nil || shows == nil || bookings == nil || locks == nil || gw == nil {
        panic("nil dependency passed to NewPaymentLedger")
    }
    if cfg.ConvenienceFeeRate <= 0 {
        cfg.ConvenienceFeeRate = DefaultConvenienceFeeRate
    }
    if cfg.ConvenienceFeeMin <= 0 {
        cfg.ConvenienceFeeMin = DefaultConvenienceFeeMin
    }
    if cfg.TaxRate <= 0 {
        cfg.TaxRate = DefaultTaxRate
    }
    if cfg.ChargeTimeout <= 0 {
        cfg.ChargeTimeout = DefaultChargeTimeout
    }
    return &PaymentLedger{
        payments: payments,
        users:    users,
        shows:    shows,
        bookings: bookings,
        locks:    locks,
        gw:       gw,
        events:   events,
        cfg:      cfg,
        now:      func() time.Time { return time.Now().UTC() },
    }
}

// SetClock replaces the ledger's time source.  Used by tests.
func (l *PaymentLedger) SetClock(now func() time.Time) { l.now = now }

// discount computes the promo-code discount over the base amount.  The
// table is flat: two fixed-percentage codes, one capped-amount code, and
// everything else yields zero.  Codes are case-insensitive.
func discount(promoCode string, baseAmount float64) float64 {
    switch strings.ToUpper(promoCode) {
    case "SAVE10":
        return baseAmount * 0.10
    case "SAVE20":
        return baseAmount * 0.20
    case "FIRSTBOOKING":
        d := baseAmount * 0.15
        if d > 100.0 {
            d = 100.0
        }
        return d
    }
    return 0.0
}

// Initiate creates the payment record for a lock session, idempotently:
// when a record already exists for the session it is returned unchanged
// and no fees are recomputed.  Otherwise the session must still have
// positive remaining lock time, the payer must exist, and the record is
// persisted in Pending with fee, tax and discount applied.
func (l *PaymentLedger) Initiate(ctx context.Context, sessionID string, payerID uint64, baseAmount float64, method model.PaymentMethod, promoCode string) (*model.Payment, error) {
    if existing, err := l.payments.PaymentBySessionID(ctx, sessionID); err == nil {
        return existing, nil
    } else if !isNotFound(err) {
        return nil, err
    }

    remaining, err := l.locks.RemainingSeconds(ctx, sessionID)
    if err != nil {
        return nil, err
    }
    if remaining <= 0 {
        return nil, ErrLocksExpired
    }
    if _, err := l.users.UserByID(ctx, payerID); err != nil {
        return nil, err
    }
    if baseAmount <= 0 {
        return nil, fmt.Errorf("invalid base amount %.2f", baseAmount)
    }

    fee := baseAmount * l.cfg.ConvenienceFeeRate
    if fee < l.cfg.ConvenienceFeeMin {
        fee = l.cfg.ConvenienceFeeMin
    }
    tax := (baseAmount + fee) * l.cfg.TaxRate

    now := l.now()
    p := &model.Payment{
        TransactionID:  "TXN_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
        SessionID:      sessionID,
        PayerID:        payerID,
        BaseAmount:     baseAmount,
        ConvenienceFee: fee,
        Tax:            tax,
        DiscountAmount: discount(promoCode, baseAmount),
        PromoCode:      promoCode,
        Method:         method,
        Status:         model.PaymentPending,
        CreatedAt:      now,
        UpdatedAt:      now,
    }
    p.CalculateTotal()

    stored, created, err := l.payments.CreatePayment(ctx, p)
    if err != nil {
        return nil, err
    }
    if !created {
        // A concurrent initiation won the insert; its record is the one.
        return stored, nil
    }
    log.Printf("payments: initiated %s for session %s (total=%.2f)", stored.TransactionID, sessionID, stored.TotalAmount)
    return stored, nil
}

func isNotFound(err error) bool {
    return errors.Is(err, storage.ErrPaymentNotFound)
}

// fail concludes a settlement this caller has claimed (the record is in
// Processing) as Failed: the gateway message is persisted, the status
// swapped Processing→Failed, and the session's holds released.  The swap
// only succeeds on a record still held by this claim, so a settlement
// completed elsewhere is never downgraded.
func (l *PaymentLedger) fail(ctx context.Context, p *model.Payment, message string) {
    p.GatewayResponse = message
    p.UpdatedAt = l.now()
    if err := l.payments.UpdatePayment(ctx, p); err != nil {
        log.Printf("payments: failed to persist failure of %s: %v", p.TransactionID, err)
    }
    swapped, err := l.payments.UpdatePaymentStatus(ctx, p.ID, model.PaymentProcessing, model.PaymentFailed)
    if err != nil {
        log.Printf("payments: failed to mark %s failed: %v", p.TransactionID, err)
        return
    }
    if !swapped {
        log.Printf("payments: %s left Processing before failure could be recorded", p.TransactionID)
        return
    }
    p.Status = model.PaymentFailed
    if err := l.locks.Release(ctx, p.SessionID); err != nil {
        log.Printf("payments: failed to release session %s: %v", p.SessionID, err)
    }
}

// unclaim returns a claimed record to Pending when settlement cannot
// proceed for a reason that is not a payment outcome, so the client can
// retry.
func (l *PaymentLedger) unclaim(ctx context.Context, p *model.Payment) {
    swapped, err := l.payments.UpdatePaymentStatus(ctx, p.ID, model.PaymentProcessing, model.PaymentPending)
    if err != nil || !swapped {
        log.Printf("payments: could not return %s to pending: %v", p.TransactionID, err)
        return
    }
    p.Status = model.PaymentPending
}

// Settle drives the payment through the gateway.  Idempotent on Success;
// only Pending records can be settled.  The settlement begins by swapping
// the record Pending→Processing, which exactly one of any set of
// concurrent callers wins; losers re-read and either observe the winner's
// Success or report the in-flight state.  When the backing lock session
// has expired the record fails and the holds are released.  On a gateway
// success the session is confirmed, the inventory marker written, the
// booking created and an event published; on a gateway failure or error
// the session is released.
func (l *PaymentLedger) Settle(ctx context.Context, transactionID string) (*model.Payment, error) {
    p, err := l.payments.PaymentByTransactionID(ctx, transactionID)
    if err != nil {
        return nil, err
    }
    if p.Status == model.PaymentSuccess {
        return p, nil
    }
    if p.Status != model.PaymentPending {
        return nil, fmt.Errorf("%w: cannot settle payment in status %s", ErrInvalidPaymentState, p.Status)
    }

    claimed, err := l.payments.UpdatePaymentStatus(ctx, p.ID, model.PaymentPending, model.PaymentProcessing)
    if err != nil {
        return nil, err
    }
    if !claimed {
        // Another caller holds or held the claim; report its outcome.
        p, err = l.payments.PaymentByID(ctx, p.ID)
        if err != nil {
            return nil, err
        }
        if p.Status == model.PaymentSuccess {
            return p, nil
        }
        return nil, fmt.Errorf("%w: cannot settle payment in status %s", ErrInvalidPaymentState, p.Status)
    }
    p.Status = model.PaymentProcessing

    remaining, err := l.locks.RemainingSeconds(ctx, p.SessionID)
    if err != nil {
        l.unclaim(ctx, p)
        return nil, err
    }
    if remaining <= 0 {
        l.fail(ctx, p, "Seat locks expired")
        return p, ErrLocksExpired
    }

    payer, err := l.users.UserByID(ctx, p.PayerID)
    if err != nil {
        l.unclaim(ctx, p)
        return nil, err
    }

    cctx, cancel := context.WithTimeout(ctx, l.cfg.ChargeTimeout)
    res, err := l.gw.Charge(cctx, p.TotalAmount, string(p.Method), payer.Email)
    cancel()
    if err != nil {
        // Timeouts and transport errors are settlement failures, never a
        // record stuck in Processing.
        l.fail(ctx, p, "Error: "+err.Error())
        return p, fmt.Errorf("payment processing failed: %w", err)
    }

    p.GatewayTransactionID = res.TransactionID
    p.GatewayResponse = res.Message
    if !res.Success {
        l.fail(ctx, p, res.Message)
        return p, nil
    }

    now := l.now()
    p.CompletedAt = &now
    p.UpdatedAt = now
    if err := l.payments.UpdatePayment(ctx, p); err != nil {
        return nil, err
    }
    swapped, err := l.payments.UpdatePaymentStatus(ctx, p.ID, model.PaymentProcessing, model.PaymentSuccess)
    if err != nil {
        return nil, err
    }
    if !swapped {
        return nil, fmt.Errorf("%w: settlement claim on %s was lost", ErrInvalidPaymentState, p.TransactionID)
    }
    p.Status = model.PaymentSuccess
    if err := l.locks.Confirm(ctx, p.SessionID); err != nil {
        log.Printf("payments: confirm of session %s failed: %v", p.SessionID, err)
    }
    l.recordBooking(ctx, p)
    log.Printf("payments: settled %s via gateway %s", p.TransactionID, p.GatewayTransactionID)
    return p, nil
}

// recordBooking creates the downstream booking for a settled payment,
// writes the confirmed marker to inventory and publishes the
// booking.confirmed event.  Failures here are logged, not surfaced: the
// payment has settled and the holds are confirmed, which is the state of
// record.
func (l *PaymentLedger) recordBooking(ctx context.Context, p *model.Payment) {
    holds, err := l.locks.SessionHolds(ctx, p.SessionID)
    if err != nil || len(holds) == 0 {
        log.Printf("payments: cannot load holds for booking of session %s: %v", p.SessionID, err)
        return
    }
    showID := holds[0].ShowID
    seats := make([]string, 0, len(holds))
    for _, h := range holds {
        seats = append(seats, h.SeatLabel)
    }
    if err := l.shows.MarkSeatsConfirmed(ctx, showID, seats); err != nil {
        log.Printf("payments: confirmed-marker write failed for show %d: %v", showID, err)
    }

    b := &model.Booking{
        SessionID:     p.SessionID,
        TransactionID: p.TransactionID,
        UserID:        p.PayerID,
        ShowID:        showID,
        Seats:         seats,
        TotalAmount:   p.TotalAmount,
        Status:        model.BookingConfirmed,
        CreatedAt:     l.now(),
    }
    if err := l.bookings.CreateBooking(ctx, b); err != nil {
        log.Printf("payments: booking create failed for %s: %v", p.TransactionID, err)
        return
    }

    if l.events == nil {
        return
    }
    title := ""
    startsAt := ""
    if show, err := l.shows.ShowByID(ctx, showID); err == nil {
        title = show.Title
        startsAt = show.StartsAt.UTC().Format(time.RFC3339)
    }
    ev := queue.BookingConfirmedEvent{
        BookingID:     b.ID,
        SessionID:     p.SessionID,
        TransactionID: p.TransactionID,
        UserID:        p.PayerID,
        ShowID:        showID,
        ShowTitle:     title,
        StartsAt:      startsAt,
        Seats:         seats,
        TotalAmount:   p.TotalAmount,
        ConfirmedAt:   l.now().Format(time.RFC3339),
    }
    if err := l.events.PublishBookingConfirmed(ctx, ev); err != nil {
        log.Printf("payments: booking.confirmed publish failed: %v", err)
    }
}

// Refund reverses a successful payment.  amount <= 0 refunds the full
// total.  Idempotent on Refunded; only Success records can be refunded.
// The refund claims the record Success→Processing so exactly one of any
// set of concurrent callers reaches the gateway and credits the wallet;
// losers re-read and either observe the winner's Refunded or report the
// in-flight state.  On gateway success the record moves to Refunded and
// the payer's wallet is credited; a gateway refusal surfaces
// ErrRefundFailed and returns the record to Success.
func (l *PaymentLedger) Refund(ctx context.Context, paymentID uint64, amount float64, reason string) (*model.Payment, error) {
    p, err := l.payments.PaymentByID(ctx, paymentID)
    if err != nil {
        return nil, err
    }
    if p.Status == model.PaymentRefunded {
        return p, nil
    }
    if p.Status != model.PaymentSuccess {
        return nil, fmt.Errorf("%w: cannot refund payment in status %s", ErrInvalidPaymentState, p.Status)
    }
    if amount <= 0 || amount > p.TotalAmount {
        amount = p.TotalAmount
    }

    claimed, err := l.payments.UpdatePaymentStatus(ctx, p.ID, model.PaymentSuccess, model.PaymentProcessing)
    if err != nil {
        return nil, err
    }
    if !claimed {
        p, err = l.payments.PaymentByID(ctx, paymentID)
        if err != nil {
            return nil, err
        }
        if p.Status == model.PaymentRefunded {
            return p, nil
        }
        return nil, fmt.Errorf("%w: cannot refund payment in status %s", ErrInvalidPaymentState, p.Status)
    }
    p.Status = model.PaymentProcessing

    cctx, cancel := context.WithTimeout(ctx, l.cfg.ChargeTimeout)
    res, err := l.gw.Refund(cctx, p.GatewayTransactionID, amount)
    cancel()
    if err != nil || !res.Success {
        if swapped, serr := l.payments.UpdatePaymentStatus(ctx, p.ID, model.PaymentProcessing, model.PaymentSuccess); serr != nil || !swapped {
            log.Printf("payments: could not restore %s after refund refusal: %v", p.TransactionID, serr)
        } else {
            p.Status = model.PaymentSuccess
        }
        if err != nil {
            return nil, fmt.Errorf("%w: %v", ErrRefundFailed, err)
        }
        return nil, ErrRefundFailed
    }

    now := l.now()
    p.RefundAmount = amount
    p.RefundedAt = &now
    p.RefundReason = reason
    p.UpdatedAt = now
    if err := l.payments.UpdatePayment(ctx, p); err != nil {
        return nil, err
    }
    swapped, err := l.payments.UpdatePaymentStatus(ctx, p.ID, model.PaymentProcessing, model.PaymentRefunded)
    if err != nil {
        return nil, err
    }
    if !swapped {
        return nil, fmt.Errorf("%w: refund claim on %s was lost", ErrInvalidPaymentState, p.TransactionID)
    }
    p.Status = model.PaymentRefunded
    if _, err := l.users.CreditWallet(ctx, p.PayerID, amount); err != nil {
        log.Printf("payments: wallet credit of %.2f to user %d failed: %v", amount, p.PayerID, err)
    }
    log.Printf("payments: refunded %.2f on %s (%s)", amount, p.TransactionID, reason)
    return p, nil
}

// PaymentByTransactionID returns the record for a status query.
func (l *PaymentLedger) PaymentByTransactionID(ctx context.Context, transactionID string) (*model.Payment, error) {
    return l.payments.PaymentByTransactionID(ctx, transactionID)
}

// PaymentBySessionID returns the record tied to a lock session.
func (l *PaymentLedger) PaymentBySessionID(ctx context.Context, sessionID string) (*model.Payment, error) {
    return l.payments.PaymentBySessionID(ctx, sessionID)
}

// StatusMessage maps a payment status to its client-facing display
// message.  Purely presentational.
func StatusMessage(p *model.Payment) string {
    switch p.Status {
    case model.PaymentSuccess:
        return "Payment completed successfully"
    case model.PaymentFailed:
        return "Payment failed: " + p.GatewayResponse
    case model.PaymentPending:
        return "Payment initiated. Please proceed to complete payment."
    case model.PaymentProcessing:
        return "Payment is being processed..."
    case model.PaymentRefunded:
        return "Payment refunded successfully"
    default:
        return "Payment status: " + string(p.Status)
    }
}
