// Package gateway defines the settlement collaborator the payment ledger
// charges and refunds through, plus a stand-in simulator used in place of
// a real provider.  The ledger only depends on the Gateway interface, so
// a production integration can be dropped in without touching the core.
package gateway

import (
    "context"
    "math/rand"
    "strings"
    "sync"
    "time"

    "github.com/google/uuid"
)

// ChargeResult is the gateway's answer to a charge attempt.
type ChargeResult struct {
    Success       bool    `json:"success"`
    TransactionID string  `json:"transaction_id"`
    Message       string  `json:"message"`
    Amount        float64 `json:"amount"`
}

// RefundResult is the gateway's answer to a refund attempt.
type RefundResult struct {
    Success               bool    `json:"success"`
    RefundID              string  `json:"refund_id"`
    OriginalTransactionID string  `json:"original_transaction_id"`
    Amount                float64 `json:"amount"`
    Message               string  `json:"message"`
}

// Gateway is the settlement collaborator.  Both calls must respect the
// context deadline; the ledger wraps every call in a bounded timeout and
// treats expiry as settlement failure.
type Gateway interface {
    Charge(ctx context.Context, amount float64, method string, payerRef string) (ChargeResult, error)
    Refund(ctx context.Context, gatewayTransactionID string, amount float64) (RefundResult, error)
}

var failureReasons = []string{
    "Insufficient funds",
    "Card declined",
    "Transaction timeout",
    "Invalid card details",
}

// Simulator is a stand-in gateway: it sleeps for a short simulated
// processing delay, then succeeds with a configurable probability.
// Refunds always succeed.  The zero delay configuration makes it usable
// in tests; for deterministic outcomes tests seed the random source.
type Simulator struct {
    mu             sync.Mutex
    rng            *rand.Rand
    successPercent int
    minDelay       time.Duration
    maxDelay       time.Duration
}

// NewSimulator builds a simulator that succeeds successPercent of the
// time (clamped to 0..100) and sleeps between minDelay and maxDelay per
// charge.
func NewSimulator(successPercent int, minDelay, maxDelay time.Duration) *Simulator {
    if successPercent < 0 {
        successPercent = 0
    }
    if successPercent > 100 {
        successPercent = 100
    }
    if maxDelay < minDelay {
        maxDelay = minDelay
    }
    return &Simulator{
        rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
        successPercent: successPercent,
        minDelay:       minDelay,
        maxDelay:       maxDelay,
    }
}

// Seed replaces the random source, making outcomes reproducible.
func (s *Simulator) Seed(seed int64) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.rng = rand.New(rand.NewSource(seed))
}

func (s *Simulator) delay() time.Duration {
    s.mu.Lock()
    defer s.mu.Unlock()
    span := s.maxDelay - s.minDelay
    if span <= 0 {
        return s.minDelay
    }
    return s.minDelay + time.Duration(s.rng.Int63n(int64(span)))
}

func (s *Simulator) roll() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.rng.Intn(100)
}

func (s *Simulator) pickFailure() string {
    s.mu.Lock()
    defer s.mu.Unlock()
    return failureReasons[s.rng.Intn(len(failureReasons))]
}

// sleep waits for d or until the context is cancelled, whichever first.
func sleep(ctx context.Context, d time.Duration) error {
    if d <= 0 {
        return ctx.Err()
    }
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-t.C:
        return nil
    }
}

func newRef(prefix string) string {
    raw := strings.ReplaceAll(uuid.NewString(), "-", "")
    return prefix + raw[:16]
}

// Charge implements Gateway.
func (s *Simulator) Charge(ctx context.Context, amount float64, method string, payerRef string) (ChargeResult, error) {
    _ = method
    _ = payerRef
    if err := sleep(ctx, s.delay()); err != nil {
        return ChargeResult{}, err
    }
    res := ChargeResult{
        TransactionID: newRef("TXN_"),
        Amount:        amount,
    }
    if s.roll() < s.successPercent {
        res.Success = true
        res.Message = "Payment processed successfully"
    } else {
        res.Message = s.pickFailure()
    }
    return res, nil
}

// Refund implements Gateway.
func (s *Simulator) Refund(ctx context.Context, gatewayTransactionID string, amount float64) (RefundResult, error) {
    if err := sleep(ctx, s.delay()/2); err != nil {
        return RefundResult{}, err
    }
    return RefundResult{
        Success:               true,
        RefundID:              newRef("REF_"),
        OriginalTransactionID: gatewayTransactionID,
        Amount:                amount,
        Message:               "Refund processed successfully",
    }, nil
}
