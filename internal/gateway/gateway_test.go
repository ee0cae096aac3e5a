package gateway

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestChargeAlwaysApproves(t *testing.T) {
    sim := NewSimulator(100, 0, 0)
    for i := 0; i < 20; i++ {
        res, err := sim.Charge(context.Background(), 500, "UPI", "alice@example.com")
        require.NoError(t, err)
        assert.True(t, res.Success)
        assert.Equal(t, "Payment processed successfully", res.Message)
        assert.Len(t, res.TransactionID, 20)
        assert.Contains(t, res.TransactionID, "TXN_")
        assert.InDelta(t, 500, res.Amount, 1e-9)
    }
}

func TestChargeAlwaysDeclines(t *testing.T) {
    sim := NewSimulator(0, 0, 0)
    for i := 0; i < 20; i++ {
        res, err := sim.Charge(context.Background(), 500, "UPI", "alice@example.com")
        require.NoError(t, err)
        assert.False(t, res.Success)
        assert.Contains(t, failureReasons, res.Message)
    }
}

func TestChargeRespectsContext(t *testing.T) {
    sim := NewSimulator(100, time.Second, time.Second)
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
    defer cancel()

    _, err := sim.Charge(ctx, 500, "UPI", "alice@example.com")
    assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRefundAlwaysSucceeds(t *testing.T) {
    sim := NewSimulator(0, 0, 0)
    res, err := sim.Refund(context.Background(), "TXN_abc", 950)
    require.NoError(t, err)
    assert.True(t, res.Success)
    assert.Contains(t, res.RefundID, "REF_")
    assert.Equal(t, "TXN_abc", res.OriginalTransactionID)
    assert.InDelta(t, 950, res.Amount, 1e-9)
}

func TestSuccessPercentClamped(t *testing.T) {
    assert.Equal(t, 100, NewSimulator(150, 0, 0).successPercent)
    assert.Equal(t, 0, NewSimulator(-5, 0, 0).successPercent)
}

func TestSeedReproducesOutcomes(t *testing.T) {
    run := func() []bool {
        sim := NewSimulator(50, 0, 0)
        sim.Seed(42)
        out := make([]bool, 10)
        for i := range out {
            res, err := sim.Charge(context.Background(), 100, "UPI", "x")
            require.NoError(t, err)
            out[i] = res.Success
        }
        return out
    }
    assert.Equal(t, run(), run())
}
