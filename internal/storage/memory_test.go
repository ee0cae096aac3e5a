package storage

import (
    "context"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/showseat/booking/internal/model"
)

func seededMemory() *MemoryStore {
    mem := NewMemoryStore()
    mem.AddShow(&model.Show{
        ID:       1,
        Title:    "Matinee",
        StartsAt: time.Date(2026, 4, 1, 15, 0, 0, 0, time.UTC),
        Seats:    []string{"A1", "A2", "A3", "B1", "B2"},
    })
    mem.AddUser(&model.User{ID: 1, Email: "alice@example.com", Name: "Alice"})
    return mem
}

func session(id string, seats []string, expires time.Time) *model.LockSession {
    return &model.LockSession{
        ID:        id,
        ShowID:    1,
        HolderID:  1,
        Seats:     seats,
        ExpiresAt: expires,
        CreatedAt: expires.Add(-10 * time.Minute),
    }
}

func TestCreateSessionRejectsActiveOverlap(t *testing.T) {
    mem := seededMemory()
    ctx := context.Background()
    now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

    require.NoError(t, mem.CreateSession(ctx, session("s1", []string{"A1", "A2"}, now.Add(10*time.Minute)), now))

    err := mem.CreateSession(ctx, session("s2", []string{"A2", "A3"}, now.Add(10*time.Minute)), now)
    var conflict *SeatConflictError
    require.ErrorAs(t, err, &conflict)
    assert.Equal(t, []string{"A2"}, conflict.Seats)

    // Nothing from the losing batch was inserted.
    holds, err := mem.SessionHolds(ctx, "s2")
    require.NoError(t, err)
    assert.Empty(t, holds)
}

func TestCreateSessionSweepsExpiredFirst(t *testing.T) {
    mem := seededMemory()
    ctx := context.Background()
    now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

    require.NoError(t, mem.CreateSession(ctx, session("s1", []string{"A1"}, now.Add(10*time.Minute)), now))

    // Past the first session's deadline the same seat is grantable even
    // though no sweep ran in between.
    later := now.Add(11 * time.Minute)
    require.NoError(t, mem.CreateSession(ctx, session("s2", []string{"A1"}, later.Add(10*time.Minute)), later))

    holds, err := mem.SessionHolds(ctx, "s1")
    require.NoError(t, err)
    require.Len(t, holds, 1)
    assert.Equal(t, model.HoldReleased, holds[0].Status)
}

func TestConcurrentCreateSessionSingleWinner(t *testing.T) {
    mem := seededMemory()
    ctx := context.Background()
    now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

    const attempts = 32
    var wg sync.WaitGroup
    errs := make([]error, attempts)
    for i := 0; i < attempts; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            id := "race-" + string(rune('a'+i%26)) + string(rune('a'+i/26))
            errs[i] = mem.CreateSession(ctx, session(id, []string{"B1"}, now.Add(10*time.Minute)), now)
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

func TestConfirmSessionRequiresHolds(t *testing.T) {
    mem := seededMemory()
    ctx := context.Background()
    now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

    _, err := mem.ConfirmSession(ctx, "missing")
    assert.ErrorIs(t, err, ErrSessionNotFound)

    require.NoError(t, mem.CreateSession(ctx, session("s1", []string{"A1"}, now.Add(10*time.Minute)), now))
    n, err := mem.ConfirmSession(ctx, "s1")
    require.NoError(t, err)
    assert.Equal(t, 1, n)

    // Confirmed holds stay confirmed through a release attempt.
    n, err = mem.ReleaseSession(ctx, "s1")
    require.NoError(t, err)
    assert.Zero(t, n)
    holds, err := mem.SessionHolds(ctx, "s1")
    require.NoError(t, err)
    assert.Equal(t, model.HoldConfirmed, holds[0].Status)
}

func TestCreatePaymentIdempotentPerSession(t *testing.T) {
    mem := seededMemory()
    ctx := context.Background()

    first, created, err := mem.CreatePayment(ctx, &model.Payment{
        TransactionID: "TXN_a",
        SessionID:     "s1",
        PayerID:       1,
        TotalAmount:   100,
        Status:        model.PaymentPending,
    })
    require.NoError(t, err)
    assert.True(t, created)
    assert.NotZero(t, first.ID)

    second, created, err := mem.CreatePayment(ctx, &model.Payment{
        TransactionID: "TXN_b",
        SessionID:     "s1",
        PayerID:       1,
        TotalAmount:   999,
        Status:        model.PaymentPending,
    })
    require.NoError(t, err)
    assert.False(t, created)
    assert.Equal(t, first.TransactionID, second.TransactionID)

    _, err = mem.PaymentByTransactionID(ctx, "TXN_b")
    assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestUpdatePaymentStatusSwapsAtomically(t *testing.T) {
    mem := seededMemory()
    ctx := context.Background()

    stored, _, err := mem.CreatePayment(ctx, &model.Payment{
        TransactionID: "TXN_a",
        SessionID:     "s1",
        PayerID:       1,
        Status:        model.PaymentPending,
    })
    require.NoError(t, err)

    swapped, err := mem.UpdatePaymentStatus(ctx, stored.ID, model.PaymentPending, model.PaymentProcessing)
    require.NoError(t, err)
    assert.True(t, swapped)

    // A stale caller still expecting Pending loses without side effects.
    swapped, err = mem.UpdatePaymentStatus(ctx, stored.ID, model.PaymentPending, model.PaymentFailed)
    require.NoError(t, err)
    assert.False(t, swapped)

    p, err := mem.PaymentByID(ctx, stored.ID)
    require.NoError(t, err)
    assert.Equal(t, model.PaymentProcessing, p.Status)

    _, err = mem.UpdatePaymentStatus(ctx, 999, model.PaymentPending, model.PaymentFailed)
    assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestConcurrentUpdatePaymentStatusSingleWinner(t *testing.T) {
    mem := seededMemory()
    ctx := context.Background()

    stored, _, err := mem.CreatePayment(ctx, &model.Payment{
        TransactionID: "TXN_a",
        SessionID:     "s1",
        PayerID:       1,
        Status:        model.PaymentPending,
    })
    require.NoError(t, err)

    const callers = 16
    var wg sync.WaitGroup
    wins := make([]bool, callers)
    for i := 0; i < callers; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            ok, err := mem.UpdatePaymentStatus(ctx, stored.ID, model.PaymentPending, model.PaymentProcessing)
            wins[i] = err == nil && ok
        }(i)
    }
    wg.Wait()

    winners := 0
    for _, won := range wins {
        if won {
            winners++
        }
    }
    assert.Equal(t, 1, winners)
}

func TestCreditWallet(t *testing.T) {
    mem := seededMemory()
    ctx := context.Background()

    balance, err := mem.CreditWallet(ctx, 1, 250)
    require.NoError(t, err)
    assert.InDelta(t, 250, balance, 1e-9)

    balance, err = mem.CreditWallet(ctx, 1, 100)
    require.NoError(t, err)
    assert.InDelta(t, 350, balance, 1e-9)

    _, err = mem.CreditWallet(ctx, 99, 10)
    assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMarkSeatsConfirmedUnknownShow(t *testing.T) {
    mem := seededMemory()
    err := mem.MarkSeatsConfirmed(context.Background(), 42, []string{"A1"})
    assert.ErrorIs(t, err, ErrShowNotFound)
}
