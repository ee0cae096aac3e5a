package storage

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/showseat/booking/internal/model"
)

// MemoryStore is an in-process implementation of Store guarded by a single
// mutex.  Holding one lock across every operation makes each call atomic
// with respect to all others, which is exactly the isolation the seat-lock
// contract requires.  It backs the test suite and single-process
// deployments; shared deployments use the MySQL store.
type MemoryStore struct {
    mu sync.Mutex

    holds      map[uint64]*model.SeatHold
    bySession  map[string][]uint64
    nextHoldID uint64

    payments      map[uint64]*model.Payment
    paymentByTxn  map[string]uint64
    paymentBySess map[string]uint64
    nextPaymentID uint64

    shows     map[uint64]*model.Show
    confirmed map[uint64]map[string]bool

    users map[uint64]*model.User

    bookings      map[uint64]*model.Booking
    nextBookingID uint64
}

// NewMemoryStore returns an empty in-memory store.  Shows and users are
// seeded through AddShow and AddUser before serving traffic.
func NewMemoryStore() *MemoryStore {
    return &MemoryStore{
        holds:         make(map[uint64]*model.SeatHold),
        bySession:     make(map[string][]uint64),
        payments:      make(map[uint64]*model.Payment),
        paymentByTxn:  make(map[string]uint64),
        paymentBySess: make(map[string]uint64),
        shows:         make(map[uint64]*model.Show),
        confirmed:     make(map[uint64]map[string]bool),
        users:         make(map[uint64]*model.User),
        bookings:      make(map[uint64]*model.Booking),
    }
}

// AddShow seeds a catalog entry.  Existing entries are replaced.
func (s *MemoryStore) AddShow(show *model.Show) {
    s.mu.Lock()
    defer s.mu.Unlock()
    cp := *show
    cp.Seats = append([]string(nil), show.Seats...)
    s.shows[show.ID] = &cp
}

// AddUser seeds an identity entry.  Existing entries are replaced.
func (s *MemoryStore) AddUser(user *model.User) {
    s.mu.Lock()
    defer s.mu.Unlock()
    cp := *user
    s.users[user.ID] = &cp
}

// sweepLocked releases every expired HELD hold.  Callers must hold s.mu.
func (s *MemoryStore) sweepLocked(now time.Time) int {
    n := 0
    for _, h := range s.holds {
        if h.Status == model.HoldHeld && !now.Before(h.ExpiresAt) {
            h.Status = model.HoldReleased
            n++
        }
    }
    return n
}

// CreateSession implements LockStore.  Sweep, conflict check and insert
// all happen under the store mutex, so two racing lock calls for
// overlapping seats can never both succeed.
func (s *MemoryStore) CreateSession(_ context.Context, session *model.LockSession, now time.Time) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    s.sweepLocked(now)

    var conflicts []string
    for _, seat := range session.Seats {
        for _, h := range s.holds {
            if h.ShowID == session.ShowID && h.SeatLabel == seat && h.Active(now) {
                conflicts = append(conflicts, seat)
                break
            }
        }
    }
    if len(conflicts) > 0 {
        sort.Strings(conflicts)
        return &SeatConflictError{Seats: conflicts}
    }

    for _, seat := range session.Seats {
        s.nextHoldID++
        h := &model.SeatHold{
            ID:        s.nextHoldID,
            ShowID:    session.ShowID,
            SeatLabel: seat,
            HolderID:  session.HolderID,
            SessionID: session.ID,
            Status:    model.HoldHeld,
            ExpiresAt: session.ExpiresAt,
            CreatedAt: now,
        }
        s.holds[h.ID] = h
        s.bySession[session.ID] = append(s.bySession[session.ID], h.ID)
    }
    return nil
}

// SessionHolds implements LockStore.
func (s *MemoryStore) SessionHolds(_ context.Context, sessionID string) ([]model.SeatHold, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    ids := s.bySession[sessionID]
    out := make([]model.SeatHold, 0, len(ids))
    for _, id := range ids {
        out = append(out, *s.holds[id])
    }
    sort.Slice(out, func(i, j int) bool { return out[i].SeatLabel < out[j].SeatLabel })
    return out, nil
}

// ReleaseSession implements LockStore.
func (s *MemoryStore) ReleaseSession(_ context.Context, sessionID string) (int, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    n := 0
    for _, id := range s.bySession[sessionID] {
        if h := s.holds[id]; h.Status == model.HoldHeld {
            h.Status = model.HoldReleased
            n++
        }
    }
    return n, nil
}

// ConfirmSession implements LockStore.
func (s *MemoryStore) ConfirmSession(_ context.Context, sessionID string) (int, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    ids := s.bySession[sessionID]
    if len(ids) == 0 {
        return 0, ErrSessionNotFound
    }
    n := 0
    for _, id := range ids {
        if h := s.holds[id]; h.Status == model.HoldHeld {
            h.Status = model.HoldConfirmed
            n++
        }
    }
    return n, nil
}

// ExtendSession implements LockStore.
func (s *MemoryStore) ExtendSession(_ context.Context, sessionID string, by time.Duration, now time.Time) (int, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    n := 0
    for _, id := range s.bySession[sessionID] {
        if h := s.holds[id]; h.Active(now) {
            h.ExpiresAt = h.ExpiresAt.Add(by)
            n++
        }
    }
    return n, nil
}

// ActiveSeats implements LockStore.
func (s *MemoryStore) ActiveSeats(_ context.Context, showID uint64, now time.Time) ([]string, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    seats := make([]string, 0)
    for _, h := range s.holds {
        if h.ShowID == showID && h.Active(now) {
            seats = append(seats, h.SeatLabel)
        }
    }
    sort.Strings(seats)
    return seats, nil
}

// ReleaseExpired implements LockStore.
func (s *MemoryStore) ReleaseExpired(_ context.Context, now time.Time) (int, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.sweepLocked(now), nil
}

// CreatePayment implements PaymentStore.  The session index makes the
// insert upsert-like: a second caller for the same session observes the
// first caller's record instead of creating a competing one.
func (s *MemoryStore) CreatePayment(_ context.Context, p *model.Payment) (*model.Payment, bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    if id, ok := s.paymentBySess[p.SessionID]; ok {
        cp := *s.payments[id]
        return &cp, false, nil
    }
    s.nextPaymentID++
    cp := *p
    cp.ID = s.nextPaymentID
    s.payments[cp.ID] = &cp
    s.paymentByTxn[cp.TransactionID] = cp.ID
    s.paymentBySess[cp.SessionID] = cp.ID
    out := cp
    return &out, true, nil
}

// PaymentByTransactionID implements PaymentStore.
func (s *MemoryStore) PaymentByTransactionID(_ context.Context, transactionID string) (*model.Payment, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    id, ok := s.paymentByTxn[transactionID]
    if !ok {
        return nil, ErrPaymentNotFound
    }
    cp := *s.payments[id]
    return &cp, nil
}

// PaymentBySessionID implements PaymentStore.
func (s *MemoryStore) PaymentBySessionID(_ context.Context, sessionID string) (*model.Payment, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    id, ok := s.paymentBySess[sessionID]
    if !ok {
        return nil, ErrPaymentNotFound
    }
    cp := *s.payments[id]
    return &cp, nil
}

// PaymentByID implements PaymentStore.
func (s *MemoryStore) PaymentByID(_ context.Context, id uint64) (*model.Payment, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    p, ok := s.payments[id]
    if !ok {
        return nil, ErrPaymentNotFound
    }
    cp := *p
    return &cp, nil
}

// UpdatePayment implements PaymentStore.
func (s *MemoryStore) UpdatePayment(_ context.Context, p *model.Payment) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    if _, ok := s.payments[p.ID]; !ok {
        return ErrPaymentNotFound
    }
    cp := *p
    s.payments[p.ID] = &cp
    return nil
}

// UpdatePaymentStatus implements PaymentStore.  The check and the write
// happen under the store mutex, so exactly one of any set of concurrent
// callers observes the matching status and wins the transition.
func (s *MemoryStore) UpdatePaymentStatus(_ context.Context, id uint64, from, to model.PaymentStatus) (bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    p, ok := s.payments[id]
    if !ok {
        return false, ErrPaymentNotFound
    }
    if p.Status != from {
        return false, nil
    }
    p.Status = to
    return true, nil
}

// ShowByID implements ShowStore.
func (s *MemoryStore) ShowByID(_ context.Context, id uint64) (*model.Show, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    show, ok := s.shows[id]
    if !ok {
        return nil, ErrShowNotFound
    }
    cp := *show
    cp.Seats = append([]string(nil), show.Seats...)
    return &cp, nil
}

// MarkSeatsConfirmed implements ShowStore.
func (s *MemoryStore) MarkSeatsConfirmed(_ context.Context, showID uint64, seats []string) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    if _, ok := s.shows[showID]; !ok {
        return ErrShowNotFound
    }
    m := s.confirmed[showID]
    if m == nil {
        m = make(map[string]bool)
        s.confirmed[showID] = m
    }
    for _, seat := range seats {
        m[seat] = true
    }
    return nil
}

// ConfirmedSeats reports which seats of a show carry the confirmed marker.
// Used by tests to observe the inventory write.
func (s *MemoryStore) ConfirmedSeats(showID uint64) []string {
    s.mu.Lock()
    defer s.mu.Unlock()

    seats := make([]string, 0, len(s.confirmed[showID]))
    for seat := range s.confirmed[showID] {
        seats = append(seats, seat)
    }
    sort.Strings(seats)
    return seats
}

// UserByID implements UserStore.
func (s *MemoryStore) UserByID(_ context.Context, id uint64) (*model.User, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    u, ok := s.users[id]
    if !ok {
        return nil, ErrUserNotFound
    }
    cp := *u
    return &cp, nil
}

// CreditWallet implements UserStore.
func (s *MemoryStore) CreditWallet(_ context.Context, userID uint64, amount float64) (float64, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    u, ok := s.users[userID]
    if !ok {
        return 0, ErrUserNotFound
    }
    u.WalletBalance += amount
    return u.WalletBalance, nil
}

// CreateBooking implements BookingStore.
func (s *MemoryStore) CreateBooking(_ context.Context, b *model.Booking) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    s.nextBookingID++
    b.ID = s.nextBookingID
    cp := *b
    cp.Seats = append([]string(nil), b.Seats...)
    s.bookings[cp.ID] = &cp
    return nil
}

// BookingByID implements BookingStore.
func (s *MemoryStore) BookingByID(_ context.Context, id uint64) (*model.Booking, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    b, ok := s.bookings[id]
    if !ok {
        return nil, ErrBookingNotFound
    }
    cp := *b
    cp.Seats = append([]string(nil), b.Seats...)
    return &cp, nil
}

// BookingsByUser implements BookingStore.  Newest first.
func (s *MemoryStore) BookingsByUser(_ context.Context, userID uint64) ([]model.Booking, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    out := make([]model.Booking, 0)
    for _, b := range s.bookings {
        if b.UserID == userID {
            cp := *b
            cp.Seats = append([]string(nil), b.Seats...)
            out = append(out, cp)
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
    return out, nil
}

// UpdateBooking implements BookingStore.
func (s *MemoryStore) UpdateBooking(_ context.Context, b *model.Booking) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    if _, ok := s.bookings[b.ID]; !ok {
        return ErrBookingNotFound
    }
    cp := *b
    cp.Seats = append([]string(nil), b.Seats...)
    s.bookings[b.ID] = &cp
    return nil
}
