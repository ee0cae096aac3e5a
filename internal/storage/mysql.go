package storage

import (
    "context"
    "database/sql"
    "errors"
    "strings"
    "time"

    "github.com/go-sql-driver/mysql"

    "github.com/showseat/booking/internal/model"
)

// MySQLStore implements Store on top of a MySQL database.  Every mutating
// method runs inside a single transaction.  The seat_holds table carries a
// generated `active` column (1 when status='HELD', NULL otherwise) with a
// unique key over (show_id, seat_label, active); because MySQL unique
// indexes ignore NULLs, the constraint applies only to active holds and is
// the final arbiter between racing lock attempts.  All timestamps are
// stored and compared in UTC (the connection uses loc=UTC).
//
// Expected tables: seat_holds, payments (transaction_id and session_id
// unique), shows, show_seats, users, bookings, booking_seats.
type MySQLStore struct {
    db *sql.DB
}

// NewMySQLStore returns a MySQLStore bound to the provided database.
func NewMySQLStore(db *sql.DB) *MySQLStore { return &MySQLStore{db: db} }

// DB exposes the underlying handle for health checks.
func (s *MySQLStore) DB() *sql.DB { return s.db }

const duplicateKeyErr = 1062

func isDuplicateKey(err error) bool {
    var me *mysql.MySQLError
    return errors.As(err, &me) && me.Number == duplicateKeyErr
}

// withTx runs fn inside a transaction, rolling back unless fn succeeds.
func (s *MySQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    if err := fn(tx); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

func placeholders(n int) string {
    return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// CreateSession implements LockStore.  The expired-hold sweep, the
// conflict check (FOR UPDATE) and the bulk insert share one transaction;
// a duplicate-key race lost against a concurrent insert still surfaces as
// a SeatConflictError rather than corrupting state.
func (s *MySQLStore) CreateSession(ctx context.Context, session *model.LockSession, now time.Time) error {
    return s.withTx(ctx, func(tx *sql.Tx) error {
        // Sweep expired holds for this show so they never block new locks.
        _, err := tx.ExecContext(ctx,
            `UPDATE seat_holds SET status = 'RELEASED' WHERE show_id = ? AND status = 'HELD' AND expires_at <= ?`,
            session.ShowID, now.UTC(),
        )
        if err != nil {
            return err
        }

        q := `SELECT seat_label FROM seat_holds
              WHERE show_id = ? AND status = 'HELD' AND expires_at > ? AND seat_label IN (` +
            placeholders(len(session.Seats)) + `) FOR UPDATE`
        args := make([]interface{}, 0, len(session.Seats)+2)
        args = append(args, session.ShowID, now.UTC())
        for _, seat := range session.Seats {
            args = append(args, seat)
        }
        rows, err := tx.QueryContext(ctx, q, args...)
        if err != nil {
            return err
        }
        var conflicts []string
        for rows.Next() {
            var seat string
            if scanErr := rows.Scan(&seat); scanErr != nil {
                rows.Close()
                return scanErr
            }
            conflicts = append(conflicts, seat)
        }
        if err := rows.Close(); err != nil {
            return err
        }
        if len(conflicts) > 0 {
            return &SeatConflictError{Seats: conflicts}
        }

        ins := `INSERT INTO seat_holds (show_id, seat_label, holder_id, session_id, status, expires_at, created_at) VALUES `
        insArgs := make([]interface{}, 0, len(session.Seats)*7)
        for i, seat := range session.Seats {
            if i > 0 {
                ins += ","
            }
            ins += "(?, ?, ?, ?, 'HELD', ?, ?)"
            insArgs = append(insArgs, session.ShowID, seat, session.HolderID, session.ID, session.ExpiresAt.UTC(), now.UTC())
        }
        if _, err := tx.ExecContext(ctx, ins, insArgs...); err != nil {
            if isDuplicateKey(err) {
                return &SeatConflictError{Seats: session.Seats}
            }
            return err
        }
        return nil
    })
}

// SessionHolds implements LockStore.
func (s *MySQLStore) SessionHolds(ctx context.Context, sessionID string) ([]model.SeatHold, error) {
    const q = `SELECT id, show_id, seat_label, holder_id, session_id, status, expires_at, created_at
               FROM seat_holds WHERE session_id = ? ORDER BY seat_label`
    rows, err := s.db.QueryContext(ctx, q, sessionID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    holds := make([]model.SeatHold, 0)
    for rows.Next() {
        var h model.SeatHold
        if err := rows.Scan(&h.ID, &h.ShowID, &h.SeatLabel, &h.HolderID, &h.SessionID, &h.Status, &h.ExpiresAt, &h.CreatedAt); err != nil {
            return nil, err
        }
        holds = append(holds, h)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return holds, nil
}

// ReleaseSession implements LockStore.
func (s *MySQLStore) ReleaseSession(ctx context.Context, sessionID string) (int, error) {
    res, err := s.db.ExecContext(ctx,
        `UPDATE seat_holds SET status = 'RELEASED' WHERE session_id = ? AND status = 'HELD'`,
        sessionID,
    )
    if err != nil {
        return 0, err
    }
    n, err := res.RowsAffected()
    return int(n), err
}

// ConfirmSession implements LockStore.
func (s *MySQLStore) ConfirmSession(ctx context.Context, sessionID string) (int, error) {
    var n int
    err := s.withTx(ctx, func(tx *sql.Tx) error {
        var total int
        if err := tx.QueryRowContext(ctx,
            `SELECT COUNT(*) FROM seat_holds WHERE session_id = ?`, sessionID,
        ).Scan(&total); err != nil {
            return err
        }
        if total == 0 {
            return ErrSessionNotFound
        }
        res, err := tx.ExecContext(ctx,
            `UPDATE seat_holds SET status = 'CONFIRMED' WHERE session_id = ? AND status = 'HELD'`,
            sessionID,
        )
        if err != nil {
            return err
        }
        affected, err := res.RowsAffected()
        if err != nil {
            return err
        }
        n = int(affected)
        return nil
    })
    return n, err
}

// ExtendSession implements LockStore.
func (s *MySQLStore) ExtendSession(ctx context.Context, sessionID string, by time.Duration, now time.Time) (int, error) {
    res, err := s.db.ExecContext(ctx,
        `UPDATE seat_holds SET expires_at = DATE_ADD(expires_at, INTERVAL ? SECOND)
         WHERE session_id = ? AND status = 'HELD' AND expires_at > ?`,
        int64(by.Seconds()), sessionID, now.UTC(),
    )
    if err != nil {
        return 0, err
    }
    n, err := res.RowsAffected()
    return int(n), err
}

// ActiveSeats implements LockStore.
func (s *MySQLStore) ActiveSeats(ctx context.Context, showID uint64, now time.Time) ([]string, error) {
    const q = `SELECT seat_label FROM seat_holds
               WHERE show_id = ? AND status = 'HELD' AND expires_at > ? ORDER BY seat_label`
    rows, err := s.db.QueryContext(ctx, q, showID, now.UTC())
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    seats := make([]string, 0)
    for rows.Next() {
        var seat string
        if err := rows.Scan(&seat); err != nil {
            return nil, err
        }
        seats = append(seats, seat)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return seats, nil
}

// ReleaseExpired implements LockStore.
func (s *MySQLStore) ReleaseExpired(ctx context.Context, now time.Time) (int, error) {
    res, err := s.db.ExecContext(ctx,
        `UPDATE seat_holds SET status = 'RELEASED' WHERE status = 'HELD' AND expires_at <= ?`,
        now.UTC(),
    )
    if err != nil {
        return 0, err
    }
    n, err := res.RowsAffected()
    return int(n), err
}

// CreatePayment implements PaymentStore.  The unique key on session_id
// makes the insert idempotent per session: a racing duplicate insert loses
// with a duplicate-key error and reads back the winner's record.
func (s *MySQLStore) CreatePayment(ctx context.Context, p *model.Payment) (*model.Payment, bool, error) {
    const ins = `INSERT INTO payments
        (transaction_id, session_id, payer_id, base_amount, convenience_fee, tax, discount_amount,
         promo_code, total_amount, method, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
    res, err := s.db.ExecContext(ctx, ins,
        p.TransactionID, p.SessionID, p.PayerID, p.BaseAmount, p.ConvenienceFee, p.Tax, p.DiscountAmount,
        p.PromoCode, p.TotalAmount, p.Method, p.Status, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
    )
    if err != nil {
        if isDuplicateKey(err) {
            existing, lookupErr := s.PaymentBySessionID(ctx, p.SessionID)
            if lookupErr != nil {
                return nil, false, lookupErr
            }
            return existing, false, nil
        }
        return nil, false, err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return nil, false, err
    }
    cp := *p
    cp.ID = uint64(id)
    return &cp, true, nil
}

const paymentColumns = `id, transaction_id, session_id, payer_id, base_amount, convenience_fee, tax,
    discount_amount, promo_code, total_amount, method, status, gateway_txn_id, gateway_response,
    refund_amount, refunded_at, refund_reason, created_at, updated_at, completed_at`

func scanPayment(row *sql.Row) (*model.Payment, error) {
    var p model.Payment
    var promo, gatewayTxn, gatewayResp, refundReason sql.NullString
    var refundAmount sql.NullFloat64
    var refundedAt, completedAt sql.NullTime
    err := row.Scan(
        &p.ID, &p.TransactionID, &p.SessionID, &p.PayerID, &p.BaseAmount, &p.ConvenienceFee, &p.Tax,
        &p.DiscountAmount, &promo, &p.TotalAmount, &p.Method, &p.Status, &gatewayTxn, &gatewayResp,
        &refundAmount, &refundedAt, &refundReason, &p.CreatedAt, &p.UpdatedAt, &completedAt,
    )
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrPaymentNotFound
        }
        return nil, err
    }
    p.PromoCode = promo.String
    p.GatewayTransactionID = gatewayTxn.String
    p.GatewayResponse = gatewayResp.String
    p.RefundAmount = refundAmount.Float64
    p.RefundReason = refundReason.String
    if refundedAt.Valid {
        t := refundedAt.Time
        p.RefundedAt = &t
    }
    if completedAt.Valid {
        t := completedAt.Time
        p.CompletedAt = &t
    }
    return &p, nil
}

// PaymentByTransactionID implements PaymentStore.
func (s *MySQLStore) PaymentByTransactionID(ctx context.Context, transactionID string) (*model.Payment, error) {
    return scanPayment(s.db.QueryRowContext(ctx,
        `SELECT `+paymentColumns+` FROM payments WHERE transaction_id = ?`, transactionID))
}

// PaymentBySessionID implements PaymentStore.
func (s *MySQLStore) PaymentBySessionID(ctx context.Context, sessionID string) (*model.Payment, error) {
    return scanPayment(s.db.QueryRowContext(ctx,
        `SELECT `+paymentColumns+` FROM payments WHERE session_id = ?`, sessionID))
}

// PaymentByID implements PaymentStore.
func (s *MySQLStore) PaymentByID(ctx context.Context, id uint64) (*model.Payment, error) {
    return scanPayment(s.db.QueryRowContext(ctx,
        `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id))
}

// UpdatePayment implements PaymentStore.
func (s *MySQLStore) UpdatePayment(ctx context.Context, p *model.Payment) error {
    const q = `UPDATE payments SET
        base_amount = ?, convenience_fee = ?, tax = ?, discount_amount = ?, promo_code = ?,
        total_amount = ?, method = ?, status = ?, gateway_txn_id = ?, gateway_response = ?,
        refund_amount = ?, refunded_at = ?, refund_reason = ?, updated_at = ?, completed_at = ?
        WHERE id = ?`
    var refundedAt, completedAt interface{}
    if p.RefundedAt != nil {
        refundedAt = p.RefundedAt.UTC()
    }
    if p.CompletedAt != nil {
        completedAt = p.CompletedAt.UTC()
    }
    res, err := s.db.ExecContext(ctx, q,
        p.BaseAmount, p.ConvenienceFee, p.Tax, p.DiscountAmount, p.PromoCode,
        p.TotalAmount, p.Method, p.Status, p.GatewayTransactionID, p.GatewayResponse,
        p.RefundAmount, refundedAt, p.RefundReason, p.UpdatedAt.UTC(), completedAt,
        p.ID,
    )
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        // UPDATE with identical values still matches the row; only a
        // missing row yields zero affected rows with CLIENT_FOUND_ROWS
        // off, so verify existence before reporting not found.
        if _, lookupErr := s.PaymentByID(ctx, p.ID); lookupErr != nil {
            return lookupErr
        }
    }
    return nil
}

// UpdatePaymentStatus implements PaymentStore.  The status predicate in
// the WHERE clause makes the transition a single atomic statement; a
// concurrent caller that already moved the record off from matches no
// row and is told to re-read.
func (s *MySQLStore) UpdatePaymentStatus(ctx context.Context, id uint64, from, to model.PaymentStatus) (bool, error) {
    res, err := s.db.ExecContext(ctx,
        `UPDATE payments SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND status = ?`,
        to, id, from)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    if n == 1 {
        return true, nil
    }
    if _, lookupErr := s.PaymentByID(ctx, id); lookupErr != nil {
        return false, lookupErr
    }
    return false, nil
}

// ShowByID implements ShowStore.
func (s *MySQLStore) ShowByID(ctx context.Context, id uint64) (*model.Show, error) {
    var show model.Show
    err := s.db.QueryRowContext(ctx,
        `SELECT id, title, starts_at FROM shows WHERE id = ?`, id,
    ).Scan(&show.ID, &show.Title, &show.StartsAt)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrShowNotFound
        }
        return nil, err
    }
    rows, err := s.db.QueryContext(ctx,
        `SELECT seat_label FROM show_seats WHERE show_id = ? ORDER BY seat_label`, id)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    for rows.Next() {
        var seat string
        if err := rows.Scan(&seat); err != nil {
            return nil, err
        }
        show.Seats = append(show.Seats, seat)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return &show, nil
}

// MarkSeatsConfirmed implements ShowStore.
func (s *MySQLStore) MarkSeatsConfirmed(ctx context.Context, showID uint64, seats []string) error {
    if len(seats) == 0 {
        return nil
    }
    q := `UPDATE show_seats SET confirmed = 1 WHERE show_id = ? AND seat_label IN (` +
        placeholders(len(seats)) + `)`
    args := make([]interface{}, 0, len(seats)+1)
    args = append(args, showID)
    for _, seat := range seats {
        args = append(args, seat)
    }
    _, err := s.db.ExecContext(ctx, q, args...)
    return err
}

// UserByID implements UserStore.
func (s *MySQLStore) UserByID(ctx context.Context, id uint64) (*model.User, error) {
    var u model.User
    err := s.db.QueryRowContext(ctx,
        `SELECT id, email, name, wallet_balance, created_at FROM users WHERE id = ?`, id,
    ).Scan(&u.ID, &u.Email, &u.Name, &u.WalletBalance, &u.CreatedAt)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrUserNotFound
        }
        return nil, err
    }
    return &u, nil
}

// CreditWallet implements UserStore.  The increment and the read-back run
// in one transaction so concurrent credits never lose an update.
func (s *MySQLStore) CreditWallet(ctx context.Context, userID uint64, amount float64) (float64, error) {
    var balance float64
    err := s.withTx(ctx, func(tx *sql.Tx) error {
        res, err := tx.ExecContext(ctx,
            `UPDATE users SET wallet_balance = wallet_balance + ? WHERE id = ?`, amount, userID)
        if err != nil {
            return err
        }
        n, err := res.RowsAffected()
        if err != nil {
            return err
        }
        if n == 0 {
            return ErrUserNotFound
        }
        return tx.QueryRowContext(ctx,
            `SELECT wallet_balance FROM users WHERE id = ?`, userID).Scan(&balance)
    })
    return balance, err
}

// CreateBooking implements BookingStore.
func (s *MySQLStore) CreateBooking(ctx context.Context, b *model.Booking) error {
    return s.withTx(ctx, func(tx *sql.Tx) error {
        res, err := tx.ExecContext(ctx,
            `INSERT INTO bookings (session_id, transaction_id, user_id, show_id, total_amount, status, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
            b.SessionID, b.TransactionID, b.UserID, b.ShowID, b.TotalAmount, b.Status, b.CreatedAt.UTC(),
        )
        if err != nil {
            return err
        }
        id, err := res.LastInsertId()
        if err != nil {
            return err
        }
        b.ID = uint64(id)
        if len(b.Seats) == 0 {
            return nil
        }
        ins := `INSERT INTO booking_seats (booking_id, seat_label) VALUES `
        args := make([]interface{}, 0, len(b.Seats)*2)
        for i, seat := range b.Seats {
            if i > 0 {
                ins += ","
            }
            ins += "(?, ?)"
            args = append(args, b.ID, seat)
        }
        _, err = tx.ExecContext(ctx, ins, args...)
        return err
    })
}

func (s *MySQLStore) bookingSeats(ctx context.Context, bookingID uint64) ([]string, error) {
    rows, err := s.db.QueryContext(ctx,
        `SELECT seat_label FROM booking_seats WHERE booking_id = ? ORDER BY seat_label`, bookingID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    seats := make([]string, 0)
    for rows.Next() {
        var seat string
        if err := rows.Scan(&seat); err != nil {
            return nil, err
        }
        seats = append(seats, seat)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return seats, nil
}

// BookingByID implements BookingStore.
func (s *MySQLStore) BookingByID(ctx context.Context, id uint64) (*model.Booking, error) {
    var b model.Booking
    err := s.db.QueryRowContext(ctx,
        `SELECT id, session_id, transaction_id, user_id, show_id, total_amount, status, created_at
         FROM bookings WHERE id = ?`, id,
    ).Scan(&b.ID, &b.SessionID, &b.TransactionID, &b.UserID, &b.ShowID, &b.TotalAmount, &b.Status, &b.CreatedAt)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrBookingNotFound
        }
        return nil, err
    }
    seats, err := s.bookingSeats(ctx, b.ID)
    if err != nil {
        return nil, err
    }
    b.Seats = seats
    return &b, nil
}

// BookingsByUser implements BookingStore.  Newest first.
func (s *MySQLStore) BookingsByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
    rows, err := s.db.QueryContext(ctx,
        `SELECT id, session_id, transaction_id, user_id, show_id, total_amount, status, created_at
         FROM bookings WHERE user_id = ? ORDER BY created_at DESC`, userID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Booking, 0)
    for rows.Next() {
        var b model.Booking
        if err := rows.Scan(&b.ID, &b.SessionID, &b.TransactionID, &b.UserID, &b.ShowID, &b.TotalAmount, &b.Status, &b.CreatedAt); err != nil {
            return nil, err
        }
        out = append(out, b)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    for i := range out {
        seats, err := s.bookingSeats(ctx, out[i].ID)
        if err != nil {
            return nil, err
        }
        out[i].Seats = seats
    }
    return out, nil
}

// UpdateBooking implements BookingStore.  Only the status is mutable.
func (s *MySQLStore) UpdateBooking(ctx context.Context, b *model.Booking) error {
    res, err := s.db.ExecContext(ctx,
        `UPDATE bookings SET status = ? WHERE id = ?`, b.Status, b.ID)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        if _, lookupErr := s.BookingByID(ctx, b.ID); lookupErr != nil {
            return lookupErr
        }
    }
    return nil
}
