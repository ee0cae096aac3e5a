package model

import "time"

// BookingStatus enumerates the states of a confirmed booking.
type BookingStatus string

const (
    BookingConfirmed BookingStatus = "CONFIRMED"
    BookingCancelled BookingStatus = "CANCELLED"
)

// Booking is the downstream confirmation record created when a payment
// reaches Success.  It references the session's confirmed seats and the
// payer; the core creates it but performs no further logic on it beyond
// cancellation.
//
// Fields:
//  ID            – primary key identifier.
//  SessionID     – lock session the booking was confirmed from.
//  TransactionID – payment transaction that settled the booking.
//  UserID        – payer who owns the booking.
//  ShowID        – show the seats belong to.
//  Seats         – confirmed seat labels.
//  TotalAmount   – amount charged for the booking.
//  Status        – CONFIRMED or CANCELLED.
//  CreatedAt     – when the booking was created (UTC).
type Booking struct {
    ID            uint64        `json:"booking_id"`
    SessionID     string        `json:"session_id"`
    TransactionID string        `json:"transaction_id"`
    UserID        uint64        `json:"user_id"`
    ShowID        uint64        `json:"show_id"`
    Seats         []string      `json:"seats"`
    TotalAmount   float64       `json:"total_amount"`
    Status        BookingStatus `json:"status"`
    CreatedAt     time.Time     `json:"created_at"`
}
