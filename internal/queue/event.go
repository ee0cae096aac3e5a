// Package queue defines the message payloads exchanged over the broker
// and the publisher/consumer for the booking.confirmed queue.
package queue

// BookingConfirmedEvent is published when a settlement succeeds and the
// session's holds are confirmed.  It carries enough information for
// downstream consumers to log, notify or trigger analytics without
// querying the primary store.
type BookingConfirmedEvent struct {
    BookingID     uint64   `json:"booking_id"`
    SessionID     string   `json:"session_id"`
    TransactionID string   `json:"transaction_id"`
    UserID        uint64   `json:"user_id"`
    ShowID        uint64   `json:"show_id"`
    ShowTitle     string   `json:"show_title"`
    StartsAt      string   `json:"starts_at"`
    Seats         []string `json:"seats"`
    TotalAmount   float64  `json:"total_amount"`
    ConfirmedAt   string   `json:"confirmed_at"`
}
