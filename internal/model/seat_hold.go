package model

import "time"

// HoldStatus enumerates the lifecycle states of a seat hold.  Transitions
// are monotonic: a hold starts in HoldHeld and moves exactly once to
// HoldReleased or HoldConfirmed, after which it never changes again.
type HoldStatus string

const (
    HoldHeld      HoldStatus = "HELD"
    HoldReleased  HoldStatus = "RELEASED"
    HoldConfirmed HoldStatus = "CONFIRMED"
)

// SeatHold represents an exclusive, time-bounded claim on one seat of one
// show.  Holds prevent concurrent checkouts from grabbing the same seat
// while a customer completes payment.  At most one hold per (show, seat)
// pair may be in HoldHeld state at any instant; expired holds no longer
// count as active even before they are swept to HoldReleased.
//
// Fields:
//  ID        – primary key identifier.
//  ShowID    – show to which the held seat belongs.
//  SeatLabel – seat being held (e.g. "A1").
//  HolderID  – user who owns the hold.
//  SessionID – lock session this hold was created under.
//  Status    – current lifecycle state.
//  ExpiresAt – shared session deadline; the hold is dead past this instant.
//  CreatedAt – when the hold was created.
type SeatHold struct {
    ID        uint64     `json:"id"`
    ShowID    uint64     `json:"show_id"`
    SeatLabel string     `json:"seat_label"`
    HolderID  uint64     `json:"holder_id"`
    SessionID string     `json:"session_id"`
    Status    HoldStatus `json:"status"`
    ExpiresAt time.Time  `json:"expires_at"`
    CreatedAt time.Time  `json:"created_at"`
}

// Active reports whether the hold still blocks the seat at the given
// instant: it must be in HoldHeld state and its deadline must not have
// passed.  All comparisons are performed in UTC.
func (h *SeatHold) Active(now time.Time) bool {
    return h.Status == HoldHeld && now.Before(h.ExpiresAt)
}

// LockSession groups the holds created together by one lock request.  All
// holds under a session share the holder, show and expiry deadline and
// transition together; a session is never left partially held.
//
// Fields:
//  ID        – opaque session token returned to the client.
//  ShowID    – show the seats belong to.
//  HolderID  – user who created the session.
//  Seats     – seat labels locked under this session.
//  ExpiresAt – shared deadline for every hold in the session.
//  CreatedAt – when the session was created.
type LockSession struct {
    ID        string    `json:"session_id"`
    ShowID    uint64    `json:"show_id"`
    HolderID  uint64    `json:"holder_id"`
    Seats     []string  `json:"seats"`
    ExpiresAt time.Time `json:"expires_at"`
    CreatedAt time.Time `json:"created_at"`
}
