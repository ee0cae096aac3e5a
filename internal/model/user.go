package model

import "time"

// User is the core's view of an already-authenticated customer as
// provided by the identity collaborator.  Authentication and session
// issuance happen outside the core; here a user is an opaque holder/payer
// identity plus the wallet balance refunds are credited to.
//
// Fields:
//  ID            – primary key identifier.
//  Email         – used as the payer reference passed to the gateway.
//  Name          – display name.
//  WalletBalance – credited by the refund workflow.
//  CreatedAt     – timestamp of creation (UTC).
type User struct {
    ID            uint64    `json:"user_id"`
    Email         string    `json:"email"`
    Name          string    `json:"name"`
    WalletBalance float64   `json:"wallet_balance"`
    CreatedAt     time.Time `json:"created_at"`
}
