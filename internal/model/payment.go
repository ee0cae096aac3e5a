package model

import "time"

// PaymentStatus enumerates the lifecycle states of a payment record.
// Pending and Processing are transient; Failed, Cancelled and Refunded are
// terminal; Success is terminal except for the transition to Refunded.
type PaymentStatus string

const (
    PaymentPending    PaymentStatus = "PENDING"
    PaymentProcessing PaymentStatus = "PROCESSING"
    PaymentSuccess    PaymentStatus = "SUCCESS"
    PaymentFailed     PaymentStatus = "FAILED"
    PaymentRefunded   PaymentStatus = "REFUNDED"
    PaymentCancelled  PaymentStatus = "CANCELLED"
)

// PaymentMethod enumerates the supported means of payment.  The core does
// not interpret the method beyond passing it to the settlement gateway.
type PaymentMethod string

const (
    MethodCreditCard PaymentMethod = "CREDIT_CARD"
    MethodDebitCard  PaymentMethod = "DEBIT_CARD"
    MethodUPI        PaymentMethod = "UPI"
    MethodNetBanking PaymentMethod = "NET_BANKING"
    MethodWallet     PaymentMethod = "WALLET"
)

// Payment tracks one checkout's monetary settlement.  Exactly one payment
// record exists per lock session; the transaction ID doubles as the
// idempotency key so a repeated settlement request never double-charges.
//
// Fields:
//  ID                   – primary key identifier.
//  TransactionID        – unique idempotency key ("TXN_..." prefix).
//  SessionID            – lock session this payment settles (one-to-one).
//  PayerID              – user being charged.
//  BaseAmount           – ticket price without fees.
//  ConvenienceFee       – platform fee applied on top of the base amount.
//  Tax                  – tax computed over base plus fee.
//  DiscountAmount       – promo-code discount subtracted from the total.
//  PromoCode            – promo code applied at initiation, if any.
//  TotalAmount          – base + fee + tax − discount; kept in sync via
//                         CalculateTotal whenever any component changes.
//  Method               – payment method forwarded to the gateway.
//  Status               – current lifecycle state.
//  GatewayTransactionID – correlation id returned by the gateway.
//  GatewayResponse      – human-readable gateway message, also used for
//                         failure reasons.
//  RefundAmount/RefundedAt/RefundReason – populated once refunded.
//  CreatedAt/UpdatedAt/CompletedAt      – lifecycle timestamps (UTC).
type Payment struct {
    ID                   uint64        `json:"payment_id"`
    TransactionID        string        `json:"transaction_id"`
    SessionID            string        `json:"session_id"`
    PayerID              uint64        `json:"payer_id"`
    BaseAmount           float64       `json:"base_amount"`
    ConvenienceFee       float64       `json:"convenience_fee"`
    Tax                  float64       `json:"tax"`
    DiscountAmount       float64       `json:"discount_amount"`
    PromoCode            string        `json:"promo_code,omitempty"`
    TotalAmount          float64       `json:"total_amount"`
    Method               PaymentMethod `json:"payment_method"`
    Status               PaymentStatus `json:"status"`
    GatewayTransactionID string        `json:"gateway_transaction_id,omitempty"`
    GatewayResponse      string        `json:"gateway_response,omitempty"`
    RefundAmount         float64       `json:"refund_amount,omitempty"`
    RefundedAt           *time.Time    `json:"refunded_at,omitempty"`
    RefundReason         string        `json:"refund_reason,omitempty"`
    CreatedAt            time.Time     `json:"created_at"`
    UpdatedAt            time.Time     `json:"updated_at"`
    CompletedAt          *time.Time    `json:"completed_at,omitempty"`
}

// CalculateTotal recomputes the total from its components.  Callers must
// invoke it after mutating any of base, fee, tax or discount so the stored
// total never drifts out of sync.
func (p *Payment) CalculateTotal() {
    p.TotalAmount = p.BaseAmount + p.ConvenienceFee + p.Tax - p.DiscountAmount
}

// Terminal reports whether the payment can no longer change state, apart
// from the Success→Refunded transition driven by the refund workflow.
func (p *Payment) Terminal() bool {
    switch p.Status {
    case PaymentFailed, PaymentRefunded, PaymentCancelled:
        return true
    }
    return false
}
