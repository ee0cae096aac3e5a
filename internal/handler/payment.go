package handler

import (
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/showseat/booking/internal/model"
    "github.com/showseat/booking/internal/service"
)

// PaymentHandler exposes the payment ledger over HTTP: initiation,
// settlement, status queries and refunds.
type PaymentHandler struct {
    Ledger *service.PaymentLedger
}

// NewPaymentHandler constructs a PaymentHandler.  The ledger must be
// non-nil.
func NewPaymentHandler(ledger *service.PaymentLedger) *PaymentHandler {
    if ledger == nil {
        panic("nil ledger passed to NewPaymentHandler")
    }
    return &PaymentHandler{Ledger: ledger}
}

// paymentView shapes the ledger record for API responses, adding the
// display message derived from the status.
func paymentView(p *model.Payment) echo.Map {
    return echo.Map{
        "payment": p,
        "message": service.StatusMessage(p),
    }
}

// Initiate handles POST /v1/payments/initiate.  The body carries the lock
// session, base amount, payment method and an optional promo code.
// Repeating the call for the same session returns the existing record
// unchanged.
func (h *PaymentHandler) Initiate(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body struct {
        SessionID  string  `json:"session_id"`
        BaseAmount float64 `json:"base_amount"`
        Method     string  `json:"payment_method"`
        PromoCode  string  `json:"promo_code"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if body.SessionID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "session_id is required"})
    }
    if body.BaseAmount <= 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "base_amount must be positive"})
    }
    method := model.PaymentMethod(body.Method)
    if method == "" {
        method = model.MethodCreditCard
    }
    p, err := h.Ledger.Initiate(c.Request().Context(), body.SessionID, userID, body.BaseAmount, method, body.PromoCode)
    if err != nil {
        return httpError(c, err)
    }
    return c.JSON(http.StatusCreated, paymentView(p))
}

// Settle handles POST /v1/payments/:txn/settle, driving the payment
// through the gateway.  A settlement that fails because the seat locks
// expired reports 410 alongside the failed record's transaction id.
func (h *PaymentHandler) Settle(c echo.Context) error {
    if _, err := getUserID(c); err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    txn := c.Param("txn")
    if txn == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid transaction id"})
    }
    p, err := h.Ledger.Settle(c.Request().Context(), txn)
    if err != nil {
        return httpError(c, err)
    }
    return c.JSON(http.StatusOK, paymentView(p))
}

// Status handles GET /v1/payments/:txn.
func (h *PaymentHandler) Status(c echo.Context) error {
    txn := c.Param("txn")
    if txn == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid transaction id"})
    }
    p, err := h.Ledger.PaymentByTransactionID(c.Request().Context(), txn)
    if err != nil {
        return httpError(c, err)
    }
    return c.JSON(http.StatusOK, paymentView(p))
}

// Refund handles POST /v1/payments/:id/refund.  An empty or non-positive
// amount refunds the full total.  Refunding an already-refunded payment
// returns the record unchanged.
func (h *PaymentHandler) Refund(c echo.Context) error {
    if _, err := getUserID(c); err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    paymentID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || paymentID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payment id"})
    }
    var body struct {
        Amount float64 `json:"amount"`
        Reason string  `json:"reason"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if body.Reason == "" {
        body.Reason = "Customer requested refund"
    }
    p, err := h.Ledger.Refund(c.Request().Context(), paymentID, body.Amount, body.Reason)
    if err != nil {
        return httpError(c, err)
    }
    return c.JSON(http.StatusOK, paymentView(p))
}
