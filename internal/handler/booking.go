package handler

import (
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/showseat/booking/internal/service"
)

// BookingHandler exposes confirmed bookings and the cancellation workflow.
type BookingHandler struct {
    Cancel *service.CancellationService
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(cancel *service.CancellationService) *BookingHandler {
    if cancel == nil {
        panic("nil service passed to NewBookingHandler")
    }
    return &BookingHandler{Cancel: cancel}
}

// List handles GET /v1/bookings, returning the caller's bookings.
func (h *BookingHandler) List(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    bookings, err := h.Cancel.BookingsForUser(c.Request().Context(), userID)
    if err != nil {
        return httpError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"bookings": bookings})
}

// Get handles GET /v1/bookings/:id.  Only the owner may read a booking.
func (h *BookingHandler) Get(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    bookingID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || bookingID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    b, err := h.Cancel.BookingByID(c.Request().Context(), bookingID, userID)
    if err != nil {
        return httpError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"booking": b})
}

// CancellationPolicy handles GET /v1/bookings/:id/cancellation-policy,
// previewing the refund without cancelling.
func (h *BookingHandler) CancellationPolicy(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    bookingID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || bookingID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    q, err := h.Cancel.PolicyFor(c.Request().Context(), bookingID, userID)
    if err != nil {
        return httpError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"booking_id": bookingID, "policy": q})
}

// CancelBooking handles POST /v1/bookings/:id/cancel.  On success the
// response carries the cancelled booking and the refund applied.
func (h *BookingHandler) CancelBooking(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    bookingID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || bookingID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    b, q, err := h.Cancel.Cancel(c.Request().Context(), bookingID, userID)
    if err != nil {
        return httpError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"booking": b, "refund": q})
}
