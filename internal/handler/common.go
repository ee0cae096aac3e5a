package handler // handler defines http handlers

import (
    "errors"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/showseat/booking/internal/service"
    "github.com/showseat/booking/internal/storage"
)

// getUserID extracts the user_id from echo.Context and converts it to uint64.
// The JWT middleware stores the claim value untyped, so all the encodings a
// token may carry are accepted.
func getUserID(c echo.Context) (uint64, error) {
    v := c.Get("user_id")
    switch t := v.(type) {
    case uint64:
        return t, nil
    case int:
        return uint64(t), nil
    case int64:
        return uint64(t), nil
    case float64:
        return uint64(t), nil
    case string:
        if n, err := strconv.ParseUint(t, 10, 64); err == nil {
            return n, nil
        }
    }
    return 0, errors.New("invalid user_id in context")
}

// httpError translates service errors into JSON responses with the status
// codes the API documents.  Unknown errors become a generic 500 so internal
// detail never leaks to clients.
func httpError(c echo.Context, err error) error {
    var conflict *storage.SeatConflictError
    switch {
    case errors.As(err, &conflict):
        return c.JSON(http.StatusConflict, echo.Map{
            "error":             "seats unavailable",
            "unavailable_seats": conflict.Seats,
        })
    case errors.Is(err, service.ErrShowNotFound),
        errors.Is(err, service.ErrSessionNotFound),
        errors.Is(err, service.ErrPaymentNotFound),
        errors.Is(err, service.ErrBookingNotFound),
        errors.Is(err, service.ErrUserNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
    case errors.Is(err, service.ErrSeatUnavailable),
        errors.Is(err, service.ErrInvalidPaymentState):
        return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
    case errors.Is(err, service.ErrTooManySeats),
        errors.Is(err, service.ErrUnknownSeat),
        errors.Is(err, service.ErrExtensionLimit):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    case errors.Is(err, service.ErrLocksExpired):
        return c.JSON(http.StatusGone, echo.Map{"error": err.Error()})
    case errors.Is(err, service.ErrCancellationWindowClosed):
        return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
    case errors.Is(err, service.ErrRefundFailed):
        return c.JSON(http.StatusBadGateway, echo.Map{"error": err.Error()})
    case errors.Is(err, service.ErrForbidden):
        return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
    }
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
