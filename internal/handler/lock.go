package handler

import (
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/showseat/booking/internal/service"
)

// LockHandler exposes the seat lock manager over HTTP.  All routes assume
// JWT authentication has already run so the holder identity comes from the
// request context, never the body.
type LockHandler struct {
    Locks *service.SeatLockManager
}

// NewLockHandler constructs a LockHandler.  The manager must be non-nil.
func NewLockHandler(locks *service.SeatLockManager) *LockHandler {
    if locks == nil {
        panic("nil manager passed to NewLockHandler")
    }
    return &LockHandler{Locks: locks}
}

// LockSeats handles POST /v1/shows/:id/lock.  The body carries a "seats"
// array of seat labels.  On success it returns 201 with the session ID and
// the lock deadline; conflicting seats come back as 409 with the losing
// labels listed.
func (h *LockHandler) LockSeats(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    showID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || showID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
    }
    var body struct {
        Seats []string `json:"seats"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if len(body.Seats) == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "seats is required"})
    }
    sessionID, expiresAt, err := h.Locks.Lock(c.Request().Context(), showID, userID, body.Seats)
    if err != nil {
        return httpError(c, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{
        "session_id": sessionID,
        "expires_at": expiresAt.UTC().Format(time.RFC3339),
    })
}

// ReleaseSession handles DELETE /v1/sessions/:id.  Releasing an unknown or
// already-released session succeeds, so retries are harmless.
func (h *LockHandler) ReleaseSession(c echo.Context) error {
    if _, err := getUserID(c); err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    sessionID := c.Param("id")
    if sessionID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
    }
    if err := h.Locks.Release(c.Request().Context(), sessionID); err != nil {
        return httpError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "session released"})
}

// LockedSeats handles GET /v1/shows/:id/locked-seats, listing the labels of
// all currently active holds for the show.
func (h *LockHandler) LockedSeats(c echo.Context) error {
    showID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || showID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
    }
    seats, err := h.Locks.ActiveSeatsForShow(c.Request().Context(), showID)
    if err != nil {
        return httpError(c, err)
    }
    if seats == nil {
        seats = []string{}
    }
    return c.JSON(http.StatusOK, echo.Map{"show_id": showID, "locked_seats": seats})
}

// CheckAvailability handles POST /v1/shows/:id/availability.  The body
// names the seats to check; the response maps each label to whether it is
// free to lock right now.
func (h *LockHandler) CheckAvailability(c echo.Context) error {
    showID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || showID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
    }
    var body struct {
        Seats []string `json:"seats"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if len(body.Seats) == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "seats is required"})
    }
    avail, err := h.Locks.CheckAvailability(c.Request().Context(), showID, body.Seats)
    if err != nil {
        return httpError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"show_id": showID, "availability": avail})
}

// Remaining handles GET /v1/sessions/:id/remaining.  Expired and unknown
// sessions both report zero seconds, so polling clients need no special
// casing near the deadline.
func (h *LockHandler) Remaining(c echo.Context) error {
    sessionID := c.Param("id")
    if sessionID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
    }
    secs, err := h.Locks.RemainingSeconds(c.Request().Context(), sessionID)
    if err != nil {
        return httpError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"session_id": sessionID, "remaining_seconds": secs})
}

// Extend handles POST /v1/sessions/:id/extend.  The body carries the
// number of minutes to add, capped per call by the lock configuration.
func (h *LockHandler) Extend(c echo.Context) error {
    if _, err := getUserID(c); err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    sessionID := c.Param("id")
    if sessionID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
    }
    var body struct {
        Minutes int `json:"minutes"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if err := h.Locks.Extend(c.Request().Context(), sessionID, body.Minutes); err != nil {
        return httpError(c, err)
    }
    secs, err := h.Locks.RemainingSeconds(c.Request().Context(), sessionID)
    if err != nil {
        return httpError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"session_id": sessionID, "remaining_seconds": secs})
}
