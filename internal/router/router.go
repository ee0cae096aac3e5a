package router

import (
    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/showseat/booking/internal/config"
    "github.com/showseat/booking/internal/handler"
    "github.com/showseat/booking/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only the health check.
func RegisterRoutes(e *echo.Echo) {
    e.GET("/healthz", handler.Health)
}

// RegisterLocks wires the seat locking endpoints under /v1.  All routes
// require a valid access token; the two read endpoints additionally sit
// behind the Redis response cache when one is configured, since lock
// views tolerate a short staleness window.
func RegisterLocks(e *echo.Echo, h *handler.LockHandler, jwtSecret string, cacheCfg config.CacheConfig, rdb *redis.Client) {
    g := e.Group("/v1", middleware.JWTAuth(jwtSecret))

    g.POST("/shows/:id/lock", h.LockSeats)
    g.POST("/shows/:id/availability", h.CheckAvailability)
    g.DELETE("/sessions/:id", h.ReleaseSession)
    g.GET("/sessions/:id/remaining", h.Remaining)
    g.POST("/sessions/:id/extend", h.Extend)

    if cacheCfg.Enabled && rdb != nil {
        cached := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.NewRedisCache(cacheCfg, rdb))
        cached.GET("/shows/:id/locked-seats", h.LockedSeats)
    } else {
        g.GET("/shows/:id/locked-seats", h.LockedSeats)
    }
}

// RegisterPayments wires payment initiation, settlement, status and refund
// endpoints under /v1/payments.  Every route requires authentication.
func RegisterPayments(e *echo.Echo, h *handler.PaymentHandler, jwtSecret string) {
    g := e.Group("/v1/payments", middleware.JWTAuth(jwtSecret))

    g.POST("/initiate", h.Initiate)
    g.POST("/:txn/settle", h.Settle)
    g.GET("/:txn", h.Status)
    g.POST("/:id/refund", h.Refund)
}

// RegisterBookings wires booking listing and the cancellation workflow
// under /v1/bookings.
func RegisterBookings(e *echo.Echo, h *handler.BookingHandler, jwtSecret string) {
    g := e.Group("/v1/bookings", middleware.JWTAuth(jwtSecret))

    g.GET("", h.List)
    g.GET("/:id", h.Get)
    g.GET("/:id/cancellation-policy", h.CancellationPolicy)
    g.POST("/:id/cancel", h.CancelBooking)
}
