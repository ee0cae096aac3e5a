package main // Entry point package

import (
    "context"
    "log"
    "os"
    "os/signal"
    "strconv"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    "github.com/labstack/echo/v4"

    "github.com/showseat/booking/internal/config"
    "github.com/showseat/booking/internal/database"
    "github.com/showseat/booking/internal/gateway"
    "github.com/showseat/booking/internal/handler"
    "github.com/showseat/booking/internal/middleware"
    "github.com/showseat/booking/internal/model"
    "github.com/showseat/booking/internal/queue"
    "github.com/showseat/booking/internal/router"
    "github.com/showseat/booking/internal/service"
    "github.com/showseat/booking/internal/storage"
)

// openStore selects the persistence backend from configuration.  The
// memory backend ships with a small demo catalog so the API is usable
// straight after boot.
func openStore(cfg config.Config) (storage.Store, error) {
    if cfg.StoreBackend == "mysql" {
        db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
        if err != nil {
            return nil, err
        }
        return storage.NewMySQLStore(db), nil
    }
    mem := storage.NewMemoryStore()
    seedDemo(mem)
    return mem, nil
}

// seedDemo loads a demo show and two users into the in-memory store.
func seedDemo(mem *storage.MemoryStore) {
    seats := make([]string, 0, 50)
    for _, row := range []string{"A", "B", "C", "D", "E"} {
        for n := 1; n <= 10; n++ {
            seats = append(seats, row+strconv.Itoa(n))
        }
    }
    mem.AddShow(&model.Show{
        ID:       1,
        Title:    "Evening Premiere",
        StartsAt: time.Now().UTC().Add(48 * time.Hour),
        Seats:    seats,
    })
    mem.AddUser(&model.User{ID: 1, Email: "alice@example.com", Name: "Alice"})
    mem.AddUser(&model.User{ID: 2, Email: "bob@example.com", Name: "Bob"})
}

func main() {
    // .env is optional; real deployments set the environment directly.
    _ = godotenv.Load()
    cfg := config.Load()

    store, err := openStore(cfg)
    if err != nil {
        log.Fatalf("storage init failed: %v", err)
    }

    locks := service.NewSeatLockManager(store, store, store, service.LockConfig{
        TTL:          time.Duration(cfg.LockTTLMin) * time.Minute,
        MaxSeats:     cfg.MaxSeats,
        MaxExtension: time.Duration(cfg.MaxExtendMin) * time.Minute,
    })

    gw := gateway.NewSimulator(cfg.GatewaySuccessPercent, 100*time.Millisecond, 500*time.Millisecond)
    ledger := service.NewPaymentLedger(store, store, store, store, locks, gw, queue.NewPublisher(), service.PaymentConfig{
        ConvenienceFeeRate: cfg.FeeRate,
        ConvenienceFeeMin:  cfg.FeeFloor,
        TaxRate:            cfg.TaxRate,
        ChargeTimeout:      time.Duration(cfg.GatewayTimeoutSec) * time.Second,
    })
    cancelSvc := service.NewCancellationService(store, store, store, ledger, service.NewRefundPolicy())

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    reaper := service.NewReaper(store, time.Duration(cfg.ReapIntervalMin)*time.Minute)
    go reaper.Run(ctx)

    // The consumer writes confirmed-booking audit lines; the service runs
    // fine without a broker, so failures only log.
    go func() {
        if err := queue.StartBookingConsumer(); err != nil {
            log.Printf("booking consumer stopped: %v", err)
        }
    }()

    e := echo.New()
    e.HideBanner = true

    rdb := config.NewRedisClient()
    if rdb != nil {
        rlCfg := config.LoadRateLimitConfig()
        if rlCfg.Enabled {
            e.Use(middleware.NewTokenBucket(rlCfg, rdb))
        }
    }

    router.RegisterRoutes(e)
    lockHandler := handler.NewLockHandler(locks)
    router.RegisterLocks(e, lockHandler, cfg.JWTSecret, config.LoadCacheConfig(), rdb)
    router.RegisterPayments(e, handler.NewPaymentHandler(ledger), cfg.JWTSecret)
    router.RegisterBookings(e, handler.NewBookingHandler(cancelSvc), cfg.JWTSecret)

    addr := ":" + cfg.Port
    log.Printf("listening on %s (env=%s store=%s)", addr, cfg.Env, cfg.StoreBackend)

    go func() {
        <-ctx.Done()
        shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        _ = e.Shutdown(shCtx)
    }()

    if err := e.Start(addr); err != nil {
        log.Println(err)
    }
}
