package config // package config loads application configuration from environment variables

import (
    "log"
    "os"
    "strconv"
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.  Database coordinates are required only when
// STORE_BACKEND is "mysql"; the in-memory backend needs none of them.
type Config struct {
    Env          string // application environment (e.g. "dev", "prod")
    Port         string // HTTP port to listen on
    JWTSecret    string // secret used to verify access tokens
    StoreBackend string // "memory" or "mysql"

    DBUser string // database username
    DBPass string // database password (optional)
    DBHost string // database host address
    DBPort string // database port number
    DBName string // database name

    LockTTLMin      int // seat lock lifetime in minutes
    ReapIntervalMin int // background reaper period in minutes
    MaxSeats        int // per-session seat cap
    MaxExtendMin    int // per-call lock extension cap in minutes

    GatewayTimeoutSec     int // bound on every gateway call
    GatewaySuccessPercent int // simulator approval rate, 0-100

    FeeRate  float64 // convenience fee fraction of the base amount
    FeeFloor float64 // convenience fee minimum
    TaxRate  float64 // tax fraction of base plus fee
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Tunables with sane
// operational defaults are optional.
func Load() Config {
    cfg := Config{
        Env:          must("APP_ENV"),
        Port:         must("APP_PORT"),
        JWTSecret:    must("JWT_SECRET"),
        StoreBackend: getenv("STORE_BACKEND", "memory"),

        LockTTLMin:      intEnv("LOCK_TTL_MIN", 10),
        ReapIntervalMin: intEnv("REAP_INTERVAL_MIN", 2),
        MaxSeats:        intEnv("MAX_SEATS_PER_SESSION", 10),
        MaxExtendMin:    intEnv("MAX_EXTEND_MIN", 5),

        GatewayTimeoutSec:     intEnv("GATEWAY_TIMEOUT_SEC", 15),
        GatewaySuccessPercent: intEnv("GATEWAY_SUCCESS_PERCENT", 90),

        FeeRate:  floatEnv("CONVENIENCE_FEE_RATE", 0.025),
        FeeFloor: floatEnv("CONVENIENCE_FEE_MIN", 20.0),
        TaxRate:  floatEnv("TAX_RATE", 0.18),
    }
    if cfg.StoreBackend == "mysql" {
        cfg.DBUser = must("DB_USER")
        cfg.DBPass = os.Getenv("DB_PASS")
        cfg.DBHost = must("DB_HOST")
        cfg.DBPort = must("DB_PORT")
        cfg.DBName = must("DB_NAME")
    }
    return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// intEnv reads an optional integer variable, falling back to def when the
// variable is unset.  A malformed value is fatal rather than silently
// defaulted.
func intEnv(key string, def int) int {
    s := os.Getenv(key)
    if s == "" {
        return def
    }
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}

// floatEnv is intEnv for float64 values.
func floatEnv(key string, def float64) float64 {
    s := os.Getenv(key)
    if s == "" {
        return def
    }
    f, err := strconv.ParseFloat(s, 64)
    if err != nil {
        log.Fatalf("invalid float for %s: %q", key, s)
    }
    return f
}
