package database

import (
    "context"
    "database/sql"
    "fmt"
    "time"

    _ "github.com/go-sql-driver/mysql"
)

const (
    maxOpenConns = 25
    maxIdleConns = 25
    connLifetime = 30 * time.Minute
    pingTimeout  = 5 * time.Second
)

// Open connects to MySQL and verifies the connection with a bounded ping.
// The DSN pins loc=UTC so DATETIME columns round-trip as UTC time.Time
// values, matching how the rest of the service compares deadlines.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
    auth := user
    if pass != "" {
        auth = fmt.Sprintf("%s:%s", user, pass)
    }
    dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
        auth, host, port, name)

    db, err := sql.Open("mysql", dsn)
    if err != nil {
        return nil, err
    }

    db.SetMaxOpenConns(maxOpenConns)
    db.SetMaxIdleConns(maxIdleConns)
    db.SetConnMaxLifetime(connLifetime)

    ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
    defer cancel()
    if err := db.PingContext(ctx); err != nil {
        return nil, err
    }
    return db, nil
}
