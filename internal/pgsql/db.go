package pgsql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Open connects to postgres through the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string, log *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	// Requests are served one at a time; keep the pool small.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to test postgres connection: %w", err)
	}
	if result != 1 {
		db.Close()
		return nil, fmt.Errorf("unexpected result from connection test: got %d, expected 1", result)
	}

	var database, user string
	if err := db.QueryRowContext(ctx, "SELECT current_database(), current_user").Scan(&database, &user); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to get current database and user: %w", err)
	}
	log.Info("pgsql: connected", "database", database, "user", user)

	return db, nil
}
