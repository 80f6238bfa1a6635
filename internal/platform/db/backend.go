package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Backend is the open database for one of the supported engines. Exactly one
// of Pool and SQL is set, matching Driver.
type Backend struct {
	Driver string
	Pool   *pgxpool.Pool
	SQL    *sql.DB
}

// Open connects to the database selected by driver and verifies it with a
// ping.
func Open(ctx context.Context, driver, databaseURL string, maxConns, minConns int32) (*Backend, error) {
	switch driver {
	case DriverPostgres:
		pool, err := NewPool(ctx, databaseURL, maxConns, minConns)
		if err != nil {
			return nil, err
		}
		return &Backend{Driver: driver, Pool: pool}, nil
	case DriverMySQL:
		sqlDB, err := NewMySQL(ctx, databaseURL, maxConns, minConns)
		if err != nil {
			return nil, err
		}
		return &Backend{Driver: driver, SQL: sqlDB}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (b *Backend) Close() {
	if b.Pool != nil {
		b.Pool.Close()
	}
	if b.SQL != nil {
		b.SQL.Close()
	}
}

func (b *Backend) Ping(ctx context.Context) error {
	if b.Pool != nil {
		return b.Pool.Ping(ctx)
	}
	return b.SQL.PingContext(ctx)
}

// Stats returns connection pool statistics for either engine.
func (b *Backend) Stats() *PoolStats {
	if b.Pool != nil {
		return GetPoolStats(b.Pool)
	}
	return GetSQLStats(b.SQL)
}

// ConnMiddleware returns the per-request connection middleware for the
// engine.
func (b *Backend) ConnMiddleware() echo.MiddlewareFunc {
	if b.Pool != nil {
		return ConnMiddleware(b.Pool)
	}
	return SQLConnMiddleware(b.SQL)
}

func (b *Backend) TxRunner() TxRunner {
	if b.Pool != nil {
		return NewPgTxRunner(b.Pool)
	}
	return NewSQLTxRunner(b.SQL)
}

func (b *Backend) Migrator(fsys fs.FS) *Migrator {
	if b.Pool != nil {
		return NewPgMigrator(b.Pool, fsys)
	}
	return NewSQLMigrator(b.SQL, fsys)
}

// RoundTrip is the result of the database round-trip query.
type RoundTrip struct {
	Result     int       `json:"result"`
	ServerTime time.Time `json:"serverTime"`
	UTCTime    time.Time `json:"utcTime"`
}

// RoundTrip runs a trivial query that exercises the full path to the
// database server.
func (b *Backend) RoundTrip(ctx context.Context) (*RoundTrip, error) {
	var rt RoundTrip
	if b.Pool != nil {
		err := PgQuerier(ctx, b.Pool).QueryRow(ctx,
			`SELECT 1 + 1, NOW(), NOW() AT TIME ZONE 'UTC'`).Scan(&rt.Result, &rt.ServerTime, &rt.UTCTime)
		if err != nil {
			return nil, fmt.Errorf("database round trip: %w", err)
		}
		rt.UTCTime = rt.UTCTime.UTC()
		return &rt, nil
	}

	err := SQLQuerierFrom(ctx, b.SQL).QueryRowContext(ctx,
		`SELECT 1 + 1, NOW(), UTC_TIMESTAMP()`).Scan(&rt.Result, &rt.ServerTime, &rt.UTCTime)
	if err != nil {
		return nil, fmt.Errorf("database round trip: %w", err)
	}
	return &rt, nil
}
