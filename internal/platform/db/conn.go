package db

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	DBConnKey  contextKey = "db_conn"
	DBTxKey    contextKey = "db_tx"
	SQLConnKey contextKey = "sql_conn"
	SQLTxKey   contextKey = "sql_tx"
)

var errNoConn = errors.New("no database connection in context")

// Querier is the subset of pgx shared by the pool, a pooled connection and a
// transaction.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// SQLQuerier is the database/sql equivalent of Querier, satisfied by *sql.DB,
// *sql.Conn and *sql.Tx.
type SQLQuerier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ConnMiddleware pins one pooled PostgreSQL connection to each request and
// releases it when the handler returns, on every exit path.
func ConnMiddleware(pool *pgxpool.Pool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer conn.Release()

			ctx = context.WithValue(ctx, DBConnKey, conn)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// SQLConnMiddleware is ConnMiddleware for the database/sql backend.
func SQLConnMiddleware(sqlDB *sql.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			conn, err := sqlDB.Conn(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer conn.Close()

			ctx = context.WithValue(ctx, SQLConnKey, conn)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// ConnFromContext retrieves the request-scoped connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// TxFromContext retrieves the open transaction from context.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx begins a transaction on the request-scoped connection and returns a
// context carrying it.
func WithTx(ctx context.Context) (context.Context, pgx.Tx, error) {
	conn := ConnFromContext(ctx)
	if conn == nil {
		return ctx, nil, errNoConn
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		return ctx, nil, err
	}
	return context.WithValue(ctx, DBTxKey, tx), tx, nil
}

// PgQuerier picks the innermost handle available in ctx: the open
// transaction, then the request connection, then the pool.
func PgQuerier(ctx context.Context, pool *pgxpool.Pool) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

func SQLConnFromContext(ctx context.Context) *sql.Conn {
	conn, _ := ctx.Value(SQLConnKey).(*sql.Conn)
	return conn
}

func SQLTxFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(SQLTxKey).(*sql.Tx)
	return tx
}

// sqlTxOptions runs MySQL transactions at READ COMMITTED so locking reads
// take record locks only, without InnoDB gap locks.
var sqlTxOptions = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

// WithSQLTx is WithTx for the database/sql backend.
func WithSQLTx(ctx context.Context) (context.Context, *sql.Tx, error) {
	conn := SQLConnFromContext(ctx)
	if conn == nil {
		return ctx, nil, errNoConn
	}
	tx, err := conn.BeginTx(ctx, sqlTxOptions)
	if err != nil {
		return ctx, nil, err
	}
	return context.WithValue(ctx, SQLTxKey, tx), tx, nil
}

// SQLQuerierFrom is PgQuerier for the database/sql backend.
func SQLQuerierFrom(ctx context.Context, sqlDB *sql.DB) SQLQuerier {
	if tx := SQLTxFromContext(ctx); tx != nil {
		return tx
	}
	if c := SQLConnFromContext(ctx); c != nil {
		return c
	}
	return sqlDB
}
