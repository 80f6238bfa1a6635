package db

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgNumericOutOfRange = "22003"

	mysqlOutOfRange         = 1264
	mysqlUnsignedOutOfRange = 1690
)

// IsOutOfRange reports whether err is either engine refusing a value too
// large for its column.
func IsOutOfRange(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgNumericOutOfRange
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlOutOfRange || myErr.Number == mysqlUnsignedOutOfRange
	}
	return false
}
