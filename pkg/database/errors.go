package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// describe turns a driver error into text that is safe to show in a reply.
func describe(err error) string {
	var pgErr *pgconn.PgError
	var myErr *mysql.MySQLError
	var liteErr sqlite3.Error

	switch {
	case errors.Is(err, context.Canceled):
		return "the query was cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "the query timed out"
	case errors.As(err, &pgErr):
		return fmt.Sprintf("%s (SQLSTATE %s)", pgErr.Message, pgErr.Code)
	case errors.As(err, &myErr):
		return fmt.Sprintf("%s (error %d)", myErr.Message, myErr.Number)
	case errors.As(err, &liteErr):
		return liteErr.Error()
	default:
		return err.Error()
	}
}
