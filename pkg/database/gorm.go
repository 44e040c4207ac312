package database

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
)

func getLogger(w io.Writer) logger.Interface {
	if w == nil {
		w = os.Stdout
	}
	return logger.New(
		log.New(w, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)
}

func configureConnectionPool(db *gorm.DB, dialect string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	// SQLite serialises writers anyway; a single connection avoids "database is locked".
	if dialect == DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
		return nil
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return nil
}

func dialector(dialect, dsn string) (gorm.Dialector, error) {
	switch dialect {
	case DialectPostgres, "":
		return postgres.Open(dsn), nil
	case DialectMySQL:
		return mysql.Open(dsn), nil
	case DialectSQLite:
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database dialect: %s", dialect)
	}
}

// Open connects to the configured engine. Query logs go to w (stdout when nil).
func Open(dialect, dsn string, w io.Writer) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty connection string for dialect %q", dialect)
	}

	d, err := dialector(dialect, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(d, &gorm.Config{
		Logger: getLogger(w),
	})
	if err != nil {
		return nil, err
	}

	if err := configureConnectionPool(db, dialect); err != nil {
		return nil, err
	}

	return db, nil
}

// DialectName is the engine name used when asking for SQL in that dialect.
func DialectName(dialect string) string {
	switch dialect {
	case DialectPostgres, "":
		return "PostgreSQL"
	case DialectMySQL:
		return "MySQL"
	case DialectSQLite:
		return "SQLite"
	default:
		return "SQL"
	}
}
