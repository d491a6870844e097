package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/rl1809/catalog/internal/adapter/storage/migrations"
	"github.com/rl1809/catalog/internal/core/domain"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// OpenSQL connects to MySQL or SQLite and verifies the connection.
func OpenSQL(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", driver)
	}

	switch driver {
	case DriverSQLite:
		// one writer at a time; transactions would otherwise hit SQLITE_BUSY
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	default:
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "ping %s", driver)
	}
	return db, nil
}

// Migrate applies the embedded schema. The database handle stays open.
func Migrate(db *sqlx.DB) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return errors.Wrap(err, "open migrations")
	}
	defer src.Close()

	var m *migrate.Migrate
	switch db.DriverName() {
	case DriverMySQL:
		drv, err := migratemysql.WithInstance(db.DB, &migratemysql.Config{})
		if err != nil {
			return errors.Wrap(err, "mysql migration driver")
		}
		m, err = migrate.NewWithInstance("iofs", src, DriverMySQL, drv)
		if err != nil {
			return errors.Wrap(err, "init migrate")
		}
	case DriverSQLite:
		drv, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
		if err != nil {
			return errors.Wrap(err, "sqlite migration driver")
		}
		m, err = migrate.NewWithInstance("iofs", src, DriverSQLite, drv)
		if err != nil {
			return errors.Wrap(err, "init migrate")
		}
	default:
		return errors.Errorf("unsupported sql driver %q", db.DriverName())
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit")
}

func isDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "UNIQUE")
		}
	}
	return false
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// classifyMiss explains why a guarded UPDATE or DELETE touched no row: the
// row is gone, or its version moved on.
func classifyMiss(ctx context.Context, q sqlx.QueryerContext, query string, id interface{}, expectedVersion int64) error {
	var stored int64
	err := sqlx.GetContext(ctx, q, &stored, query, id)
	if isNoRows(err) {
		return errors.Wrapf(domain.ErrNotFound, "id %v", id)
	}
	if err != nil {
		return errors.Wrap(err, "read version")
	}
	return versionConflict(expectedVersion, stored)
}
