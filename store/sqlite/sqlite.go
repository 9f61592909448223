/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements forecast.Store and reconcile.Store on one SQLite database.
  Decimals are stored as TEXT so amounts round-trip exactly; dates as
  YYYY-MM-DD TEXT (NULL for "no date").

INTERFACES IMPLEMENTED:
  forecast.Store:  Condominiums, cost centers, periods, items, snapshots
  reconcile.Store: Payments, extra expenses, alerts

KEY TABLES:
  periods:           One row per (condominium, year, month); carries the
                     optimistic-lock version and the last summary snapshot
  line_items:        Forecast items, replaced as a whole on save
  cost_center_items: Items of one (period, cost center) pair
  payments:          Executed side, scheduled or paid
  extra_expenses:    Unforeseen spending
  alerts:            Generated alerts, unique on dedup_key

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  whole transaction; the callback must only use the Store it receives.
  Stale period writes are caught by the version column, not the mutex.

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  ":memory:" databases are pinned to one connection instead, since every
  new connection would see an empty database.

USAGE:
  store, err := sqlite.New("./data/condo.db", logger)
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is migrated on New() with golang-migrate from the embedded
  migrations/ directory (see migrate.go).

SEE ALSO:
  - forecast/store.go, reconcile/store.go: Interface definitions
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/condo-engine/forecast"
	"github.com/warp/condo-engine/generic"
	"github.com/warp/condo-engine/reconcile"
	"go.uber.org/zap"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db            *sql.DB
	mu            sync.RWMutex
	logger        *zap.Logger
	schemaVersion uint
}

var (
	_ forecast.Store  = (*Store)(nil)
	_ reconcile.Store = (*Store)(nil)
	_ forecast.Store  = (*txStore)(nil)
)

// querier is satisfied by both *sql.DB and *sql.Tx, so every query helper
// runs unchanged inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path and applies
// pending migrations. Use ":memory:" for an in-memory database.
func New(dbPath string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("sqlite")

	inMemory := dbPath == ":memory:"
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL"
	if inMemory {
		dsn = dbPath + "?_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	m, err := newMigrator(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := m.Up(); err != nil {
		db.Close()
		return nil, err
	}
	version, _, err := m.Version()
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("database opened", zap.String("path", dbPath), zap.Uint("schema_version", version))
	return &Store{db: db, logger: logger, schemaVersion: version}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SchemaVersion is the migration version applied when the store was opened.
func (s *Store) SchemaVersion() uint {
	return s.schemaVersion
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(forecast.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// inTx runs a multi-statement write atomically. Caller must not hold mu.
func (s *Store) inTx(ctx context.Context, fn func(q querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo). The schema is kept.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"alerts", "extra_expenses", "payments",
		"cost_center_items", "line_items", "periods",
		"cost_centers", "condominiums",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	s.logger.Info("database reset")
	return nil
}

// Storage formats
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullDate(d generic.Date) sql.NullString {
	return nullString(d.String())
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// decoder converts stored TEXT back into typed values, keeping the first
// failure so scan functions can check once at the end.
type decoder struct {
	err error
}

func (d *decoder) fail(field, value string, err error) {
	if d.err == nil {
		d.err = fmt.Errorf("decode %s %q: %w", field, value, err)
	}
}

func (d *decoder) decimal(field, s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		d.fail(field, s, err)
	}
	return v
}

func (d *decoder) optDecimal(field string, ns sql.NullString) *decimal.Decimal {
	if !ns.Valid {
		return nil
	}
	v := d.decimal(field, ns.String)
	return &v
}

func (d *decoder) date(field string, ns sql.NullString) generic.Date {
	if !ns.Valid || ns.String == "" {
		return generic.Date{}
	}
	v, err := generic.ParseDate(ns.String)
	if err != nil {
		d.fail(field, ns.String, err)
	}
	return v
}

func (d *decoder) time(field, s string) time.Time {
	v, err := time.Parse(timeLayout, s)
	if err != nil {
		d.fail(field, s, err)
	}
	return v
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
