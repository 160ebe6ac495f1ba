package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps sql.DB for the dealership store.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

var (
	ErrNotFound               = errors.New("not found")
	ErrDuplicateBooking       = errors.New("active booking already exists for this slot")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// NewDB opens the database at path and runs migrations.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Writers take the lock at BEGIN so concurrent bookings queue on busy_timeout instead of deadlocking.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: db, path: path, logger: logger}
	if err := instance.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			external_id TEXT UNIQUE NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			phone TEXT,
			image_url TEXT,
			role TEXT NOT NULL DEFAULT 'USER',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cars (
			id TEXT PRIMARY KEY,
			make TEXT NOT NULL,
			model TEXT NOT NULL,
			year INTEGER NOT NULL,
			price REAL NOT NULL,
			mileage INTEGER NOT NULL DEFAULT 0,
			color TEXT NOT NULL DEFAULT '',
			fuel_type TEXT NOT NULL DEFAULT '',
			transmission TEXT NOT NULL DEFAULT '',
			body_type TEXT NOT NULL DEFAULT '',
			seats INTEGER,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'AVAILABLE',
			featured BOOLEAN NOT NULL DEFAULT 0,
			images TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS dealership_info (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS working_hours (
			id TEXT PRIMARY KEY,
			dealership_id TEXT NOT NULL,
			day_of_week TEXT NOT NULL,
			open_time TEXT NOT NULL,
			close_time TEXT NOT NULL,
			is_open BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE (dealership_id, day_of_week),
			FOREIGN KEY (dealership_id) REFERENCES dealership_info(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS test_drive_bookings (
			id TEXT PRIMARY KEY,
			car_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			booking_date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			notes TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (car_id) REFERENCES cars(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS user_saved_cars (
			user_id TEXT NOT NULL,
			car_id TEXT NOT NULL,
			saved_at DATETIME NOT NULL,
			PRIMARY KEY (user_id, car_id),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (car_id) REFERENCES cars(id) ON DELETE CASCADE
		)`,

		// At most one PENDING/CONFIRMED booking per car slot.
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_test_drive_active_slot
			ON test_drive_bookings(car_id, booking_date, start_time, end_time)
			WHERE status IN ('PENDING', 'CONFIRMED')`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_car_date ON test_drive_bookings(car_id, booking_date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user ON test_drive_bookings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON test_drive_bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_cars_status ON cars(status, featured)`,
		`CREATE INDEX IF NOT EXISTS idx_users_role ON users(role)`,
		`CREATE INDEX IF NOT EXISTS idx_saved_cars_car ON user_saved_cars(car_id)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}

	return db.ensureNewColumns()
}

// ensureNewColumns adds columns introduced after the first release.
func (db *DB) ensureNewColumns() error {
	migrations := []string{
		`ALTER TABLE users ADD COLUMN image_url TEXT`,
		`ALTER TABLE cars ADD COLUMN seats INTEGER`,
	}

	for _, m := range migrations {
		_, err := db.Exec(m)
		if err != nil && !strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
			db.logger.Debug().Err(err).Str("migration", m).Msg("Migration skipped")
		}
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) Close() error {
	return db.DB.Close()
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}
