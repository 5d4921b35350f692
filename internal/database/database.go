package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB is a document store on SQLite. Each row keeps the full JSON document
// next to the few columns queries filter or sort on.
type DB struct {
	conn   *sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	// Создаем директорию для БД, если её нет
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Один коннект: документы обновляются как read-modify-write в транзакции
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{conn: conn, logger: logger}, nil
}

func createTables(conn *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
            id TEXT PRIMARY KEY,
            price REAL NOT NULL DEFAULT 0,
            availability INTEGER NOT NULL DEFAULT 0,
            rating REAL NOT NULL DEFAULT 0,
            doc TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            room_id TEXT NOT NULL,
            user_email TEXT NOT NULL,
            doc TEXT NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_rooms_price ON rooms(price)`,
		`CREATE INDEX IF NOT EXISTS idx_rooms_featured ON rooms(availability, rating)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_room_user ON bookings(room_id, user_email)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings(user_email)`,
	}

	for _, query := range queries {
		if _, err := conn.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.conn.Close()
}
