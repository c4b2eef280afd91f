package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/aaronBIOO/QuickChat/internal/domain"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns / 2)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations for the chat schema.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id               TEXT         PRIMARY KEY,
			email            TEXT         UNIQUE NOT NULL,
			full_name        TEXT         NOT NULL,
			bio              TEXT         NOT NULL DEFAULT '',
			profile_pic      TEXT         NOT NULL DEFAULT '',
			hashed_password  TEXT         NOT NULL DEFAULT '',
			created_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id           TEXT         PRIMARY KEY,
			sender_id    TEXT         NOT NULL,
			receiver_id  TEXT         NOT NULL,
			text         TEXT         NOT NULL DEFAULT '',
			image        TEXT         NOT NULL DEFAULT '',
			seen         BOOLEAN      NOT NULL DEFAULT FALSE,
			created_at   TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			CONSTRAINT messages_has_content CHECK (text <> '' OR image <> '')
		)`,

		`CREATE TABLE IF NOT EXISTS deleted_users (
			id          TEXT         PRIMARY KEY,
			deleted_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_users_full_name ON users(full_name)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_unseen ON messages(receiver_id, sender_id) WHERE NOT seen`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}

const codeUniqueViolation = "23505"

func mapError(err error, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return fmt.Errorf("%s: %w", what, domain.ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}
