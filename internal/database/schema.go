package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		user_id TEXT PRIMARY KEY,
		balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS names (
		user_id    TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id         BIGSERIAL PRIMARY KEY,
		from_id    TEXT NOT NULL,
		to_id      TEXT NOT NULL,
		amount     BIGINT NOT NULL CHECK (amount > 0),
		comment    TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_from_id_idx ON transactions (from_id)`,
	`CREATE INDEX IF NOT EXISTS transactions_to_id_idx ON transactions (to_id)`,
	`CREATE INDEX IF NOT EXISTS transactions_comment_created_at_idx ON transactions (comment, created_at)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		user_id TEXT NOT NULL,
		job_id  BIGINT NOT NULL,
		title   TEXT NOT NULL,
		salary  BIGINT NOT NULL CHECK (salary >= 0),
		PRIMARY KEY (user_id, job_id)
	)`,
	`CREATE TABLE IF NOT EXISTS job_sequences (
		user_id     TEXT PRIMARY KEY,
		next_job_id BIGINT NOT NULL
	)`,
}

// EnsureSchema creates the ledger tables when they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil && !alreadyCreated(err) {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// alreadyCreated reports whether err comes from another instance creating the
// same object concurrently, which IF NOT EXISTS does not guard against.
func alreadyCreated(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "42P07", "23505":
		return true
	}
	return false
}

// BootstrapConfig names the accounts every ledger starts with.
type BootstrapConfig struct {
	AdminID      string
	AdminName    string
	InitialMoney int64
	TaxAccountID string
}

// Bootstrap seeds the administrative account with the initial money supply
// and its name, and opens the tax collection account. Existing accounts are
// left untouched, so running it again never mints money.
func Bootstrap(ctx context.Context, db *sql.DB, cfg BootstrapConfig, log *logrus.Logger) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin bootstrap: %w", err)
	}
	defer tx.Rollback()

	adminCreated, err := seedAccount(ctx, tx, cfg.AdminID, cfg.InitialMoney)
	if err != nil {
		return err
	}
	taxCreated, err := seedAccount(ctx, tx, cfg.TaxAccountID, 0)
	if err != nil {
		return err
	}

	if cfg.AdminName != "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO names (user_id, name, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE SET name = EXCLUDED.name, updated_at = EXCLUDED.updated_at`,
			cfg.AdminID, cfg.AdminName, time.Now()); err != nil {
			return fmt.Errorf("failed to name admin account: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bootstrap: %w", err)
	}

	log.WithFields(logrus.Fields{
		"admin_id":       cfg.AdminID,
		"admin_created":  adminCreated,
		"tax_account_id": cfg.TaxAccountID,
		"tax_created":    taxCreated,
	}).Info("ledger bootstrapped")
	return nil
}

func seedAccount(ctx context.Context, tx *sql.Tx, id string, balance int64) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`,
		id, balance)
	if err != nil {
		return false, fmt.Errorf("failed to seed account %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to seed account %s: %w", id, err)
	}
	return rowsAffected > 0, nil
}
