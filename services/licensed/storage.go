package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNoPending indicates no registration is waiting for a payment.
	ErrNoPending = errors.New("no pending registration")
	// ErrAlreadySettled indicates the transaction has already produced a license.
	ErrAlreadySettled = errors.New("transaction already settled")
)

// Conversation states persisted per user.
const (
	stateIdle          = "idle"
	stateAwaitingLogin = "awaiting_login"
)

// SQLiteStore persists licenses, pending registrations, and dialog sessions.
type SQLiteStore struct {
	db    *sql.DB
	nowFn func() time.Time
	keyFn func() (string, error)
}

// IssuedLicense carries the outcome of a settled payment.
type IssuedLicense struct {
	UserID int64
	Login  string
	Key    string
	Expiry time.Time
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Writes arrive from both the bot loop and the reconciler; a single
	// connection serialises them and keeps every mutation atomic.
	db.SetMaxOpenConns(1)
	store := &SQLiteStore{db: db, nowFn: time.Now, keyFn: generateLicenseKey}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            user_id INTEGER PRIMARY KEY,
            login TEXT NOT NULL,
            license_key TEXT NOT NULL,
            expiry TIMESTAMP NOT NULL,
            settlement_tx TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE TABLE IF NOT EXISTS pending_payments (
            user_id INTEGER PRIMARY KEY,
            login TEXT NOT NULL,
            created_at TIMESTAMP NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS sessions (
            user_id INTEGER PRIMARY KEY,
            state TEXT NOT NULL,
            updated_at TIMESTAMP NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS settled_transactions (
            tx_id TEXT PRIMARY KEY,
            user_id INTEGER NOT NULL,
            settled_at TIMESTAMP NOT NULL
        );`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Ping verifies the database file is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Session returns the persisted dialog state for a user, defaulting to idle.
func (s *SQLiteStore) Session(ctx context.Context, userID int64) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT state FROM sessions WHERE user_id = ?`, userID)
	var state string
	err := row.Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return stateIdle, nil
	}
	if err != nil {
		return "", err
	}
	return state, nil
}

// SetSession persists the dialog state for a user.
func (s *SQLiteStore) SetSession(ctx context.Context, userID int64, state string) error {
	const stmt = `INSERT OR REPLACE INTO sessions(user_id, state, updated_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, userID, state, s.nowFn().UTC())
	return err
}

// UpsertPending records a registration awaiting payment, replacing any prior
// registration for the same user.
func (s *SQLiteStore) UpsertPending(ctx context.Context, userID int64, login string) error {
	const stmt = `INSERT OR REPLACE INTO pending_payments(user_id, login, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, userID, login, s.nowFn().UTC())
	return err
}

// PendingLogin returns the login awaiting payment for a user, if any.
func (s *SQLiteStore) PendingLogin(ctx context.Context, userID int64) (string, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT login FROM pending_payments WHERE user_id = ?`, userID)
	var login string
	err := row.Scan(&login)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return login, true, nil
}

// DeletePending discards a user's pending registration.
func (s *SQLiteStore) DeletePending(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_payments WHERE user_id = ?`, userID)
	return err
}

// PrunePending removes registrations created before the cutoff and reports
// how many were dropped.
func (s *SQLiteStore) PrunePending(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_payments WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// License returns the current key and expiry for a user.
func (s *SQLiteStore) License(ctx context.Context, userID int64) (string, time.Time, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT license_key, expiry FROM users WHERE user_id = ?`, userID)
	var key string
	var expiry time.Time
	err := row.Scan(&key, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, err
	}
	return key, expiry, true, nil
}

// HasSettled reports whether a ledger transaction already produced a license.
func (s *SQLiteStore) HasSettled(ctx context.Context, txID string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM settled_transactions WHERE tx_id = ?`, txID)
	var one int
	err := row.Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SettlePayment credits one qualifying ledger transaction: inside a single
// transaction it re-checks the dedup index, claims the oldest pending
// registration newer than minCreatedAt (zero disables the cutoff), issues a
// fresh key with expiry now+lifetime, records the transaction id in the
// append-only settlement index, and deletes the claimed registration. Two
// concurrent callers can never credit the same registration, and a
// transaction id can never settle twice, even after later renewals overwrite
// the user's row.
func (s *SQLiteStore) SettlePayment(ctx context.Context, txID string, lifetime time.Duration, minCreatedAt time.Time) (*IssuedLicense, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM settled_transactions WHERE tx_id = ?`, txID).Scan(&one)
	if err == nil {
		return nil, ErrAlreadySettled
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	const claim = `SELECT user_id, login FROM pending_payments WHERE created_at >= ? ORDER BY created_at ASC LIMIT 1`
	var userID int64
	var login string
	err = tx.QueryRowContext(ctx, claim, minCreatedAt.UTC()).Scan(&userID, &login)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoPending
	}
	if err != nil {
		return nil, err
	}

	key, err := s.keyFn()
	if err != nil {
		return nil, fmt.Errorf("generate license key: %w", err)
	}
	expiry := s.nowFn().UTC().Add(lifetime)

	const issue = `INSERT OR REPLACE INTO users(user_id, login, license_key, expiry, settlement_tx) VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, issue, userID, login, key, expiry, txID); err != nil {
		return nil, err
	}
	const mark = `INSERT INTO settled_transactions(tx_id, user_id, settled_at) VALUES (?, ?, ?)`
	if _, err := tx.ExecContext(ctx, mark, txID, userID, s.nowFn().UTC()); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_payments WHERE user_id = ?`, userID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &IssuedLicense{UserID: userID, Login: login, Key: key, Expiry: expiry}, nil
}

// generateLicenseKey draws 128 bits from the system CSPRNG and encodes them
// as 32 lowercase hex characters.
func generateLicenseKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
