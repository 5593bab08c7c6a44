package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Signal is one stored trading signal.
type Signal struct {
	ID         int64     `json:"id"`
	UID        string    `json:"uid"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Volume     float64   `json:"volume"`
	StopLoss   *float64  `json:"stop_loss,omitempty"`
	TakeProfit *float64  `json:"take_profit,omitempty"`
	CreatedAt  time.Time `json:"timestamp"`
}

// SQLiteStore persists relayed trading signals.
type SQLiteStore struct {
	db    *sql.DB
	nowFn func() time.Time
	uidFn func() string
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	store := &SQLiteStore{db: db, nowFn: time.Now, uidFn: uuid.NewString}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	const schema = `CREATE TABLE IF NOT EXISTS signals (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        uid TEXT NOT NULL,
        symbol TEXT NOT NULL,
        side TEXT NOT NULL,
        volume REAL NOT NULL,
        stop_loss REAL,
        take_profit REAL,
        created_at TIMESTAMP NOT NULL
    );`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Ping verifies the database file is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// InsertSignal persists a signal, assigning its sequence id and UID.
func (s *SQLiteStore) InsertSignal(ctx context.Context, sig *Signal) error {
	sig.UID = s.uidFn()
	sig.CreatedAt = s.nowFn().UTC()
	const stmt = `INSERT INTO signals(uid, symbol, side, volume, stop_loss, take_profit, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, stmt, sig.UID, sig.Symbol, sig.Side, sig.Volume, sig.StopLoss, sig.TakeProfit, sig.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	sig.ID = id
	return nil
}

// SignalsAfter returns up to limit signals with id greater than after, oldest
// first, matching the polling contract of expert-advisor clients.
func (s *SQLiteStore) SignalsAfter(ctx context.Context, after int64, limit int) ([]Signal, error) {
	const query = `SELECT id, uid, symbol, side, volume, stop_loss, take_profit, created_at
        FROM signals WHERE id > ? ORDER BY id ASC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	signals := make([]Signal, 0, limit)
	for rows.Next() {
		var sig Signal
		if err := rows.Scan(&sig.ID, &sig.UID, &sig.Symbol, &sig.Side, &sig.Volume, &sig.StopLoss, &sig.TakeProfit, &sig.CreatedAt); err != nil {
			return nil, err
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}
