package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "asanagram/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS deliveries (
	id        TEXT PRIMARY KEY,
	at        TEXT NOT NULL,
	kind      TEXT NOT NULL,
	entity_id TEXT,
	chat_id   INTEGER NOT NULL,
	ok        INTEGER NOT NULL,
	err       TEXT,
	text      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS deliveries_at ON deliveries(at);
`

type sqliteStore struct {
	db        *sql.DB
	log       logx.Logger
	retention time.Duration
	writes    atomic.Uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer keeps SQLite free of SQLITE_BUSY under the worker pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Info("delivery log opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log, retention: cfg.Retention}, nil
}

func (s *sqliteStore) RecordDelivery(ctx context.Context, d Delivery) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	d = normalize(d)
	ok := 0
	if d.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries(id, at, kind, entity_id, chat_id, ok, err, text) VALUES(?,?,?,?,?,?,?,?)`,
		d.ID, d.At.Format(time.RFC3339Nano), d.Kind, nullStr(d.EntityID), d.ChatID, ok, nullStr(d.Error), d.Text,
	)
	if err == nil && s.retention > 0 && s.writes.Add(1)%pruneEvery == 0 {
		cutoff := time.Now().Add(-s.retention).UTC().Format(time.RFC3339Nano)
		if _, perr := s.db.ExecContext(ctx, `DELETE FROM deliveries WHERE at < ?`, cutoff); perr != nil {
			s.log.Warn("prune failed", logx.Err(perr))
		}
	}
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
