package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"

	logx "asanagram/pkg/logx"
)

const postgresOperationTimeout = 5 * time.Second

const postgresSchema = `
CREATE TABLE IF NOT EXISTS asanagram_deliveries (
	id        TEXT PRIMARY KEY,
	at        TIMESTAMPTZ NOT NULL,
	kind      TEXT NOT NULL,
	entity_id TEXT,
	chat_id   BIGINT NOT NULL,
	ok        BOOLEAN NOT NULL,
	err       TEXT,
	text      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS asanagram_deliveries_at ON asanagram_deliveries(at);
`

type postgresStore struct {
	db        *sql.DB
	log       logx.Logger
	retention time.Duration
	writes    atomic.Uint64
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	log.Info("delivery log opened")
	return &postgresStore{db: db, log: log, retention: cfg.Retention}, nil
}

func (s *postgresStore) RecordDelivery(ctx context.Context, d Delivery) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	d = normalize(d)
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO asanagram_deliveries (id, at, kind, entity_id, chat_id, ok, err, text)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		d.ID, d.At, d.Kind, nullStr(d.EntityID), d.ChatID, d.OK, nullStr(d.Error), d.Text,
	)
	if err == nil && s.retention > 0 && s.writes.Add(1)%pruneEvery == 0 {
		if _, perr := s.db.ExecContext(ctx, `DELETE FROM asanagram_deliveries WHERE at < $1`, time.Now().Add(-s.retention)); perr != nil {
			s.log.Warn("prune failed", logx.Err(perr))
		}
	}
	return err
}

func (s *postgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
