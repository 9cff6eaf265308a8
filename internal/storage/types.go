package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config selects a driver. An empty or "none" Driver disables storage.
type Config struct {
	Driver      string
	Path        string        // file, sqlite
	DSN         string        // postgres
	BusyTimeout time.Duration // sqlite only
	// Retention prunes rows older than this on sqlite and postgres.
	// Zero keeps everything.
	Retention time.Duration
}

// Delivery is one attempted notification.
type Delivery struct {
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
	Kind     string    `json:"kind"`
	EntityID string    `json:"entity_id,omitempty"`
	ChatID   int64     `json:"chat_id"`
	OK       bool      `json:"ok"`
	Error    string    `json:"error,omitempty"`
	Text     string    `json:"text"`
}
