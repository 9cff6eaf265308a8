package notifier

import (
	"time"

	kit "asanagram/internal/transport"
)

// Config controls the delivery pipeline. Rate and Burst are hot-reloadable.
type Config struct {
	Enabled     bool
	Workers     int
	QueueSize   int
	RatePerSec  float64
	Burst       int
	SendTimeout time.Duration
	HistorySize int
	// Target is used when a notification carries no chat of its own.
	Target kit.ChatTarget
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 1
	}
	if c.Burst <= 0 {
		c.Burst = 3
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 100
	}
	return c
}

type HistoryItem struct {
	At       time.Time
	Kind     string
	EntityID string
	OK       bool
	Error    string
}

// NotificationEvent is the payload of notifier.* bus events.
type NotificationEvent struct {
	Kind     string    `json:"kind"`
	EntityID string    `json:"entity_id,omitempty"`
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}
