package scheduler

import (
	"context"
	"time"
)

// DefaultTimezone is used when Config.Timezone is empty.
const DefaultTimezone = "Europe/Moscow"

type Config struct {
	Timezone string // IANA name
}

// Job is one named recurring run. Timeout bounds a single run; zero means
// five minutes.
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// EntryInfo describes a registered job for status output.
type EntryInfo struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next"`
	Prev     time.Time `json:"prev,omitempty"`
}
