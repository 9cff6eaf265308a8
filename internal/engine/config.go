package engine

import (
	"time"

	"asanagram/internal/engine/cache"
	"asanagram/internal/engine/dedup"
	"asanagram/internal/engine/render"
)

// Config tunes windows, budgets and locale.
type Config struct {
	Locale string

	// NewEntityWindow is the quiet window of an aggregate opened by a
	// task creation, EditWindow the one of ongoing edits.
	NewEntityWindow time.Duration
	EditWindow      time.Duration

	AtomicDedupWindow    time.Duration
	AggregateDedupWindow time.Duration
	DedupMaxEntries      int

	CacheTTL     time.Duration
	UserCacheTTL time.Duration
	FetchTimeout time.Duration

	NotesBudget   int
	CommentBudget int

	QueueSize int
}

func DefaultConfig() Config {
	return Config{
		Locale:               render.DefaultLocale,
		NewEntityWindow:      3 * time.Second,
		EditWindow:           30 * time.Second,
		AtomicDedupWindow:    10 * time.Second,
		AggregateDedupWindow: 30 * time.Second,
		DedupMaxEntries:      dedup.DefaultMaxEntries,
		CacheTTL:             cache.DefaultTTL,
		UserCacheTTL:         time.Hour,
		FetchTimeout:         cache.DefaultFetchTimeout,
		NotesBudget:          render.DefaultNotesBudget,
		CommentBudget:        render.DefaultCommentBudget,
		QueueSize:            256,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if !render.SupportedLocale(c.Locale) {
		c.Locale = d.Locale
	}
	if c.NewEntityWindow <= 0 {
		c.NewEntityWindow = d.NewEntityWindow
	}
	if c.EditWindow <= 0 {
		c.EditWindow = d.EditWindow
	}
	if c.AtomicDedupWindow <= 0 {
		c.AtomicDedupWindow = d.AtomicDedupWindow
	}
	if c.AggregateDedupWindow <= 0 {
		c.AggregateDedupWindow = d.AggregateDedupWindow
	}
	if c.DedupMaxEntries <= 0 {
		c.DedupMaxEntries = d.DedupMaxEntries
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.UserCacheTTL <= 0 {
		c.UserCacheTTL = d.UserCacheTTL
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.NotesBudget <= 0 {
		c.NotesBudget = d.NotesBudget
	}
	if c.CommentBudget <= 0 {
		c.CommentBudget = d.CommentBudget
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	return c
}
