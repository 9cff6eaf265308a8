package app

import (
	"strings"
	"time"

	"asanagram/internal/asana"
	"asanagram/internal/config"
	"asanagram/internal/digest"
	"asanagram/internal/engine"
	"asanagram/internal/notifier"
	"asanagram/internal/scheduler"
	"asanagram/internal/storage"
	kit "asanagram/internal/transport"
	"asanagram/internal/webhook"
	logx "asanagram/pkg/logx"
)

// Mappers assume config.Validate already accepted cfg, so duration errors
// fall back to defaults.

func mapEngineConfig(cfg *config.Config) engine.Config {
	d := engine.DefaultConfig()
	ec := cfg.Engine
	return engine.Config{
		Locale:               strings.TrimSpace(ec.Locale),
		NewEntityWindow:      config.Duration(ec.NewEntityWindow, d.NewEntityWindow),
		EditWindow:           config.Duration(ec.EditWindow, d.EditWindow),
		AtomicDedupWindow:    config.Duration(ec.AtomicDedupWindow, d.AtomicDedupWindow),
		AggregateDedupWindow: config.Duration(ec.AggregateDedupWindow, d.AggregateDedupWindow),
		DedupMaxEntries:      ec.DedupMaxEntries,
		CacheTTL:             config.Duration(ec.CacheTTL, d.CacheTTL),
		UserCacheTTL:         config.Duration(ec.UserCacheTTL, d.UserCacheTTL),
		FetchTimeout:         config.Duration(ec.FetchTimeout, d.FetchTimeout),
		NotesBudget:          ec.NotesBudget,
		CommentBudget:        ec.CommentBudget,
		QueueSize:            ec.QueueSize,
	}
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	nc := cfg.Notifier
	return notifier.Config{
		Enabled:     true,
		Workers:     nc.Workers,
		QueueSize:   nc.QueueSize,
		RatePerSec:  nc.RatePerSec,
		Burst:       nc.Burst,
		SendTimeout: config.Duration(nc.SendTimeout, 10*time.Second),
		HistorySize: nc.HistorySize,
		Target:      kit.ChatTarget{ChatID: cfg.Telegram.ChatID, ThreadID: cfg.Telegram.ThreadID},
	}
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	sc := cfg.Storage
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		DSN:         sc.DSN,
		BusyTimeout: config.Duration(sc.BusyTimeout, time.Second),
		Retention:   config.Duration(sc.Retention, 0),
	}
}

func mapDigestConfig(cfg *config.Config) digest.Config {
	d := digest.DefaultConfig()
	dc := cfg.Digest
	out := digest.Config{
		Enabled:   dc.Enabled,
		Projects:  cfg.Asana.Projects,
		Locale:    cfg.Engine.Locale,
		MaxItems:  dc.MaxItems,
		Overdue:   dc.Overdue,
		Deadlines: dc.Deadlines,
		Weekly:    dc.Weekly,
		Timeout:   config.Duration(dc.Timeout, d.Timeout),
	}
	// An all-empty schedule block means the classic plan.
	if out.Overdue == "" && out.Deadlines == "" && out.Weekly == "" {
		out.Overdue, out.Deadlines, out.Weekly = d.Overdue, d.Deadlines, d.Weekly
	}
	if out.MaxItems <= 0 {
		out.MaxItems = d.MaxItems
	}
	return out
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Timezone: cfg.Digest.Timezone}
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	chatID := lc.Telegram.ChatID
	if chatID == 0 {
		chatID = cfg.Telegram.ChatID
	}
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: lc.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			ChatID:     chatID,
			ThreadID:   lc.Telegram.ThreadID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func mapAsanaOptions(cfg *config.Config) asana.Options {
	return asana.Options{
		BaseURL:    cfg.Asana.BaseURL,
		Token:      cfg.Asana.Token,
		MaxRetries: cfg.Asana.MaxRetries,
		UserAgent:  "asanagram",
		HTTPClient: newHTTPClient(config.Duration(cfg.Asana.Timeout, 10*time.Second)),
	}
}

func mapWebhookConfig(cfg *config.Config) webhook.Config {
	return webhook.Config{
		Addr:         cfg.Webhook.Addr,
		Path:         cfg.Webhook.Path,
		Secret:       cfg.Webhook.Secret,
		AdoptSecret:  cfg.Webhook.AdoptSecret,
		MaxBodyBytes: cfg.Webhook.MaxBodyBytes,
	}
}
