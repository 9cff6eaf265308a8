package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"asanagram/internal/engine/render"
	"asanagram/internal/scheduler"
)

// resolveSecrets expands env references in place.
func resolveSecrets(cfg *Config) error {
	var errs []error
	for _, s := range []struct {
		path string
		v    *string
	}{
		{"telegram.token", &cfg.Telegram.Token},
		{"asana.token", &cfg.Asana.Token},
		{"webhook.secret", &cfg.Webhook.Secret},
		{"storage.dsn", &cfg.Storage.DSN},
	} {
		v, err := ResolveSecret(s.path, *s.v)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*s.v = v
	}
	return errors.Join(errs...)
}

// Validate reports every problem in cfg at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	fail := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if cfg.Telegram.Token == "" {
		fail("telegram.token is required")
	}
	if cfg.Telegram.ChatID == 0 {
		fail("telegram.chat_id is required")
	}
	if cfg.Asana.Token == "" {
		fail("asana.token is required")
	}

	for path, raw := range map[string]string{
		"telegram.poll_timeout":         cfg.Telegram.PollTimeout,
		"asana.timeout":                 cfg.Asana.Timeout,
		"engine.new_entity_window":      cfg.Engine.NewEntityWindow,
		"engine.edit_window":            cfg.Engine.EditWindow,
		"engine.atomic_dedup_window":    cfg.Engine.AtomicDedupWindow,
		"engine.aggregate_dedup_window": cfg.Engine.AggregateDedupWindow,
		"engine.cache_ttl":              cfg.Engine.CacheTTL,
		"engine.user_cache_ttl":         cfg.Engine.UserCacheTTL,
		"engine.fetch_timeout":          cfg.Engine.FetchTimeout,
		"notifier.send_timeout":         cfg.Notifier.SendTimeout,
		"digest.timeout":                cfg.Digest.Timeout,
		"storage.busy_timeout":          cfg.Storage.BusyTimeout,
		"storage.retention":             cfg.Storage.Retention,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if l := strings.TrimSpace(cfg.Engine.Locale); l != "" && !render.SupportedLocale(l) {
		fail("engine.locale: unsupported locale %q", l)
	}
	if cfg.Notifier.RatePerSec < 0 || cfg.Notifier.Burst < 0 {
		fail("notifier: rate_per_sec and burst must be >= 0")
	}
	if cfg.Webhook.Path != "" && !strings.HasPrefix(cfg.Webhook.Path, "/") {
		fail("webhook.path must start with /")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "none", "file", "sqlite":
	case "postgres":
		if cfg.Storage.DSN == "" {
			fail("storage.dsn is required for postgres")
		}
	default:
		fail("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}

	if cfg.Digest.Enabled {
		if len(cfg.Asana.Projects) == 0 {
			fail("digest is enabled but asana.projects is empty")
		}
		for path, spec := range map[string]string{
			"digest.overdue":   cfg.Digest.Overdue,
			"digest.deadlines": cfg.Digest.Deadlines,
			"digest.weekly":    cfg.Digest.Weekly,
		} {
			if strings.TrimSpace(spec) == "" {
				continue
			}
			if _, err := scheduler.ParseSchedule(spec); err != nil {
				fail("%s: %v", path, err)
			}
		}
		if tz := strings.TrimSpace(cfg.Digest.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				fail("digest.timezone: %v", err)
			}
		}
	}
	return errors.Join(errs...)
}
