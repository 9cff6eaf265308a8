package config

import (
	"reflect"
	"strings"

	logx "asanagram/pkg/logx"
)

// SummarizeConfigChange lists changed sections and safe attributes for a
// reload log line. Secrets are reported only as "set" flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 9)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
			logx.Int64("telegram.chat_id", newCfg.Telegram.ChatID),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Asana, newCfg.Asana) {
		changed = append(changed, "asana")
		attrs = append(attrs,
			logx.Bool("asana.token_changed", oldCfg.Asana.Token != newCfg.Asana.Token),
			logx.Strs("asana.projects", newCfg.Asana.Projects),
		)
	}
	if !reflect.DeepEqual(oldCfg.Webhook, newCfg.Webhook) {
		changed = append(changed, "webhook")
		attrs = append(attrs,
			logx.String("webhook.addr", newCfg.Webhook.Addr),
			logx.Bool("webhook.secret_set", newCfg.Webhook.Secret != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.Engine, newCfg.Engine) {
		changed = append(changed, "engine")
		attrs = append(attrs,
			logx.String("engine.locale", newCfg.Engine.Locale),
			logx.String("engine.edit_window", strings.TrimSpace(newCfg.Engine.EditWindow)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Mentions, newCfg.Mentions) {
		changed = append(changed, "mentions")
		attrs = append(attrs, logx.Int("mentions.count", len(newCfg.Mentions)))
	}
	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		attrs = append(attrs, logx.Any("notifier.rate_per_sec", newCfg.Notifier.RatePerSec), logx.Int("notifier.burst", newCfg.Notifier.Burst))
	}
	if !reflect.DeepEqual(oldCfg.Digest, newCfg.Digest) {
		changed = append(changed, "digest")
		attrs = append(attrs, logx.Bool("digest.enabled", newCfg.Digest.Enabled), logx.String("digest.timezone", newCfg.Digest.Timezone))
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver), logx.Bool("storage.dsn_set", newCfg.Storage.DSN != ""))
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}
	return changed, attrs
}

// RestartRequired lists changed sections that only take effect on restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "telegram", "asana", "webhook", "storage":
			out = append(out, s)
		}
	}
	return out
}
