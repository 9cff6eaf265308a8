package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"asanagram/internal/config"
	"asanagram/internal/digest"
	"asanagram/internal/engine"
	kit "asanagram/internal/transport"
)

func TestMapEngineConfigFallsBackOnEmpty(t *testing.T) {
	cfg := &config.Config{}
	cfg.Engine.EditWindow = "45s"
	cfg.Engine.NotesBudget = 300

	got := mapEngineConfig(cfg)
	d := engine.DefaultConfig()
	require.Equal(t, 45*time.Second, got.EditWindow)
	require.Equal(t, d.NewEntityWindow, got.NewEntityWindow)
	require.Equal(t, d.AtomicDedupWindow, got.AtomicDedupWindow)
	require.Equal(t, 300, got.NotesBudget)
}

func TestMapDigestConfigDefaultsSchedules(t *testing.T) {
	cfg := &config.Config{}
	cfg.Digest.Enabled = true
	cfg.Asana.Projects = []string{"p1"}

	got := mapDigestConfig(cfg)
	d := digest.DefaultConfig()
	require.True(t, got.Enabled)
	require.Equal(t, []string{"p1"}, got.Projects)
	require.Equal(t, d.Overdue, got.Overdue)
	require.Equal(t, d.Weekly, got.Weekly)
	require.Equal(t, d.MaxItems, got.MaxItems)

	cfg.Digest.Overdue = "08:30"
	got = mapDigestConfig(cfg)
	require.Equal(t, "08:30", got.Overdue)
	require.Empty(t, got.Deadlines)
}

func TestMapNotifierConfigTargetsMainChat(t *testing.T) {
	cfg := &config.Config{}
	cfg.Telegram.ChatID = -100123
	cfg.Telegram.ThreadID = 7
	cfg.Notifier.SendTimeout = "bogus"

	got := mapNotifierConfig(cfg)
	require.True(t, got.Enabled)
	require.Equal(t, kit.ChatTarget{ChatID: -100123, ThreadID: 7}, got.Target)
	require.Equal(t, 10*time.Second, got.SendTimeout)
}

func TestMapLoggingConfigDefaultsTelegramChat(t *testing.T) {
	cfg := &config.Config{}
	cfg.Telegram.ChatID = 42
	cfg.Logging.Telegram.Enabled = true

	require.Equal(t, int64(42), mapLoggingConfig(cfg).Telegram.ChatID)

	cfg.Logging.Telegram.ChatID = 99
	require.Equal(t, int64(99), mapLoggingConfig(cfg).Telegram.ChatID)
}

type recordingNotifier struct{ got []kit.Notification }

func (r *recordingNotifier) Notify(_ context.Context, n kit.Notification) error {
	r.got = append(r.got, n)
	return nil
}

func TestNotifierSinkKeepsKindAndEntity(t *testing.T) {
	rec := &recordingNotifier{}
	sink := notifierSink{n: rec}

	err := sink.Deliver(context.Background(), engine.Message{Kind: "task.updated", EntityID: "123", Text: "<b>x</b>"})
	require.NoError(t, err)
	require.Len(t, rec.got, 1)
	require.Equal(t, kit.Notification{Kind: "task.updated", EntityID: "123", Text: "<b>x</b>"}, rec.got[0])
}

func TestValidateRejectsBadSchedule(t *testing.T) {
	a := &App{}
	cfg := &config.Config{}
	cfg.Digest.Overdue = "every:0s"
	cfg.Digest.Timezone = "Mars/Olympus"

	err := a.validate(context.Background(), cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "digest.overdue")
	require.Contains(t, err.Error(), "digest.timezone")

	cfg.Digest.Overdue = "09:00"
	cfg.Digest.Timezone = "Europe/Moscow"
	require.NoError(t, a.validate(context.Background(), cfg))
}

func TestMapWebhookConfigCarriesAdoption(t *testing.T) {
	cfg := &config.Config{}
	cfg.Webhook.Path = "/asana"
	require.False(t, mapWebhookConfig(cfg).AdoptSecret)

	cfg.Webhook.AdoptSecret = true
	got := mapWebhookConfig(cfg)
	require.True(t, got.AdoptSecret)
	require.Empty(t, got.Secret)
	require.Equal(t, "/asana", got.Path)
}
