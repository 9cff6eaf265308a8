package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("30s", "5m"); secrets may be given as "env:NAME".
type Config struct {
	Telegram TelegramConfig    `json:"telegram"`
	Asana    AsanaConfig       `json:"asana"`
	Webhook  WebhookConfig     `json:"webhook"`
	Engine   EngineConfig      `json:"engine"`
	Mentions map[string]string `json:"mentions,omitempty"`
	Notifier NotifierConfig    `json:"notifier"`
	Digest   DigestConfig      `json:"digest"`
	Storage  StorageConfig     `json:"storage"`
	Logging  LoggingConfig     `json:"logging"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	ChatID       int64   `json:"chat_id"`
	ThreadID     int     `json:"thread_id,omitempty"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	PollTimeout  string  `json:"poll_timeout,omitempty"`
}

type AsanaConfig struct {
	Token      string   `json:"token"`
	BaseURL    string   `json:"base_url,omitempty"`
	Projects   []string `json:"projects,omitempty"`
	Timeout    string   `json:"timeout,omitempty"`
	MaxRetries int      `json:"max_retries,omitempty"`
}

type WebhookConfig struct {
	Addr         string `json:"addr,omitempty"`
	Path         string `json:"path,omitempty"`
	Secret       string `json:"secret,omitempty"`
	AdoptSecret  bool   `json:"adopt_handshake_secret,omitempty"`
	PublicURL    string `json:"public_url,omitempty"`
	MaxBodyBytes int64  `json:"max_body_bytes,omitempty"`
}

// EngineConfig tunes consolidation. Zero values fall back to engine defaults.
type EngineConfig struct {
	Locale               string `json:"locale,omitempty"`
	NewEntityWindow      string `json:"new_entity_window,omitempty"`
	EditWindow           string `json:"edit_window,omitempty"`
	AtomicDedupWindow    string `json:"atomic_dedup_window,omitempty"`
	AggregateDedupWindow string `json:"aggregate_dedup_window,omitempty"`
	DedupMaxEntries      int    `json:"dedup_max_entries,omitempty"`
	CacheTTL             string `json:"cache_ttl,omitempty"`
	UserCacheTTL         string `json:"user_cache_ttl,omitempty"`
	FetchTimeout         string `json:"fetch_timeout,omitempty"`
	NotesBudget          int    `json:"notes_budget,omitempty"`
	CommentBudget        int    `json:"comment_budget,omitempty"`
	QueueSize            int    `json:"queue_size,omitempty"`
}

type NotifierConfig struct {
	Workers     int     `json:"workers,omitempty"`
	QueueSize   int     `json:"queue_size,omitempty"`
	RatePerSec  float64 `json:"rate_per_sec,omitempty"`
	Burst       int     `json:"burst,omitempty"`
	SendTimeout string  `json:"send_timeout,omitempty"`
	HistorySize int     `json:"history_size,omitempty"`
}

type DigestConfig struct {
	Enabled   bool   `json:"enabled"`
	Timezone  string `json:"timezone,omitempty"`
	Overdue   string `json:"overdue,omitempty"`
	Deadlines string `json:"deadlines,omitempty"`
	Weekly    string `json:"weekly,omitempty"`
	MaxItems  int    `json:"max_items,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
}

type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // "", "file", "sqlite", "postgres"
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	Retention   string `json:"retention,omitempty"`
}

type LoggingConfig struct {
	Level    string                `json:"level,omitempty"`
	Console  bool                  `json:"console"`
	File     LoggingFileConfig     `json:"file"`
	Telegram LoggingTelegramConfig `json:"telegram"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type LoggingTelegramConfig struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id,omitempty"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}
