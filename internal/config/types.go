package config

// Config is the on-disk configuration (JSON or YAML).
//
// Durations are Go duration strings ("15m", "5s"). Secrets may be left
// empty and supplied through the environment instead (see ApplyEnv).
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Source   SourceConfig   `json:"source"`
	Announce AnnounceConfig `json:"announce"`
	Catchup  CatchupConfig  `json:"catchup"`
	Schedule ScheduleConfig `json:"schedule"`
	Metrics  MetricsConfig  `json:"metrics"`
	Roster   RosterConfig   `json:"roster"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards warn+ log lines to the announce bot's log chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id,omitempty"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the queue backend.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/queue.txt" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type SourceConfig struct {
	BaseURL       string  `json:"base_url"`
	BearerToken   string  `json:"bearer_token,omitempty"`
	UserToken     string  `json:"user_token,omitempty"`
	PageSize      int     `json:"page_size,omitempty"`
	RatePerSec    float64 `json:"rate_per_sec,omitempty"`
	RetryMax      int     `json:"retry_max,omitempty"`
	RetryBase     string  `json:"retry_base,omitempty"`
	RetryMaxDelay string  `json:"retry_max_delay,omitempty"`
	Timeout       string  `json:"timeout,omitempty"`
}

type AnnounceConfig struct {
	// Driver is "telegram" or "log" (dry run).
	Driver   string                 `json:"driver"`
	Telegram AnnounceTelegramConfig `json:"telegram"`
	LinkBase string                 `json:"link_base,omitempty"`
}

type AnnounceTelegramConfig struct {
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

type CatchupConfig struct {
	RateLimit    string `json:"rate_limit,omitempty"`    // default 15m
	Warning      string `json:"warning,omitempty"`       // default 5s
	PostCooldown string `json:"post_cooldown,omitempty"` // default 5m
	ErrorLog     string `json:"error_log,omitempty"`     // default error_catchup.txt
}

// ScheduleConfig drives watch mode. Spec accepts cron ("0 */6 * * *",
// "@hourly"), HH:MM intervals ("06:00") and durations ("6h").
type ScheduleConfig struct {
	Spec     string `json:"spec"`
	Timezone string `json:"timezone,omitempty"`
}

type MetricsConfig struct {
	Addr string `json:"addr,omitempty"` // empty disables /metrics
	// Pprof mounts /debug/pprof/ on the metrics listener.
	Pprof bool `json:"pprof,omitempty"`
}

type RosterConfig struct {
	Accounts []AccountConfig `json:"accounts"`
	Cross    []CrossConfig   `json:"cross"`
}

type AccountConfig struct {
	ID      int64  `json:"id"`
	Handle  string `json:"handle"`
	Tag     string `json:"tag"`
	Private bool   `json:"private,omitempty"`
}

// CrossConfig is one directed pair; list both directions for a symmetric
// relation, or set both to true.
type CrossConfig struct {
	From string `json:"from"`
	To   string `json:"to"`
	Both bool   `json:"both,omitempty"`
}
