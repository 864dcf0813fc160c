package config

// Config is the full on-disk configuration. Files may be YAML or JSON;
// both are decoded strictly so typos and removed keys are caught at
// reload time rather than silently ignored.
//
// Secrets (bot token, summarizer API key) are normally injected through
// the environment; the file fields exist for development setups.
type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	Filter     FilterConfig     `json:"filter"`
	Journal    JournalConfig    `json:"journal"`
	Digest     DigestConfig     `json:"digest"`
	Summarizer SummarizerConfig `json:"summarizer,omitempty"`
	Backfill   BackfillConfig   `json:"backfill,omitempty"`
	Schedule   ScheduleConfig   `json:"schedule"`
	Logging    LoggingConfig    `json:"logging"`
	Pprof      PprofConfig      `json:"pprof,omitempty"`
	Storage    *StorageConfig   `json:"storage,omitempty"`
}

type TelegramConfig struct {
	// Token falls back to the TELEGRAM_TOKEN environment variable when empty.
	Token string `json:"token,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// FilterConfig selects the chat filter mode and its parameters. The policy
// is built once at startup; changing this section requires a restart.
type FilterConfig struct {
	Mode             string   `json:"mode"`
	AllowChatIDs     []int64  `json:"allow_chat_ids,omitempty"`
	ExcludeKeywords  []string `json:"exclude_keywords,omitempty"`
	ExcludeFolders   []string `json:"exclude_folders,omitempty"`
	BlockAllChannels bool     `json:"block_all_channels,omitempty"`
}

type JournalConfig struct {
	Dir    string `json:"dir"`
	Prefix string `json:"prefix,omitempty"` // default: "messages"
	// DedupSize caps the duplicate-suppression index (default 4096 keys).
	DedupSize int `json:"dedup_size,omitempty"`
}

type DigestConfig struct {
	WindowDays int    `json:"window_days,omitempty"` // default: 7
	ReportDir  string `json:"report_dir,omitempty"`  // default: journal.dir
	// DeliverTo optionally sends the finished report to this chat.
	DeliverTo int64 `json:"deliver_to,omitempty"`
}

// SummarizerConfig points at an OpenAI-compatible completion endpoint.
// The API key comes from OPENAI_API_KEY; without it the digest falls back
// to the deterministic report.
type SummarizerConfig struct {
	Model   string `json:"model,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	// Timeout is a Go duration string for one completion attempt.
	Timeout   string `json:"timeout,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

type BackfillConfig struct {
	Enabled bool `json:"enabled"`
	// HistoryLimit is the per-chat page size (default 50).
	HistoryLimit int `json:"history_limit,omitempty"`
}

// ScheduleConfig holds the cron specs for periodic jobs. Specs follow
// robfig/cron syntax with optional seconds and descriptors (@hourly).
type ScheduleConfig struct {
	Timezone string `json:"timezone,omitempty"`
	Digest   string `json:"digest,omitempty"`   // default: "0 8 * * *"
	Counters string `json:"counters,omitempty"` // default: "@hourly"
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// PprofConfig controls the optional debug HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 (disabled)
	// so /profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
	MemProfileRate       int `json:"mem_profile_rate,omitempty"`
}

// StorageConfig controls the optional archive layer. Nil means disabled.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./siftgram_archive" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
