package app

import (
	"fmt"
	"net"
	"strings"
	"time"

	"siftgram/internal/config"
	pprofsvc "siftgram/internal/observability/pprof"
	"siftgram/internal/schedule"
	"siftgram/internal/storage"
	"siftgram/internal/summarize"
)

// validateConfig is the transactional reload gate: a config that fails here
// is never committed or published. It repeats the checks the mapping
// helpers do, so a bad hot reload is rejected before anything applies it.
func validateConfig(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Filter.Mode)) {
	case "", "smart", "dm_only", "no_channels", "super_strict", "exclude_keywords", "exclude_folders", "allowlist":
	default:
		return fmt.Errorf("filter.mode: unknown %q", cfg.Filter.Mode)
	}

	if cfg.Journal.DedupSize < 0 {
		return fmt.Errorf("journal.dedup_size must be >= 0")
	}
	if cfg.Digest.WindowDays < 0 {
		return fmt.Errorf("digest.window_days must be >= 0")
	}
	if cfg.Backfill.HistoryLimit < 0 {
		return fmt.Errorf("backfill.history_limit must be >= 0")
	}

	if _, err := mapSummarizerConfig(cfg); err != nil {
		return err
	}

	if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("schedule.timezone: invalid %q: %w", tz, err)
		}
	}
	if s := strings.TrimSpace(cfg.Schedule.Digest); s != "" {
		if err := schedule.ValidSpec(s); err != nil {
			return fmt.Errorf("schedule.digest: invalid %q: %w", s, err)
		}
	}
	if s := strings.TrimSpace(cfg.Schedule.Counters); s != "" {
		if err := schedule.ValidSpec(s); err != nil {
			return fmt.Errorf("schedule.counters: invalid %q: %w", s, err)
		}
	}

	if _, err := mapPprofConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	return nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// mapSummarizerConfig converts the summarizer section. The API key is not
// part of the file config; NewApp fills it from the environment.
func mapSummarizerConfig(cfg *config.Config) (summarize.Config, error) {
	var out summarize.Config
	if cfg == nil {
		return out, nil
	}
	sc := cfg.Summarizer

	timeout, err := config.ParseDurationField("summarizer.timeout", sc.Timeout)
	if err != nil {
		return out, err
	}
	if sc.MaxTokens < 0 {
		return out, fmt.Errorf("summarizer.max_tokens must be >= 0")
	}

	out.Model = strings.TrimSpace(sc.Model)
	out.BaseURL = strings.TrimSpace(sc.BaseURL)
	out.Timeout = timeout
	out.MaxTokens = sc.MaxTokens
	return out, nil
}

// mapPprofConfig validates and converts the JSON config into the service
// config. It never starts the server.
func mapPprofConfig(cfg *config.Config) (pprofsvc.Config, error) {
	var out pprofsvc.Config
	if cfg == nil {
		return out, nil
	}
	pc := cfg.Pprof

	out.Enabled = pc.Enabled
	out.AllowInsecure = pc.AllowInsecure
	out.Token = strings.TrimSpace(pc.Token)
	out.Addr = strings.TrimSpace(pc.Addr)
	out.Prefix = strings.TrimSpace(pc.Prefix)

	if out.Addr == "" {
		out.Addr = "127.0.0.1:6060"
	}
	if out.Prefix == "" {
		out.Prefix = "/debug/pprof/"
	}

	readTO, err := config.ParseDurationOrDefault("pprof.read_timeout", pc.ReadTimeout, 5*time.Second)
	if err != nil {
		return out, err
	}
	writeTO, err := config.ParseDurationField("pprof.write_timeout", pc.WriteTimeout)
	if err != nil {
		return out, err
	}
	idleTO, err := config.ParseDurationOrDefault("pprof.idle_timeout", pc.IdleTimeout, 120*time.Second)
	if err != nil {
		return out, err
	}
	out.ReadTimeout = readTO
	out.WriteTimeout = writeTO // default 0 (disabled) so long profile captures work
	out.IdleTimeout = idleTO

	if pc.MutexProfileFraction < 0 {
		return out, fmt.Errorf("pprof.mutex_profile_fraction must be >= 0")
	}
	if pc.BlockProfileRate < 0 {
		return out, fmt.Errorf("pprof.block_profile_rate must be >= 0")
	}
	if pc.MemProfileRate < 0 {
		return out, fmt.Errorf("pprof.mem_profile_rate must be >= 0")
	}
	out.MutexProfileFraction = pc.MutexProfileFraction
	out.BlockProfileRate = pc.BlockProfileRate
	out.MemProfileRate = pc.MemProfileRate

	if out.Enabled {
		if _, _, err := net.SplitHostPort(out.Addr); err != nil {
			return out, fmt.Errorf("pprof.addr: invalid %q (expected host:port): %w", out.Addr, err)
		}
		// Security: refuse public bind without explicit opt-in.
		if !out.AllowInsecure && out.Token == "" && !isLoopbackAddr(out.Addr) {
			return out, fmt.Errorf("pprof: binding to non-loopback addr requires token or allow_insecure=true")
		}
	}

	return out, nil
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
