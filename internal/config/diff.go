package config

import (
	"reflect"
	"sort"
	"strings"

	logx "siftgram/pkg/logx"
)

// SummarizeConfigChange returns a sorted list of changed sections plus safe
// structured attrs for logging. Secrets (tokens, keys) are reported only as
// set/unset flags, never as values.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	// Telegram (never log the token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		(strings.TrimSpace(oldCfg.Telegram.Token) != "") != (strings.TrimSpace(newCfg.Telegram.Token) != "") {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
		)
	}

	if oldCfg.Filter.Mode != newCfg.Filter.Mode ||
		oldCfg.Filter.BlockAllChannels != newCfg.Filter.BlockAllChannels ||
		!reflect.DeepEqual(oldCfg.Filter.AllowChatIDs, newCfg.Filter.AllowChatIDs) ||
		!reflect.DeepEqual(oldCfg.Filter.ExcludeKeywords, newCfg.Filter.ExcludeKeywords) ||
		!reflect.DeepEqual(oldCfg.Filter.ExcludeFolders, newCfg.Filter.ExcludeFolders) {
		changed = append(changed, "filter")
		attrs = append(attrs,
			logx.String("filter.mode", newCfg.Filter.Mode),
			logx.Int("filter.allow_count", len(newCfg.Filter.AllowChatIDs)),
			logx.Int("filter.keyword_count", len(newCfg.Filter.ExcludeKeywords)),
			logx.Int("filter.folder_count", len(newCfg.Filter.ExcludeFolders)),
			logx.Bool("filter.block_all_channels", newCfg.Filter.BlockAllChannels),
		)
	}

	if oldCfg.Journal != newCfg.Journal {
		changed = append(changed, "journal")
		attrs = append(attrs,
			logx.String("journal.dir", strings.TrimSpace(newCfg.Journal.Dir)),
			logx.String("journal.prefix", strings.TrimSpace(newCfg.Journal.Prefix)),
			logx.Int("journal.dedup_size", newCfg.Journal.DedupSize),
		)
	}

	if oldCfg.Digest != newCfg.Digest {
		changed = append(changed, "digest")
		attrs = append(attrs,
			logx.Int("digest.window_days", newCfg.Digest.WindowDays),
			logx.Bool("digest.deliver_to_set", newCfg.Digest.DeliverTo != 0),
			logx.Bool("digest.report_dir_set", strings.TrimSpace(newCfg.Digest.ReportDir) != ""),
		)
	}

	if oldCfg.Summarizer != newCfg.Summarizer {
		changed = append(changed, "summarizer")
		attrs = append(attrs,
			logx.String("summarizer.model", strings.TrimSpace(newCfg.Summarizer.Model)),
			logx.Bool("summarizer.base_url_set", strings.TrimSpace(newCfg.Summarizer.BaseURL) != ""),
			logx.String("summarizer.timeout", strings.TrimSpace(newCfg.Summarizer.Timeout)),
			logx.Int("summarizer.max_tokens", newCfg.Summarizer.MaxTokens),
		)
	}

	if oldCfg.Backfill != newCfg.Backfill {
		changed = append(changed, "backfill")
		attrs = append(attrs,
			logx.Bool("backfill.enabled", newCfg.Backfill.Enabled),
			logx.Int("backfill.history_limit", newCfg.Backfill.HistoryLimit),
		)
	}

	if oldCfg.Schedule != newCfg.Schedule {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.String("schedule.timezone", strings.TrimSpace(newCfg.Schedule.Timezone)),
			logx.String("schedule.digest", strings.TrimSpace(newCfg.Schedule.Digest)),
			logx.String("schedule.counters", strings.TrimSpace(newCfg.Schedule.Counters)),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Pprof (never log the token)
	if oldCfg.Pprof != newCfg.Pprof {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.String("pprof.addr", strings.TrimSpace(newCfg.Pprof.Addr)),
			logx.String("pprof.prefix", strings.TrimSpace(newCfg.Pprof.Prefix)),
			logx.Bool("pprof.token_set", strings.TrimSpace(newCfg.Pprof.Token) != ""),
			logx.Bool("pprof.allow_insecure", newCfg.Pprof.AllowInsecure),
		)
	}

	// Storage: nil means disabled.
	oldS := derefStorage(oldCfg.Storage)
	newS := derefStorage(newCfg.Storage)
	if oldS != newS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newS.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newS.BusyTimeout)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}

// hotSections can be applied without a restart; everything else feeds
// components that are built once at startup.
var hotSections = map[string]bool{
	"logging": true,
	"pprof":   true,
}

// SplitHotCold partitions changed sections into hot-appliable ones and ones
// that need a restart to take effect.
func SplitHotCold(changed []string) (hot, cold []string) {
	for _, s := range changed {
		if hotSections[s] {
			hot = append(hot, s)
		} else {
			cold = append(cold, s)
		}
	}
	return hot, cold
}
