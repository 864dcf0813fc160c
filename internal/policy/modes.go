package policy

import (
	"strings"

	"siftgram/internal/classify"
)

// Mode is one chat-level filtering strategy. Each implementation carries
// its own parameters; callers go through the single evaluate entry point
// and never inspect the concrete type.
type Mode interface {
	Name() string
	EvaluateChat(c classify.Chat) Decision
	// GateGroup reports whether group messages in c additionally require a
	// mention of self (or self-authorship) to pass.
	GateGroup(c classify.Chat) bool
}

// Smart is the default mode: keep person-to-person traffic, cap group and
// channel sizes, drop spam-titled surfaces.
type Smart struct {
	BlockAllChannels bool
}

func (Smart) Name() string { return "smart" }

func (m Smart) EvaluateChat(c classify.Chat) Decision {
	switch c.Type {
	case classify.DM:
		return include("dm")
	case classify.Channel:
		if m.BlockAllChannels {
			return exclude("channels blocked")
		}
		if c.Entity.Members > SmartChannelMax {
			return exclude("channel too large")
		}
		if SpamTitle(c.Title) {
			return exclude("spam title")
		}
		return include("channel")
	case classify.Group:
		if SpamTitle(c.Title) {
			return exclude("spam title")
		}
		if c.Entity.Members > 0 && c.Entity.Members <= SmartGroupMax {
			return include("group")
		}
		return exclude("group too large or size unknown")
	default:
		return exclude("bot chat")
	}
}

func (Smart) GateGroup(c classify.Chat) bool { return c.Entity.Members > MentionGateMin }

// DMOnly keeps person-to-person chats and nothing else.
type DMOnly struct{}

func (DMOnly) Name() string { return "dm_only" }

func (DMOnly) EvaluateChat(c classify.Chat) Decision {
	if c.Type == classify.DM {
		return include("dm")
	}
	return exclude("not a dm")
}

func (DMOnly) GateGroup(classify.Chat) bool { return false }

// NoChannels drops broadcast channels and spam-titled groups, keeps the rest.
type NoChannels struct{}

func (NoChannels) Name() string { return "no_channels" }

func (NoChannels) EvaluateChat(c classify.Chat) Decision {
	switch c.Type {
	case classify.Channel:
		return exclude("channel")
	case classify.Group:
		if SpamTitle(c.Title) {
			return exclude("spam title")
		}
	}
	return include(string(c.Type))
}

func (NoChannels) GateGroup(classify.Chat) bool { return false }

// SuperStrict keeps dms and small groups only; every surviving group
// message is mention-gated.
type SuperStrict struct{}

func (SuperStrict) Name() string { return "super_strict" }

func (SuperStrict) EvaluateChat(c classify.Chat) Decision {
	switch c.Type {
	case classify.DM:
		return include("dm")
	case classify.Group:
		if c.Entity.Members > 0 && c.Entity.Members <= StrictGroupMax {
			return include("small group")
		}
		return exclude("group too large or size unknown")
	default:
		return exclude(string(c.Type))
	}
}

func (SuperStrict) GateGroup(classify.Chat) bool { return true }

// ExcludeKeywords drops chats whose title contains a configured keyword
// (case-insensitive substring match).
type ExcludeKeywords struct {
	Keywords         []string
	BlockAllChannels bool
}

func (ExcludeKeywords) Name() string { return "exclude_keywords" }

func (m ExcludeKeywords) EvaluateChat(c classify.Chat) Decision {
	title := strings.ToLower(c.Title)
	for _, kw := range m.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(title, kw) {
			return exclude("keyword: " + kw)
		}
	}
	if m.BlockAllChannels && c.Type == classify.Channel {
		return exclude("channels blocked")
	}
	return include(string(c.Type))
}

func (ExcludeKeywords) GateGroup(c classify.Chat) bool { return c.Entity.Members > MentionGateMin }

// ExcludeFolders drops chats assigned to one of the named folders. The
// chat-to-folder map is built once at startup; without folder data the
// mode includes everything.
type ExcludeFolders struct {
	Excluded []string
	ByChat   map[int64]string // chat id -> folder name
}

func (ExcludeFolders) Name() string { return "exclude_folders" }

func (m ExcludeFolders) EvaluateChat(c classify.Chat) Decision {
	folder, ok := m.ByChat[c.Entity.ID]
	if !ok || folder == "" {
		return include("no folder")
	}
	for _, ex := range m.Excluded {
		if strings.EqualFold(strings.TrimSpace(ex), folder) {
			return exclude("folder: " + folder)
		}
	}
	return include("folder: " + folder)
}

func (ExcludeFolders) GateGroup(classify.Chat) bool { return false }

// Allowlist keeps exactly the listed chat ids. An empty list is a
// misconfiguration; Build warns and the mode includes everything.
type Allowlist struct {
	IDs map[int64]struct{}
}

func (Allowlist) Name() string { return "allowlist" }

func (m Allowlist) EvaluateChat(c classify.Chat) Decision {
	if len(m.IDs) == 0 {
		return include("allowlist empty")
	}
	if _, ok := m.IDs[c.Entity.ID]; ok {
		return include("allowlisted")
	}
	return exclude("not allowlisted")
}

func (Allowlist) GateGroup(classify.Chat) bool { return false }
