// Package policy decides which chats and messages the ingestion pipeline
// keeps. A Policy is built once at startup and is immutable for the run;
// nothing here reads the environment after construction.
package policy

import (
	"strings"

	"siftgram/internal/classify"
	"siftgram/internal/platform"
	logx "siftgram/pkg/logx"
)

const (
	// Chat-level size thresholds.
	SmartGroupMax   = 500  // smart: largest group included
	SmartChannelMax = 1000 // smart: largest channel included
	StrictGroupMax  = 50   // super_strict: largest group included

	// Message-level thresholds.
	MentionGateMin = 100 // groups above this size require a mention (smart, exclude_keywords)
	SpamEmojiMax   = 5   // more than this many emoji runes is spam
	SpamCapsMinLen = 20  // caps-ratio rule applies above this rune count
)

// Decision is the outcome of a policy check. Reason feeds structured logs
// and is never parsed.
type Decision struct {
	Include bool
	Reason  string
}

func include(reason string) Decision { return Decision{Include: true, Reason: reason} }
func exclude(reason string) Decision { return Decision{Include: false, Reason: reason} }

// Params carries the mode selection and its knobs as parsed from config.
type Params struct {
	Mode             string
	BlockAllChannels bool
	Keywords         []string // exclude_keywords: title substrings
	Folders          []string // exclude_folders: folder names
	AllowIDs         []int64  // allowlist: chat ids
}

// Build resolves Params into a Mode. Misconfiguration warns and falls back
// to a documented default instead of aborting startup: unknown mode names
// become smart, an empty allowlist includes everything, exclude_folders
// without folder data includes everything.
func Build(p Params, folderByChat map[int64]string, log logx.Logger) Mode {
	if log.IsZero() {
		log = logx.Nop()
	}

	switch strings.ToLower(strings.TrimSpace(p.Mode)) {
	case "", "smart":
		return Smart{BlockAllChannels: p.BlockAllChannels}
	case "dm_only":
		return DMOnly{}
	case "no_channels":
		return NoChannels{}
	case "super_strict":
		return SuperStrict{}
	case "exclude_keywords":
		return ExcludeKeywords{Keywords: p.Keywords, BlockAllChannels: p.BlockAllChannels}
	case "exclude_folders":
		if len(folderByChat) == 0 {
			log.Warn("exclude_folders has no folder data, including every chat")
		}
		return ExcludeFolders{Excluded: p.Folders, ByChat: folderByChat}
	case "allowlist":
		ids := make(map[int64]struct{}, len(p.AllowIDs))
		for _, id := range p.AllowIDs {
			ids[id] = struct{}{}
		}
		if len(ids) == 0 {
			log.Warn("allowlist is empty, including every chat")
		}
		return Allowlist{IDs: ids}
	default:
		log.Warn("unknown filter mode, using smart", logx.String("mode", p.Mode))
		return Smart{BlockAllChannels: p.BlockAllChannels}
	}
}

// Policy is the full filter configuration for one run.
type Policy struct {
	mode Mode
	self platform.Entity
}

func New(mode Mode, self platform.Entity) *Policy {
	return &Policy{mode: mode, self: self}
}

func (p *Policy) ModeName() string        { return p.mode.Name() }
func (p *Policy) Self() platform.Entity   { return p.self }
func (p *Policy) Mentioned(t string) bool { return Mentions(t, p.self) }

// FromSelf reports whether the message was authored by the account itself.
func (p *Policy) FromSelf(m platform.Message) bool {
	return p.self.ID != 0 && m.SenderID == p.self.ID
}

// EvaluateChat applies the mode's chat-level rule.
func (p *Policy) EvaluateChat(c classify.Chat) Decision {
	return p.mode.EvaluateChat(c)
}

// EvaluateMessage applies the message-level rules shared by all modes plus
// the mode's group gating: empty text, spam text, third-party forwards in
// groups, and the mention gate for gated groups.
func (p *Policy) EvaluateMessage(m platform.Message, c classify.Chat) Decision {
	if strings.TrimSpace(m.Text) == "" {
		return exclude("empty")
	}
	if SpamText(m.Text) {
		return exclude("spam")
	}

	if c.Type == classify.Group {
		fromSelf := p.FromSelf(m)
		if m.Forwarded && !fromSelf {
			return exclude("forward")
		}
		if p.mode.GateGroup(c) && !fromSelf && !Mentions(m.Text, p.self) {
			return exclude("no mention")
		}
	}

	return include("ok")
}
