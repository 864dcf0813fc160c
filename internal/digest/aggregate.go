// Package digest aggregates a trailing window of journal entries into
// bucketed statistics and renders the weekly report.
package digest

import (
	"sort"
	"time"

	"siftgram/internal/journal"
)

const topChatLimit = 10

// ChatCount ranks one chat by message volume.
type ChatCount struct {
	ChatID int64  `json:"chat_id"`
	Title  string `json:"title"`
	Count  int    `json:"count"`
}

// Payload is the aggregated view of one collection window. Buckets
// overlap: a group message that mentions the account appears in both
// Groups and Mentions.
type Payload struct {
	Mode       string
	WindowDays int

	Direct   []journal.Entry
	Groups   []journal.Entry
	Channels []journal.Entry
	Mentions []journal.Entry
	Self     []journal.Entry

	Total           int
	DistinctChats   int
	DistinctSenders int
	Earliest        time.Time
	Latest          time.Time
	TopChats        []ChatCount
}

// Aggregate buckets the entries and computes the window statistics.
// Total counts every entry once regardless of bucket overlap; sender
// counts ignore self-authored entries.
func Aggregate(entries []journal.Entry, mode string, windowDays int) Payload {
	p := Payload{Mode: mode, WindowDays: windowDays, Total: len(entries)}

	chats := map[int64]struct{}{}
	senders := map[int64]struct{}{}
	counts := map[int64]int{}
	var order []int64
	titles := map[int64]string{}

	for _, e := range entries {
		switch e.ChatType {
		case "dm":
			if !e.FromSelf {
				p.Direct = append(p.Direct, e)
			}
		case "group":
			p.Groups = append(p.Groups, e)
		case "channel":
			p.Channels = append(p.Channels, e)
		}
		if e.Mention {
			p.Mentions = append(p.Mentions, e)
		}
		if e.FromSelf {
			p.Self = append(p.Self, e)
		} else {
			senders[e.SenderID] = struct{}{}
		}

		chats[e.ChatID] = struct{}{}
		if _, seen := counts[e.ChatID]; !seen {
			order = append(order, e.ChatID)
			titles[e.ChatID] = e.ChatTitle
		}
		counts[e.ChatID]++

		if ts, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
			if p.Earliest.IsZero() || ts.Before(p.Earliest) {
				p.Earliest = ts
			}
			if p.Latest.IsZero() || ts.After(p.Latest) {
				p.Latest = ts
			}
		}
	}

	p.DistinctChats = len(chats)
	p.DistinctSenders = len(senders)

	ranked := make([]ChatCount, 0, len(order))
	for _, id := range order {
		ranked = append(ranked, ChatCount{ChatID: id, Title: titles[id], Count: counts[id]})
	}
	// Stable: ties keep first-encountered order.
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Count > ranked[j].Count })
	if len(ranked) > topChatLimit {
		ranked = ranked[:topChatLimit]
	}
	p.TopChats = ranked

	return p
}
