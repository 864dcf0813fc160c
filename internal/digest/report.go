package digest

import (
	"fmt"
	"strings"
	"time"

	"siftgram/internal/journal"
)

// Prompt size is bounded so a busy week cannot blow the token budget.
const (
	maxPromptPerBucket = 20
	maxPromptTextLen   = 200
)

// BuildPrompt renders the payload as the user prompt for the summarizer.
// Buckets are capped and message text truncated.
func BuildPrompt(p Payload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Saved messages from a %d-day window, filter mode %q.\n", p.WindowDays, p.Mode)
	fmt.Fprintf(&b, "%d messages across %d chats from %d senders.\n", p.Total, p.DistinctChats, p.DistinctSenders)

	writeBucket(&b, "Direct messages", p.Direct)
	writeBucket(&b, "Group chats", p.Groups)
	writeBucket(&b, "Channels", p.Channels)
	writeBucket(&b, "Mentions", p.Mentions)
	writeBucket(&b, "Your own messages", p.Self)

	return b.String()
}

func writeBucket(b *strings.Builder, name string, entries []journal.Entry) {
	if len(entries) == 0 {
		return
	}
	b.WriteString("\n## " + name)
	if len(entries) > maxPromptPerBucket {
		fmt.Fprintf(b, " (first %d of %d)\n", maxPromptPerBucket, len(entries))
		entries = entries[:maxPromptPerBucket]
	} else {
		fmt.Fprintf(b, " (%d)\n", len(entries))
	}
	for _, e := range entries {
		b.WriteString(promptLine(e))
	}
}

func promptLine(e journal.Entry) string {
	text := truncate(e.Text, maxPromptTextLen)
	if ts, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
		return fmt.Sprintf("- [%s] %s in %s: %s\n", ts.Format("Jan 2 15:04"), e.SenderName, e.ChatTitle, text)
	}
	return fmt.Sprintf("- %s in %s: %s\n", e.SenderName, e.ChatTitle, text)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

// RenderFallback builds the deterministic Markdown report used when the
// summarizer is unavailable or fails. Same statistics, no prose.
func RenderFallback(p Payload, date string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Weekly Digest (%s)\n\n", date)
	fmt.Fprintf(&b, "%d messages in the %d-day window, filter mode %q.\n", p.Total, p.WindowDays, p.Mode)
	fmt.Fprintf(&b, "%d chats, %d senders.\n", p.DistinctChats, p.DistinctSenders)
	if !p.Earliest.IsZero() {
		fmt.Fprintf(&b, "Window spans %s to %s UTC.\n",
			p.Earliest.UTC().Format("2006-01-02 15:04"),
			p.Latest.UTC().Format("2006-01-02 15:04"))
	}

	b.WriteString("\n## Buckets\n\n")
	fmt.Fprintf(&b, "- Direct messages: %d\n", len(p.Direct))
	fmt.Fprintf(&b, "- Group chats: %d\n", len(p.Groups))
	fmt.Fprintf(&b, "- Channels: %d\n", len(p.Channels))
	fmt.Fprintf(&b, "- Mentions: %d\n", len(p.Mentions))
	fmt.Fprintf(&b, "- Your own messages: %d\n", len(p.Self))

	if len(p.TopChats) > 0 {
		b.WriteString("\n## Busiest chats\n\n")
		for i, c := range p.TopChats {
			fmt.Fprintf(&b, "%d. %s (%d messages)\n", i+1, c.Title, c.Count)
		}
	}

	return b.String()
}

// RenderEmpty is the canned report for a window with no messages.
func RenderEmpty(mode string, windowDays int, date string) string {
	return fmt.Sprintf("# Weekly Digest (%s)\n\nNo messages were collected in the %d-day window with filter mode %q.\n",
		date, windowDays, mode)
}
