package digest

import (
	"testing"
	"time"

	"siftgram/internal/journal"
	logx "siftgram/pkg/logx"
)

func testEntry(id int, chatID int64, chatType, title, text string) journal.Entry {
	ts := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Minute)
	return journal.Entry{
		Timestamp:  ts.Format(time.RFC3339),
		MessageID:  id,
		ChatID:     chatID,
		ChatTitle:  title,
		ChatType:   chatType,
		SenderID:   chatID,
		SenderName: "Sender",
		Text:       text,
		EventDate:  ts.Unix(),
		FilterMode: "smart",
	}
}

func TestAggregateBuckets(t *testing.T) {
	t.Parallel()

	dmIn := testEntry(1, 7, "dm", "Ada", "hi")
	dmOut := testEntry(2, 7, "dm", "Ada", "hi back")
	dmOut.FromSelf = true
	dmOut.SenderID = 99
	grp := testEntry(3, -100, "group", "Family", "dinner at 7")
	grpMention := testEntry(4, -100, "group", "Family", "@sam pick up milk")
	grpMention.Mention = true
	ch := testEntry(5, -500, "channel", "Tech News Daily", "release notes")

	p := Aggregate([]journal.Entry{dmIn, dmOut, grp, grpMention, ch}, "smart", 7)

	if p.Total != 5 {
		t.Fatalf("Total = %d, want 5", p.Total)
	}
	if len(p.Direct) != 1 || p.Direct[0].MessageID != 1 {
		t.Fatalf("Direct bucket wrong: %+v", p.Direct)
	}
	if len(p.Groups) != 2 {
		t.Fatalf("Groups bucket = %d, want 2", len(p.Groups))
	}
	if len(p.Channels) != 1 {
		t.Fatalf("Channels bucket = %d, want 1", len(p.Channels))
	}
	if len(p.Mentions) != 1 || p.Mentions[0].MessageID != 4 {
		t.Fatalf("Mentions bucket wrong: %+v", p.Mentions)
	}
	if len(p.Self) != 1 || p.Self[0].MessageID != 2 {
		t.Fatalf("Self bucket wrong: %+v", p.Self)
	}
	if p.DistinctChats != 3 {
		t.Fatalf("DistinctChats = %d, want 3", p.DistinctChats)
	}
	// Non-self senders: 7, -100, -500.
	if p.DistinctSenders != 3 {
		t.Fatalf("DistinctSenders = %d, want 3", p.DistinctSenders)
	}
}

func TestAggregateWindowSpan(t *testing.T) {
	t.Parallel()

	a := testEntry(1, 7, "dm", "Ada", "first")
	b := testEntry(30, 7, "dm", "Ada", "last")
	bad := testEntry(2, 7, "dm", "Ada", "odd clock")
	bad.Timestamp = "not-a-time"

	p := Aggregate([]journal.Entry{b, bad, a}, "smart", 7)

	wantEarliest := time.Date(2026, 8, 25, 9, 1, 0, 0, time.UTC)
	wantLatest := time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC)
	if !p.Earliest.Equal(wantEarliest) || !p.Latest.Equal(wantLatest) {
		t.Fatalf("span = %v..%v, want %v..%v", p.Earliest, p.Latest, wantEarliest, wantLatest)
	}
}

func TestAggregateTopChatsStableTies(t *testing.T) {
	t.Parallel()

	var entries []journal.Entry
	add := func(n int, chatID int64, title string) {
		for i := 0; i < n; i++ {
			entries = append(entries, testEntry(len(entries)+1, chatID, "group", title, "x"))
		}
	}
	// First-encounter order: Alpha, Beta, Gamma, Delta.
	add(3, -1, "Alpha")
	add(3, -2, "Beta")
	add(5, -3, "Gamma")
	add(1, -4, "Delta")

	p := Aggregate(entries, "smart", 7)

	want := []string{"Gamma", "Alpha", "Beta", "Delta"}
	if len(p.TopChats) != len(want) {
		t.Fatalf("TopChats = %+v", p.TopChats)
	}
	for i, title := range want {
		if p.TopChats[i].Title != title {
			t.Fatalf("TopChats[%d] = %q, want %q (full: %+v)", i, p.TopChats[i].Title, title, p.TopChats)
		}
	}
	if p.TopChats[0].Count != 5 {
		t.Fatalf("top count = %d, want 5", p.TopChats[0].Count)
	}
}

func TestAggregateTopChatsCapped(t *testing.T) {
	t.Parallel()

	var entries []journal.Entry
	for i := 0; i < 14; i++ {
		entries = append(entries, testEntry(i+1, int64(-i-1), "group", "Chat", "x"))
	}

	p := Aggregate(entries, "smart", 7)
	if len(p.TopChats) != topChatLimit {
		t.Fatalf("TopChats length = %d, want %d", len(p.TopChats), topChatLimit)
	}
}

func TestAggregateEmpty(t *testing.T) {
	t.Parallel()

	p := Aggregate(nil, "dm_only", 7)
	if p.Total != 0 || p.DistinctChats != 0 || len(p.TopChats) != 0 {
		t.Fatalf("unexpected payload: %+v", p)
	}
	if !p.Earliest.IsZero() || !p.Latest.IsZero() {
		t.Fatalf("empty window should have zero span")
	}
}

// An entry written to a day file comes back through the window collector
// and lands unchanged in its bucket.
func TestJournalRoundTripIntoBuckets(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := journal.NewWriter(dir, "messages")

	e := testEntry(42, -100, "group", "Family", "see you saturday")
	e.Mention = true
	if err := w.Append("2026-08-24", e); err != nil {
		t.Fatalf("Append: %v", err)
	}

	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	entries := journal.CollectWindow(dir, "messages", 7, now, logx.Nop())
	if len(entries) != 1 {
		t.Fatalf("CollectWindow returned %d entries", len(entries))
	}

	p := Aggregate(entries, "smart", 7)
	if len(p.Groups) != 1 || len(p.Mentions) != 1 {
		t.Fatalf("buckets wrong: groups=%d mentions=%d", len(p.Groups), len(p.Mentions))
	}
	if got := p.Groups[0]; got != e {
		t.Fatalf("entry changed in round trip:\n got %+v\nwant %+v", got, e)
	}
}
