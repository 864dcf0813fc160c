package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "siftgram/pkg/logx"
)

var testNow = time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)

func entry(id int, text string) Entry {
	return Entry{
		Timestamp:  testNow.Format(time.RFC3339),
		MessageID:  id,
		ChatID:     7,
		ChatTitle:  "Family",
		ChatType:   "group",
		SenderID:   9,
		SenderName: "Ada",
		Text:       text,
		EventDate:  testNow.Unix(),
		FilterMode: "smart",
	}
}

func TestAppendReadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := NewWriter(dir, "messages")
	date := Day(testNow)

	if err := w.Append(date, entry(1, "dinner at 7")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Append(date, entry(2, "bring dessert")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := ReadDay(dir, "messages", date)
	if err != nil {
		t.Fatalf("ReadDay: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Text != "dinner at 7" || got[1].Text != "bring dessert" {
		t.Fatalf("entries out of order: %+v", got)
	}
	if got[0].ChatTitle != "Family" || got[0].FilterMode != "smart" {
		t.Fatalf("fields lost in round trip: %+v", got[0])
	}

	// The on-disk form stays a readable JSON array.
	raw, err := os.ReadFile(w.FilePath(date))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	s := string(raw)
	if !strings.HasPrefix(s, "[") || !strings.Contains(s, "\n  {") {
		t.Fatalf("file is not a pretty-printed array:\n%s", s)
	}
	if !strings.Contains(s, `"is_from_self"`) {
		t.Fatalf("snake_case keys missing:\n%s", s)
	}
}

func TestFilePathNaming(t *testing.T) {
	t.Parallel()

	w := NewWriter("/var/lib/siftgram", "messages")
	want := filepath.Join("/var/lib/siftgram", "messages-2026-08-25.json")
	if got := w.FilePath("2026-08-25"); got != want {
		t.Fatalf("FilePath = %q, want %q", got, want)
	}
}

func TestReadDayMissingFile(t *testing.T) {
	t.Parallel()

	got, err := ReadDay(t.TempDir(), "messages", "2026-08-25")
	if err != nil {
		t.Fatalf("missing file should be empty input, got error %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no entries, got %d", len(got))
	}
}

func TestReadDayMalformedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "messages-2026-08-25.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := ReadDay(dir, "messages", "2026-08-25"); err == nil {
		t.Fatalf("malformed file should surface an error to the caller")
	}
}

func TestAppendRecoversFromCorruptFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := NewWriter(dir, "messages")
	date := "2026-08-25"

	if err := os.WriteFile(w.FilePath(date), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := w.Append(date, entry(1, "fresh start")); err != nil {
		t.Fatalf("Append over corrupt file: %v", err)
	}

	got, err := ReadDay(dir, "messages", date)
	if err != nil {
		t.Fatalf("ReadDay: %v", err)
	}
	if len(got) != 1 || got[0].Text != "fresh start" {
		t.Fatalf("unexpected entries: %+v", got)
	}
	if _, err := os.Stat(w.FilePath(date) + ".corrupt"); err != nil {
		t.Fatalf("corrupt file should be preserved: %v", err)
	}
}

func TestCollectWindow(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := NewWriter(dir, "messages")

	today := Day(testNow)
	twoDaysAgo := Day(testNow.AddDate(0, 0, -2))
	outside := Day(testNow.AddDate(0, 0, -7))

	if err := w.Append(today, entry(1, "today")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Append(twoDaysAgo, entry(2, "earlier")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Append(outside, entry(3, "too old")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got := CollectWindow(dir, "messages", 7, testNow, logx.Nop())
	if len(got) != 2 {
		t.Fatalf("expected 2 entries inside the window, got %d", len(got))
	}
	if got[0].Text != "today" || got[1].Text != "earlier" {
		t.Fatalf("descending-recency order violated: %+v", got)
	}
}

func TestCollectWindowSkipsMalformed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := NewWriter(dir, "messages")
	today := Day(testNow)
	yesterday := Day(testNow.AddDate(0, 0, -1))

	if err := w.Append(today, entry(1, "good")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := os.WriteFile(filePath(dir, "messages", yesterday), []byte("][ broken"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got := CollectWindow(dir, "messages", 7, testNow, logx.Nop())
	if len(got) != 1 || got[0].Text != "good" {
		t.Fatalf("malformed day should be skipped, got %+v", got)
	}
}
