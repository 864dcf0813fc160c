package digest

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"siftgram/internal/eventbus"
	"siftgram/internal/journal"
	logx "siftgram/pkg/logx"
)

type fakeSummarizer struct {
	out    string
	err    error
	calls  int
	prompt string
}

func (f *fakeSummarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.out, nil
}

type fakeSender struct {
	chatID int64
	text   string
	err    error
	calls  int
}

func (f *fakeSender) SendText(ctx context.Context, chatID int64, text string) error {
	f.calls++
	f.chatID = chatID
	f.text = text
	return f.err
}

var genNow = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func seedJournal(t *testing.T, dir string) {
	t.Helper()
	w := journal.NewWriter(dir, "messages")
	for _, e := range []journal.Entry{
		testEntry(1, 7, "dm", "Ada", "hi"),
		testEntry(2, -100, "group", "Family", "dinner at 7"),
	} {
		if err := w.Append("2026-08-25", e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
}

func newTestGenerator(dir string, sum Summarizer, send Sender, bus eventbus.Bus) *Generator {
	g := NewGenerator(Options{
		JournalDir: dir,
		ReportDir:  dir,
		WindowDays: 7,
		Mode:       "smart",
	}, sum, send, bus, logx.Nop())
	g.now = func() time.Time { return genNow }
	return g
}

func TestGenerateWritesReportPair(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seedJournal(t, dir)

	sum := &fakeSummarizer{out: "# Weekly Digest\n\nAda said hi, Family planned dinner."}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	g := newTestGenerator(dir, sum, nil, bus)
	rep, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if rep.Fallback || rep.Messages != 2 || rep.Date != "2026-08-25" {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if rep.Body != sum.out {
		t.Fatalf("body = %q", rep.Body)
	}
	if !strings.Contains(sum.prompt, "Family") || !strings.Contains(sum.prompt, `filter mode "smart"`) {
		t.Fatalf("prompt looks wrong:\n%s", sum.prompt)
	}

	md, err := os.ReadFile(rep.MarkdownPath)
	if err != nil || string(md) != sum.out {
		t.Fatalf("markdown file: %v %q", err, md)
	}
	if !strings.HasSuffix(rep.MarkdownPath, "digest-2026-08-25.md") {
		t.Fatalf("unexpected markdown path %q", rep.MarkdownPath)
	}

	raw, err := os.ReadFile(rep.JSONPath)
	if err != nil {
		t.Fatalf("json file: %v", err)
	}
	var meta reportMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta.Messages != 2 || meta.Mode != "smart" || meta.Fallback || meta.Report != sum.out {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if meta.GeneratedAt != genNow.Format(time.RFC3339) {
		t.Fatalf("generated_at = %q", meta.GeneratedAt)
	}

	select {
	case ev := <-events:
		if ev.Topic != eventbus.TopicDigest {
			t.Fatalf("unexpected topic %q", ev.Topic)
		}
		done := ev.Data.(eventbus.DigestDone)
		if done.Messages != 2 || done.ReportPath != rep.MarkdownPath || done.Fallback {
			t.Fatalf("unexpected event payload: %+v", done)
		}
	default:
		t.Fatalf("no digest event published")
	}
}

func TestGenerateFallsBackOnSummarizerFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seedJournal(t, dir)

	sum := &fakeSummarizer{err: errors.New("boom")}
	g := newTestGenerator(dir, sum, nil, nil)

	rep, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate must not fail on summarizer errors: %v", err)
	}
	if !rep.Fallback {
		t.Fatalf("expected fallback report")
	}
	if !strings.Contains(rep.Body, "# Weekly Digest (2026-08-25)") {
		t.Fatalf("unexpected body:\n%s", rep.Body)
	}
	if sum.calls != 1 {
		t.Fatalf("summarizer calls = %d", sum.calls)
	}
}

func TestGenerateEmptyWindowSkipsSummarizer(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sum := &fakeSummarizer{out: "should not be used"}
	g := newTestGenerator(dir, sum, nil, nil)

	rep, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sum.calls != 0 {
		t.Fatalf("summarizer must not run on an empty window")
	}
	if !rep.Fallback || rep.Messages != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if !strings.Contains(rep.Body, "No messages were collected") || !strings.Contains(rep.Body, `"smart"`) {
		t.Fatalf("unexpected body:\n%s", rep.Body)
	}
}

func TestGenerateWithoutSummarizer(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seedJournal(t, dir)

	g := newTestGenerator(dir, nil, nil, nil)
	rep, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !rep.Fallback {
		t.Fatalf("missing credentials must produce the fallback report")
	}
}

func TestGenerateDeliversReport(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seedJournal(t, dir)

	sum := &fakeSummarizer{out: "digest body"}
	send := &fakeSender{}
	g := newTestGenerator(dir, sum, send, nil)
	g.opts.DeliverTo = 777

	rep, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if send.calls != 1 || send.chatID != 777 || send.text != rep.Body {
		t.Fatalf("delivery wrong: %+v", send)
	}
}

func TestGenerateToleratesDeliveryFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seedJournal(t, dir)

	send := &fakeSender{err: errors.New("flood wait")}
	g := newTestGenerator(dir, &fakeSummarizer{out: "body"}, send, nil)
	g.opts.DeliverTo = 777

	if _, err := g.Generate(context.Background()); err != nil {
		t.Fatalf("delivery failure must not fail the run: %v", err)
	}
}
