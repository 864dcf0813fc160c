package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"siftgram/internal/eventbus"
	"siftgram/internal/journal"
	logx "siftgram/pkg/logx"
)

const DefaultWindowDays = 7

const reportPrefix = "digest"

// Summarizer produces prose from a digest prompt.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// Sender delivers the finished report to a chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Options configures a digest run.
type Options struct {
	JournalDir string
	Prefix     string
	ReportDir  string
	WindowDays int
	Mode       string
	DeliverTo  int64
}

// Generator reads the journal window, aggregates it and writes the report
// pair. A nil summarizer means no credentials are configured; every run
// then produces the fallback report.
type Generator struct {
	opts Options
	sum  Summarizer
	send Sender
	bus  eventbus.Bus
	log  logx.Logger
	now  func() time.Time
}

func NewGenerator(opts Options, sum Summarizer, send Sender, bus eventbus.Bus, log logx.Logger) *Generator {
	if opts.Prefix == "" {
		opts.Prefix = journal.DefaultPrefix
	}
	if opts.ReportDir == "" {
		opts.ReportDir = opts.JournalDir
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = DefaultWindowDays
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Generator{opts: opts, sum: sum, send: send, bus: bus, log: log, now: time.Now}
}

// Report describes one finished digest run.
type Report struct {
	Date         string
	Mode         string
	WindowDays   int
	Messages     int
	Fallback     bool
	Body         string
	MarkdownPath string
	JSONPath     string
}

type reportMeta struct {
	GeneratedAt     string      `json:"generated_at"`
	Date            string      `json:"date"`
	WindowDays      int         `json:"window_days"`
	Mode            string      `json:"mode"`
	Messages        int         `json:"messages"`
	DistinctChats   int         `json:"distinct_chats"`
	DistinctSenders int         `json:"distinct_senders"`
	TopChats        []ChatCount `json:"top_chats,omitempty"`
	Fallback        bool        `json:"fallback"`
	Report          string      `json:"report"`
}

// Generate runs one digest pass. An empty window produces the canned
// report without touching the summarizer; a summarizer failure degrades
// to the fallback report. Only file writes can fail the run.
func (g *Generator) Generate(ctx context.Context) (Report, error) {
	now := g.now()
	date := journal.Day(now)

	entries := journal.CollectWindow(g.opts.JournalDir, g.opts.Prefix, g.opts.WindowDays, now, g.log)
	p := Aggregate(entries, g.opts.Mode, g.opts.WindowDays)

	var body string
	fallback := false
	switch {
	case p.Total == 0:
		body = RenderEmpty(p.Mode, p.WindowDays, date)
		fallback = true
	case g.sum == nil:
		g.log.Info("summarizer not configured, writing fallback report")
		body = RenderFallback(p, date)
		fallback = true
	default:
		out, err := g.sum.Summarize(ctx, BuildPrompt(p))
		if err != nil {
			g.log.Warn("summarization failed, writing fallback report", logx.Err(err))
			body = RenderFallback(p, date)
			fallback = true
		} else {
			body = out
		}
	}

	mdPath, jsonPath, err := g.writeFiles(date, now, p, body, fallback)
	if err != nil {
		return Report{}, err
	}

	if g.send != nil && g.opts.DeliverTo != 0 {
		if err := g.send.SendText(ctx, g.opts.DeliverTo, body); err != nil {
			g.log.Warn("digest delivery failed",
				logx.Int64("chat_id", g.opts.DeliverTo),
				logx.Err(err))
		}
	}

	if g.bus != nil {
		g.bus.Publish(eventbus.Event{
			Topic: eventbus.TopicDigest,
			Data: eventbus.DigestDone{
				Mode:       p.Mode,
				WindowDays: p.WindowDays,
				Messages:   p.Total,
				ReportPath: mdPath,
				Fallback:   fallback,
			},
		})
	}

	g.log.Info("digest generated",
		logx.String("date", date),
		logx.Int("messages", p.Total),
		logx.Int("chats", p.DistinctChats),
		logx.Bool("fallback", fallback))

	return Report{
		Date:         date,
		Mode:         p.Mode,
		WindowDays:   p.WindowDays,
		Messages:     p.Total,
		Fallback:     fallback,
		Body:         body,
		MarkdownPath: mdPath,
		JSONPath:     jsonPath,
	}, nil
}

func (g *Generator) writeFiles(date string, now time.Time, p Payload, body string, fallback bool) (string, string, error) {
	if err := os.MkdirAll(g.opts.ReportDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create report dir: %w", err)
	}

	mdPath := filepath.Join(g.opts.ReportDir, fmt.Sprintf("%s-%s.md", reportPrefix, date))
	if err := writeFileAtomic(mdPath, []byte(body)); err != nil {
		return "", "", fmt.Errorf("write report: %w", err)
	}

	meta := reportMeta{
		GeneratedAt:     now.UTC().Format(time.RFC3339),
		Date:            date,
		WindowDays:      p.WindowDays,
		Mode:            p.Mode,
		Messages:        p.Total,
		DistinctChats:   p.DistinctChats,
		DistinctSenders: p.DistinctSenders,
		TopChats:        p.TopChats,
		Fallback:        fallback,
		Report:          body,
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("encode report metadata: %w", err)
	}
	jsonPath := filepath.Join(g.opts.ReportDir, fmt.Sprintf("%s-%s.json", reportPrefix, date))
	if err := writeFileAtomic(jsonPath, append(b, '\n')); err != nil {
		return "", "", fmt.Errorf("write report metadata: %w", err)
	}

	return mdPath, jsonPath, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
