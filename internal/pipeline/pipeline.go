// Package pipeline consumes inbound events, applies the filter policy and
// journals accepted messages.
//
// A single goroutine runs the loop; per-event work never needs cross-event
// locking. Snapshot and ReportCounters may be called from other goroutines.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"siftgram/internal/classify"
	"siftgram/internal/eventbus"
	"siftgram/internal/journal"
	"siftgram/internal/lookup"
	"siftgram/internal/platform"
	"siftgram/internal/policy"
	logx "siftgram/pkg/logx"
)

// Stats are the counters of the current journal day.
type Stats struct {
	Date     string `json:"date"`
	Accepted int    `json:"accepted"`
	Filtered int    `json:"filtered"`
	Skipped  int    `json:"skipped"`
}

type Pipeline struct {
	policy   *policy.Policy
	resolver *lookup.Resolver
	dedup    *lookup.Dedup
	journal  *journal.Writer
	bus      eventbus.Bus
	log      logx.Logger
	now      func() time.Time

	mu    sync.Mutex
	stats Stats
}

func New(pol *policy.Policy, res *lookup.Resolver, dedup *lookup.Dedup, w *journal.Writer, bus eventbus.Bus, log logx.Logger) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Pipeline{
		policy:   pol,
		resolver: res,
		dedup:    dedup,
		journal:  w,
		bus:      bus,
		log:      log,
		now:      time.Now,
	}
	p.stats.Date = journal.Day(p.now())
	return p
}

// Run consumes events until ctx is canceled or events closes. An event
// already picked up always runs to completion.
func (p *Pipeline) Run(ctx context.Context, events <-chan platform.Message) error {
	p.log.Info("ingestion loop started", logx.String("mode", p.policy.ModeName()))
	for {
		select {
		case <-ctx.Done():
			p.log.Info("ingestion loop stopping")
			return nil
		case m, ok := <-events:
			if !ok {
				return nil
			}
			p.Process(ctx, m)
		}
	}
}

// Process runs one event through the stages: dedup, rotation check, chat
// lookup, classification, chat-level policy, sender lookup, message-level
// policy, journal append. Exported so the backfill path can feed fetched
// history through the same stages.
func (p *Pipeline) Process(ctx context.Context, m platform.Message) {
	key := lookup.EventKey(m.ChatID, m.ID)
	if p.dedup.Seen(key) {
		return
	}

	p.rotateIfNeeded()

	chatEnt, err := p.resolver.Chat(ctx, m.ChatID)
	if err != nil {
		p.skip("chat lookup failed", m, err)
		return
	}

	// In a dm the peer entity is the chat; the update's bot flag carries
	// over so bot conversations classify as such.
	if m.SenderBot && m.SenderID == chatEnt.ID {
		chatEnt.Bot = true
	}

	c := classify.New(chatEnt)
	if d := p.policy.EvaluateChat(c); !d.Include {
		p.filter("chat excluded", m, c, d)
		return
	}

	sender, err := p.resolver.Sender(ctx, m)
	if err != nil {
		p.skip("sender lookup failed", m, err)
		return
	}

	if d := p.policy.EvaluateMessage(m, c); !d.Include {
		p.filter("message excluded", m, c, d)
		return
	}

	senderID := m.SenderID
	if senderID == 0 {
		senderID = sender.ID
	}

	now := p.now()
	e := journal.Entry{
		Timestamp:  now.UTC().Format(time.RFC3339),
		MessageID:  m.ID,
		ChatID:     m.ChatID,
		ChatTitle:  c.Title,
		ChatType:   c.Type.String(),
		SenderID:   senderID,
		SenderName: classify.Title(sender),
		Text:       m.Text,
		EventDate:  m.Unixtime,
		FromSelf:   p.policy.FromSelf(m),
		Mention:    p.policy.Mentioned(m.Text),
		FilterMode: p.policy.ModeName(),
	}

	p.mu.Lock()
	date := p.stats.Date
	p.mu.Unlock()

	if err := p.journal.Append(date, e); err != nil {
		p.log.Error("journal append failed", logx.Int64("chat_id", m.ChatID), logx.Int("message_id", m.ID), logx.Err(err))
		p.countSkipped()
		return
	}

	p.mu.Lock()
	p.stats.Accepted++
	p.mu.Unlock()
	p.dedup.Mark(key)

	p.bus.Publish(eventbus.Event{
		Topic: eventbus.TopicAccepted,
		Data:  eventbus.Accepted{ChatID: m.ChatID, MessageID: m.ID, ChatType: c.Type.String()},
	})
	p.log.Debug("event accepted",
		logx.Int64("chat_id", m.ChatID),
		logx.Int("message_id", m.ID),
		logx.String("chat", c.Title),
		logx.String("type", c.Type.String()))
}

// rotateIfNeeded switches counters to a new journal day when the UTC date
// changed since the last event. The closed day's counters go out on the bus.
func (p *Pipeline) rotateIfNeeded() {
	date := journal.Day(p.now())

	p.mu.Lock()
	if p.stats.Date == date {
		p.mu.Unlock()
		return
	}
	closed := p.stats
	p.stats = Stats{Date: date}
	p.mu.Unlock()

	p.log.Info("journal day rotated",
		logx.String("closed", closed.Date),
		logx.String("open", date),
		logx.Int("accepted", closed.Accepted),
		logx.Int("filtered", closed.Filtered),
		logx.Int("skipped", closed.Skipped))
	p.bus.Publish(eventbus.Event{
		Topic: eventbus.TopicDayClosed,
		Data: eventbus.DayClosed{
			Date:     closed.Date,
			Accepted: closed.Accepted,
			Filtered: closed.Filtered,
			Skipped:  closed.Skipped,
		},
	})
}

func (p *Pipeline) filter(msg string, m platform.Message, c classify.Chat, d policy.Decision) {
	p.mu.Lock()
	p.stats.Filtered++
	p.mu.Unlock()
	// Filtered is a terminal disposition; a redelivery would only repeat
	// the same verdict.
	p.dedup.Mark(lookup.EventKey(m.ChatID, m.ID))
	p.log.Debug(msg,
		logx.Int64("chat_id", m.ChatID),
		logx.Int("message_id", m.ID),
		logx.String("chat", c.Title),
		logx.String("reason", d.Reason))
}

// skip counts an event that could not be processed. No dedup mark: a
// redelivery gets a fresh chance once the lookup recovers.
func (p *Pipeline) skip(msg string, m platform.Message, err error) {
	p.countSkipped()

	var rl *platform.RateLimitError
	if errors.As(err, &rl) {
		p.log.Warn("platform rate limit hit",
			logx.Int64("chat_id", m.ChatID),
			logx.Duration("retry_after", rl.RetryAfter))
		return
	}
	p.log.Debug(msg, logx.Int64("chat_id", m.ChatID), logx.Int("message_id", m.ID), logx.Err(err))
}

func (p *Pipeline) countSkipped() {
	p.mu.Lock()
	p.stats.Skipped++
	p.mu.Unlock()
}

// Snapshot returns the current day counters.
func (p *Pipeline) Snapshot() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// ReportCounters logs the day counters; the scheduler runs this hourly.
func (p *Pipeline) ReportCounters() {
	s := p.Snapshot()
	p.log.Info("ingestion counters",
		logx.String("date", s.Date),
		logx.Int("accepted", s.Accepted),
		logx.Int("filtered", s.Filtered),
		logx.Int("skipped", s.Skipped))
}
