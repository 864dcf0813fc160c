// Package telegram adapts the Bot API to the platform client contract.
//
// The Bot API cannot enumerate dialogs or fetch chat history, so Dialogs
// and History report ErrUnsupported and callers degrade. It also has no
// user lookup endpoint; sender entities are cached from the updates that
// carry them.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	tele "gopkg.in/telebot.v4"

	"siftgram/internal/platform"
	rtsup "siftgram/internal/runtime/supervisor"
	logx "siftgram/pkg/logx"
)

const (
	defaultPollTimeout = 10 * time.Second
	seenEntityCap      = 4096
	textLimit          = 4000
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // stores (chan<- platform.Message)
	runMu   sync.Mutex
	running bool

	// sup owns adapter internal goroutines (poll loop, drop logger, stop watcher).
	// It is created on Start() and cancelled on Stop().
	sup *rtsup.Supervisor

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the poll loop. Logged periodically to avoid per-update spam.
	droppedUpdates uint64

	// seen caches entities observed on inbound updates; they are the only
	// source of user data the Bot API offers.
	seen *lru.Cache[int64, platform.Entity]
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		OnError: func(err error, c tele.Context) {
			log.Warn("update handler error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	seen, err := lru.New[int64, platform.Entity](seenEntityCap)
	if err != nil {
		return nil, err
	}

	a := &Adapter{cfg: cfg, log: log, bot: b, seen: seen}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- platform.Message
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

// Supervisor returns the adapter's internal supervisor (nil if not started).
// This is used for operational visibility.
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	forward := func(channelPost bool) func(c tele.Context) error {
		return func(c tele.Context) error {
			m := c.Message()
			if m == nil || m.Chat == nil {
				return nil
			}
			if m.Sender != nil {
				a.seen.Add(m.Sender.ID, userEntity(m.Sender))
			}
			a.send(toMessage(m, channelPost))
			return nil
		}
	}
	a.bot.Handle(tele.OnText, forward(false))
	a.bot.Handle(tele.OnMedia, forward(false))
	a.bot.Handle(tele.OnChannelPost, forward(true))
}

func (a *Adapter) send(msg platform.Message) {
	v := a.out.Load()
	out, _ := v.(chan<- platform.Message)
	if out == nil {
		return
	}
	select {
	case out <- msg:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- platform.Message) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))),
		// adapter errors should not take down the whole app; treat as best-effort.
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	// Periodic summary for dropped updates (avoid noisy per-update logs).
	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				// Final flush.
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("inbound messages dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("inbound messages dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
				}
			}
		}
	})

	// Ensure we stop telebot when the adapter context is cancelled.
	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		if a.bot != nil {
			a.bot.Stop()
		}
	})

	// Telebot's Start() is a long-running loop. In some failure modes it can
	// exit unexpectedly; run it under a restart loop so the adapter self-heals.
	sup.GoRestart0("telebot.poll", func(c context.Context) {
		a.log.Info("polling started")
		// Start blocks until Stop() called.
		if a.bot != nil {
			a.bot.Start()
		}
		a.log.Info("polling stopped")
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		// Restart if Start() returns while context is still active.
		rtsup.WithStopOnCleanExit(false),
	)

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	// Best-effort graceful stop. Never block shutdown for too long on the long-poll.
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- platform.Message
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		a.log.Debug("telegram stop called but not running")
		return nil
	}

	if sup != nil {
		sup.Cancel()
	}

	// telebot Stop is expected to be fast; run it async just in case.
	if a.bot != nil {
		go a.bot.Stop()
	}

	// Grace window: keep shutdown snappy even if getUpdates long-poll is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		rem := time.Until(dl)
		if rem > 0 && rem < grace {
			grace = rem
		}
	}

	if sup == nil {
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Warn("telegram stop error", logx.Err(err))
	}
	return nil
}

func (a *Adapter) Self() platform.Entity {
	if a.bot == nil || a.bot.Me == nil {
		return platform.Entity{}
	}
	return userEntity(a.bot.Me)
}

func (a *Adapter) Chat(ctx context.Context, id int64) (platform.Entity, error) {
	if err := ctx.Err(); err != nil {
		return platform.Entity{}, err
	}
	c, err := a.bot.ChatByID(id)
	if err != nil {
		return platform.Entity{}, mapError(err)
	}
	e := chatEntity(c)
	if c.Type != tele.ChatPrivate {
		if n, err := a.bot.Len(c); err == nil {
			e.Members = n
		} else {
			a.log.Debug("member count unavailable", logx.Int64("chat_id", id), logx.Err(err))
		}
	}
	return e, nil
}

func (a *Adapter) User(ctx context.Context, id int64) (platform.Entity, error) {
	if e, ok := a.seen.Get(id); ok {
		return e, nil
	}
	if err := ctx.Err(); err != nil {
		return platform.Entity{}, err
	}
	// Not observed yet; a private chat with the user is the only other source.
	c, err := a.bot.ChatByID(id)
	if err != nil {
		return platform.Entity{}, mapError(err)
	}
	e := chatEntity(c)
	a.seen.Add(id, e)
	return e, nil
}

func (a *Adapter) Dialogs(ctx context.Context) ([]platform.Dialog, error) {
	return nil, platform.ErrUnsupported
}

func (a *Adapter) History(ctx context.Context, chatID int64, limit int) ([]platform.Message, error) {
	return nil, platform.ErrUnsupported
}

func (a *Adapter) SendText(ctx context.Context, chatID int64, text string) error {
	chat := &tele.Chat{ID: chatID}
	for _, chunk := range splitText(text, textLimit) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := a.bot.Send(chat, chunk); err != nil {
			return mapError(err)
		}
	}
	return nil
}

func toMessage(m *tele.Message, channelPost bool) platform.Message {
	msg := platform.Message{
		ID:          m.ID,
		ChatID:      m.Chat.ID,
		Text:        m.Text,
		Unixtime:    m.Unixtime,
		Forwarded:   m.Origin != nil,
		ChannelPost: channelPost,
	}
	if msg.Text == "" {
		msg.Text = m.Caption
	}
	if m.Sender != nil {
		msg.SenderID = m.Sender.ID
		msg.SenderBot = m.Sender.IsBot
	}
	return msg
}

func userEntity(u *tele.User) platform.Entity {
	return platform.Entity{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Bot:       u.IsBot,
	}
}

func chatEntity(c *tele.Chat) platform.Entity {
	e := platform.Entity{
		ID:        c.ID,
		Title:     c.Title,
		Username:  c.Username,
		FirstName: c.FirstName,
		LastName:  c.LastName,
	}
	switch c.Type {
	case tele.ChatChannel, tele.ChatChannelPrivate:
		e.Broadcast = true
	case tele.ChatSuperGroup:
		e.Megagroup = true
	}
	return e
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &platform.RateLimitError{RetryAfter: time.Duration(flood.RetryAfter) * time.Second}
	}
	if errors.Is(err, tele.ErrChatNotFound) {
		return platform.ErrNotFound
	}
	return err
}

// splitText splits long messages into chunks that are safe to send.
// It prefers newline boundaries.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}

		// Prefer splitting on a newline near the end of the window.
		if end < len(rs) {
			cut := -1
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' {
					// Avoid extremely small chunks.
					if i-start >= limit/3 {
						cut = i + 1
						break
					}
				}
			}
			if cut != -1 {
				end = cut
			}
		}

		chunk := strings.TrimRight(string(rs[start:end]), "\n")
		out = append(out, chunk)

		start = end
		// Skip leading newlines to avoid empty chunks.
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
