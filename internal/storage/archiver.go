package storage

import (
	"context"

	"siftgram/internal/eventbus"
	logx "siftgram/pkg/logx"
)

// Archiver subscribes to the event bus and persists day summaries and
// digest runs. Archive failures are logged and never propagate; the
// archive is an operational convenience, not part of the ingest path.
type Archiver struct {
	store Store
	bus   eventbus.Bus
	log   logx.Logger
}

func NewArchiver(store Store, bus eventbus.Bus, log logx.Logger) *Archiver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Archiver{store: store, bus: bus, log: log}
}

// Run consumes bus events until the context ends. Returns nil on a clean
// shutdown so a supervisor does not restart it.
func (a *Archiver) Run(ctx context.Context) error {
	if a.store == nil || a.bus == nil {
		return nil
	}
	events, unsub := a.bus.Subscribe(16)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			a.handle(ctx, ev)
		}
	}
}

func (a *Archiver) handle(ctx context.Context, ev eventbus.Event) {
	switch ev.Topic {
	case eventbus.TopicDayClosed:
		d, ok := ev.Data.(eventbus.DayClosed)
		if !ok {
			return
		}
		err := a.store.SaveDaySummary(ctx, DaySummary{
			Date:     d.Date,
			Accepted: d.Accepted,
			Filtered: d.Filtered,
			Skipped:  d.Skipped,
			ClosedAt: ev.Time,
		})
		if err != nil {
			a.log.Warn("archiving day summary failed", logx.String("date", d.Date), logx.Err(err))
		}
	case eventbus.TopicDigest:
		d, ok := ev.Data.(eventbus.DigestDone)
		if !ok {
			return
		}
		err := a.store.SaveDigestRun(ctx, DigestRun{
			At:         ev.Time,
			Date:       ev.Time.UTC().Format("2006-01-02"),
			Mode:       d.Mode,
			WindowDays: d.WindowDays,
			Messages:   d.Messages,
			Fallback:   d.Fallback,
			ReportPath: d.ReportPath,
		})
		if err != nil {
			a.log.Warn("archiving digest run failed", logx.Err(err))
		}
	}
}
