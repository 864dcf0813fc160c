package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Topic names the in-process signals the service emits.
type Topic string

const (
	// TopicAccepted fires for every journaled event (Data: Accepted).
	TopicAccepted Topic = "ingest.accepted"
	// TopicDayClosed fires on daily rotation (Data: DayClosed).
	TopicDayClosed Topic = "ingest.day_closed"
	// TopicDigest fires after a digest run (Data: DigestDone).
	TopicDigest Topic = "digest.done"
)

// Accepted describes one journaled event.
type Accepted struct {
	ChatID    int64
	MessageID int
	ChatType  string
}

// DayClosed carries the final counters of a rotated journal day.
type DayClosed struct {
	Date     string
	Accepted int
	Filtered int
	Skipped  int
}

// DigestDone describes a finished digest run.
type DigestDone struct {
	Mode       string
	WindowDays int
	Messages   int
	ReportPath string
	Fallback   bool
}

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
type Event struct {
	Topic Topic
	Time  time.Time
	Data  any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus.
//
// It intentionally does not own any background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot subscribers so Publish doesn't hold locks while attempting sends.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// Non-blocking delivery. If subscriber is slow, we drop.
		// If a subscriber unsubscribes concurrently and the channel closes,
		// recover from a possible panic (send on closed channel).
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			// Closing is safe because Publish recovers from send panics.
			close(ch)
		})
	}
	return ch, unsub
}
