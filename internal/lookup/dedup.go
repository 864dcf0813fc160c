package lookup

import (
	"strconv"
	"sync"
)

const defaultDedupHighWater = 4096

// Dedup is a bounded insertion-ordered set of event keys. When an insert
// pushes the set past its high-water mark the oldest half is evicted in
// one sweep. Safe for concurrent use; live intake and backfill share it.
type Dedup struct {
	mu    sync.Mutex
	max   int
	seen  map[string]struct{}
	order []string
}

func NewDedup(max int) *Dedup {
	if max < 2 {
		max = defaultDedupHighWater
	}
	return &Dedup{max: max, seen: make(map[string]struct{}, max)}
}

// EventKey is the identity of one inbound event.
func EventKey(chatID int64, messageID int) string {
	return strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(messageID)
}

func (d *Dedup) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[key]
	return ok
}

// Mark records key. Marking an already-seen key is a no-op.
func (d *Dedup) Mark(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return
	}
	d.seen[key] = struct{}{}
	d.order = append(d.order, key)

	if len(d.seen) <= d.max {
		return
	}
	cut := len(d.order) / 2
	for _, k := range d.order[:cut] {
		delete(d.seen, k)
	}
	d.order = append([]string(nil), d.order[cut:]...)
}

func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
