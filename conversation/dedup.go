package conversation

import "sync"

// DedupCapacity is the size of the processed-message window. The provider's
// retry window is short; ids older than the window may be reprocessed.
const DedupCapacity = 100

// Deduper remembers the most recent provider message ids so retried
// deliveries are dropped. Strict FIFO: when full, the oldest id is evicted,
// regardless of how recently it was last seen. Not persisted across restarts.
type Deduper struct {
	mu       sync.Mutex
	capacity int
	order    []string
	seen     map[string]bool
}

func NewDeduper() *Deduper {
	return &Deduper{
		capacity: DedupCapacity,
		seen:     make(map[string]bool, DedupCapacity),
	}
}

func (d *Deduper) IsDuplicate(messageId string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[messageId]
}

func (d *Deduper) MarkProcessed(messageId string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[messageId] {
		return
	}
	if len(d.order) >= d.capacity {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
	d.order = append(d.order, messageId)
	d.seen[messageId] = true
}

// CheckAndMark is the atomic form used by the router: it reports whether the
// id was already seen and records it in the same critical section, so two
// racing deliveries of one message cannot both pass the gate.
func (d *Deduper) CheckAndMark(messageId string) (duplicate bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[messageId] {
		return true
	}
	if len(d.order) >= d.capacity {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
	d.order = append(d.order, messageId)
	d.seen[messageId] = true
	return false
}
