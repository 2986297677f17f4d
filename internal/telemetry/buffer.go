package telemetry

// outbound is one publish waiting for the broker.
type outbound struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// backlog holds publishes made while the broker is unreachable, oldest
// first. When full it evicts the oldest QoS 0 entry, or the oldest entry
// if none is QoS 0, so lifecycle messages outlive per-pass engine events.
// The caller synchronizes.
type backlog struct {
	queue   []outbound
	limit   int
	evicted int // since the last take
}

func newBacklog(limit int) *backlog {
	if limit < 1 {
		limit = 1
	}
	return &backlog{queue: make([]outbound, 0, limit), limit: limit}
}

// add queues m. It reports true on the first eviction since the last take.
func (b *backlog) add(m outbound) bool {
	first := false
	if len(b.queue) >= b.limit {
		b.evict()
		b.evicted++
		first = b.evicted == 1
	}
	b.queue = append(b.queue, m)
	return first
}

func (b *backlog) evict() {
	victim := 0
	for i, m := range b.queue {
		if m.qos == 0 {
			victim = i
			break
		}
	}
	b.queue = append(b.queue[:victim], b.queue[victim+1:]...)
}

// take empties the backlog. It returns the entries oldest first and how
// many were evicted since the previous take.
func (b *backlog) take() ([]outbound, int) {
	evicted := b.evicted
	b.evicted = 0
	if len(b.queue) == 0 {
		return nil, evicted
	}
	out := b.queue
	b.queue = make([]outbound, 0, b.limit)
	return out, evicted
}

func (b *backlog) len() int {
	return len(b.queue)
}
