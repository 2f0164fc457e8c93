package gateway

import "container/list"

// dedupeCapacity bounds the broadcaster's recently-seen ingest-id cache.
// Chosen per DESIGN.md: cheaper than asking every downstream consumer to
// dedupe, keeps "exactly one firehose record per accepted ingest id"
// enforced in one place.
const dedupeCapacity = 4096

// dedupeCache is a fixed-capacity LRU of recently broadcast ingest ids,
// generalized from intelligencedev-manifold's orchestrator.DedupeStore
// Get/Set idiom into an in-process, lock-free-at-the-call-site structure
// (the caller, Broadcaster, already serializes ingest processing).
type dedupeCache struct {
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

func newDedupeCache(capacity int) *dedupeCache {
	if capacity <= 0 {
		capacity = dedupeCapacity
	}
	return &dedupeCache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

// SeenOrAdd reports whether id was already recorded; if not, it records id
// and evicts the oldest entry once over capacity.
func (c *dedupeCache) SeenOrAdd(id string) bool {
	if el, ok := c.index[id]; ok {
		c.order.MoveToFront(el)
		return true
	}
	el := c.order.PushFront(id)
	c.index[id] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.index, oldest.Value.(string))
		}
	}
	return false
}
