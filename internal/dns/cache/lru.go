package cache

import (
	"container/list"
	"sync"
)

// lruShardCount is the number of independent LRU deques the main tier
// uses to approximate global LRU order without serializing every
// insert/evict behind one lock.
const lruShardCount = 16

// lruShard is one independent least-recently-used deque. A contended
// insert just skips reordering (TryLock) rather than blocking a
// concurrent reader, since LRU order is advisory, not load-bearing.
type lruShard struct {
	mu       sync.Mutex
	order    *list.List
	elements map[uint64]*list.Element
	maxLen   int
}

func newLRUShard(maxLen int) *lruShard {
	return &lruShard{
		order:    list.New(),
		elements: make(map[uint64]*list.Element),
		maxLen:   maxLen,
	}
}

// touch records hash as most-recently-used, draining the oldest half of
// the shard if it has grown past maxLen.
func (s *lruShard) touch(hash uint64) {
	if !s.mu.TryLock() {
		return
	}
	defer s.mu.Unlock()

	if el, ok := s.elements[hash]; ok {
		s.order.MoveToBack(el)
		return
	}
	s.elements[hash] = s.order.PushBack(hash)
	if s.maxLen > 0 && s.order.Len() > s.maxLen {
		drain := s.order.Len() / 2
		for i := 0; i < drain; i++ {
			front := s.order.Front()
			if front == nil {
				break
			}
			delete(s.elements, front.Value.(uint64))
			s.order.Remove(front)
		}
	}
}

// evictOldest removes and returns the least-recently-used hash in this
// shard, or (0, false) if the shard is empty.
func (s *lruShard) evictOldest() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	front := s.order.Front()
	if front == nil {
		return 0, false
	}
	hash := front.Value.(uint64)
	delete(s.elements, hash)
	s.order.Remove(front)
	return hash, true
}

// remove drops hash from the shard, e.g. on opportunistic expiry.
func (s *lruShard) remove(hash uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.elements[hash]; ok {
		delete(s.elements, hash)
		s.order.Remove(el)
	}
}

// lruIndex fans hashes out across lruShardCount independent deques.
type lruIndex struct {
	shards [lruShardCount]*lruShard
}

func newLRUIndex(maxSize int) *lruIndex {
	perShard := (maxSize / lruShardCount) * 2
	if perShard < 1 {
		perShard = 1
	}
	idx := &lruIndex{}
	for i := range idx.shards {
		idx.shards[i] = newLRUShard(perShard)
	}
	return idx
}

func (idx *lruIndex) shardFor(hash uint64) *lruShard {
	return idx.shards[hash%lruShardCount]
}

func (idx *lruIndex) touch(hash uint64) {
	idx.shardFor(hash).touch(hash)
}

func (idx *lruIndex) remove(hash uint64) {
	idx.shardFor(hash).remove(hash)
}

// evictVictim picks an eviction candidate starting at the shard the
// given hash maps to, falling through the remaining shards in order if
// that shard has nothing to evict.
func (idx *lruIndex) evictVictim(hash uint64) (uint64, bool) {
	start := int(hash % lruShardCount) // #nosec G115
	for i := 0; i < lruShardCount; i++ {
		shard := idx.shards[(start+i)%lruShardCount]
		if victim, ok := shard.evictOldest(); ok {
			return victim, true
		}
	}
	return 0, false
}
