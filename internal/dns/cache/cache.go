package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/heimdall-dns/heimdall/internal/dns/packet"
)

// promotionThreshold is the number of main-tier hits before an entry is
// promoted into the hot tier.
const promotionThreshold = 3

// Config sizes a Cache. MaxSize bounds the main tier; the hot tier is
// clamped to 10% of MaxSize, bounded to [1, MaxSize/2].
type Config struct {
	MaxSize       int
	NegativeTTLCap uint32 // 0 means "no explicit cap beyond the SOA minimum"
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits             int64
	Misses           int64
	NegativeHits     int64
	ExpiredEvictions int64
	LRUEvictions     int64
	Promotions       int64
	MainSize         int64
	HotSize          int64
}

type tierMap struct {
	mu sync.RWMutex
	m  map[Key]*Entry
}

func newTierMap() *tierMap { return &tierMap{m: make(map[Key]*Entry)} }

// Cache is the tiered hot/main DNS response cache: a small
// promotion-gated hot tier in front of a main tier whose LRU eviction
// order is kept in independent shards, RFC 2308 negative caching, and a
// domain-suffix index for related-entry lookups.
type Cache struct {
	cfg Config

	hot  *tierMap
	main *tierMap
	lru  *lruIndex
	suff *suffixIndex

	hotCap int

	hits, misses, negHits         atomic.Int64
	expiredEvictions, lruEvictions atomic.Int64
	promotions                     atomic.Int64
	mainSize                        atomic.Int64
}

// New creates a Cache sized per cfg.
func New(cfg Config) *Cache {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 10000
	}
	hotCap := cfg.MaxSize / 10
	if hotCap < 1 {
		hotCap = 1
	}
	if max := cfg.MaxSize / 2; hotCap > max && max >= 1 {
		hotCap = max
	}
	return &Cache{
		cfg:    cfg,
		hot:    newTierMap(),
		main:   newTierMap(),
		lru:    newLRUIndex(cfg.MaxSize),
		suff:   newSuffixIndex(),
		hotCap: hotCap,
	}
}

// Lookup probes the hot tier, then main, rewriting TTLs and promoting
// on the configured threshold. The
// returned packet's Header.ID is left as the originally cached request's
// ID; callers overwrite it with the inbound query's ID.
func (c *Cache) Lookup(key Key) (resp *packet.DNSPacket, negative bool, ok bool) {
	now := time.Now()

	c.hot.mu.RLock()
	entry, found := c.hot.m[key]
	c.hot.mu.RUnlock()
	if found {
		if entry.expired(now) {
			c.removeExpired(c.hot, key)
		} else {
			c.hits.Add(1)
			if entry.IsNegative {
				c.negHits.Add(1)
			}
			return entry.clone(now), entry.IsNegative, true
		}
	}

	c.main.mu.RLock()
	entry, found = c.main.m[key]
	c.main.mu.RUnlock()
	if found {
		if entry.expired(now) {
			c.removeExpired(c.main, key)
			c.lru.remove(key.Hash())
			c.suff.remove(key)
			c.mainSize.Add(-1)
			c.misses.Add(1)
			return nil, false, false
		}

		c.lru.touch(key.Hash())
		c.hits.Add(1)
		if entry.IsNegative {
			c.negHits.Add(1)
		}
		if atomic.AddInt32(&entry.accessCount, 1) >= promotionThreshold {
			atomic.StoreInt32(&entry.accessCount, 0)
			c.promote(key, entry)
		}
		return entry.clone(now), entry.IsNegative, true
	}

	c.misses.Add(1)
	return nil, false, false
}

func (c *Cache) removeExpired(t *tierMap, key Key) {
	t.mu.Lock()
	delete(t.m, key)
	t.mu.Unlock()
	c.expiredEvictions.Add(1)
}

func (c *Cache) promote(key Key, entry *Entry) {
	c.hot.mu.Lock()
	if len(c.hot.m) >= c.hotCap {
		for existing := range c.hot.m {
			delete(c.hot.m, existing)
			break
		}
	}
	c.hot.m[key] = entry
	c.hot.mu.Unlock()
	c.promotions.Add(1)
}

// Insert computes the final TTL (0 means "do not cache"), classifies
// the response, evicts via LRU if the main tier is at capacity, and
// indexes the key in the suffix index.
func (c *Cache) Insert(key Key, resp *packet.DNSPacket) {
	finalTTL := ComputeTTL(resp, c.cfg.NegativeTTLCap)
	if finalTTL == 0 {
		return
	}

	entry := &Entry{
		Response:   cloneForStorage(resp),
		InsertedAt: time.Now(),
		FinalTTL:   finalTTL,
		IsNegative: IsNegative(resp),
	}

	var evicted Key
	didEvict := false

	c.main.mu.Lock()
	_, existed := c.main.m[key]
	if !existed && c.cfg.MaxSize > 0 && len(c.main.m) >= c.cfg.MaxSize {
		evicted, didEvict = c.evictLocked(key.Hash())
	}
	if !existed {
		c.mainSize.Add(1)
	}
	c.main.m[key] = entry
	c.main.mu.Unlock()

	if didEvict {
		c.suff.remove(evicted)
	}
	c.lru.touch(key.Hash())
	c.suff.add(key)
}

// evictLocked removes one victim from the main tier, preferring the key
// that victimHash's LRU shard identifies, falling back to an arbitrary
// entry (deterministic tie-break: map iteration order) if that shard has
// nothing to evict. Callers must already hold c.main.mu.
func (c *Cache) evictLocked(victimHash uint64) (Key, bool) {
	if hash, ok := c.lru.evictVictim(victimHash); ok {
		for k := range c.main.m {
			if k.Hash() == hash {
				delete(c.main.m, k)
				c.mainSize.Add(-1)
				c.lruEvictions.Add(1)
				return k, true
			}
		}
	}
	for k := range c.main.m {
		delete(c.main.m, k)
		c.mainSize.Add(-1)
		c.lruEvictions.Add(1)
		return k, true
	}
	return Key{}, false
}

// RelatedBySuffix returns every non-expired key currently cached whose
// domain ends at suffix, for wildcard/apex invalidation and inspection.
func (c *Cache) RelatedBySuffix(suffix string) []Key {
	now := time.Now()
	candidates := c.suff.query(suffix)
	out := make([]Key, 0, len(candidates))
	for _, k := range candidates {
		c.main.mu.RLock()
		entry, ok := c.main.m[k]
		c.main.mu.RUnlock()
		if ok && !entry.expired(now) {
			out = append(out, k)
		}
	}
	return out
}

// Flush empties both tiers and the supporting indexes.
func (c *Cache) Flush() {
	c.hot.mu.Lock()
	c.hot.m = make(map[Key]*Entry)
	c.hot.mu.Unlock()

	c.main.mu.Lock()
	c.main.m = make(map[Key]*Entry)
	c.main.mu.Unlock()

	c.lru = newLRUIndex(c.cfg.MaxSize)
	c.suff = newSuffixIndex()
	c.mainSize.Store(0)
}

// Stats returns a snapshot of the cache's counters.
func (c *Cache) Stats() Stats {
	c.hot.mu.RLock()
	hotLen := len(c.hot.m)
	c.hot.mu.RUnlock()
	return Stats{
		Hits:             c.hits.Load(),
		Misses:           c.misses.Load(),
		NegativeHits:     c.negHits.Load(),
		ExpiredEvictions: c.expiredEvictions.Load(),
		LRUEvictions:     c.lruEvictions.Load(),
		Promotions:       c.promotions.Load(),
		MainSize:         c.mainSize.Load(),
		HotSize:          int64(hotLen),
	}
}

// cloneForStorage takes a shallow-enough copy of resp so later mutation
// of the caller's packet (e.g. rewriting the transaction ID before
// replying) never reaches back into the cached entry.
func cloneForStorage(resp *packet.DNSPacket) *packet.DNSPacket {
	out := *resp
	out.Questions = append([]packet.DNSQuestion(nil), resp.Questions...)
	out.Answers = append([]packet.DNSRecord(nil), resp.Answers...)
	out.Authorities = append([]packet.DNSRecord(nil), resp.Authorities...)
	out.Resources = append([]packet.DNSRecord(nil), resp.Resources...)
	return &out
}
