// Package cache is the tiered hot/main DNS response cache: a small
// promotion-gated hot tier backed by a main tier with sharded LRU
// eviction order, RFC 2308 negative caching, a domain-suffix index for
// related-entry queries, and binary/legacy-JSON snapshot persistence.
package cache

import (
	"hash/fnv"
	"strings"

	"github.com/heimdall-dns/heimdall/internal/dns/packet"
)

// Key identifies one cached RRset: a lowercase domain, record type, and
// class. Equality and hashing both go through the precomputed hash so a
// key can be used as a plain map key while still exposing its hash to
// the LRU shard selector and suffix index.
type Key struct {
	Domain string
	QType  packet.QueryType
	QClass uint16
	hash   uint64
}

// NewKey builds a cache key for domain/qtype/qclass, lowercasing the
// domain once up front (DNS names are case-insensitive).
func NewKey(domain string, qtype packet.QueryType, qclass uint16) Key {
	lower := strings.ToLower(domain)
	k := Key{Domain: lower, QType: qtype, QClass: qclass}
	k.hash = computeHash(lower, qtype, qclass)
	return k
}

// Hash returns the precomputed 64-bit hash used for shard selection and
// as the suffix-index bucket key.
func (k Key) Hash() uint64 { return k.hash }

func computeHash(domain string, qtype packet.QueryType, qclass uint16) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(domain))
	_, _ = h.Write([]byte{byte(qtype >> 8), byte(qtype), byte(qclass >> 8), byte(qclass)})
	return h.Sum64()
}
