package cache

import (
	"time"

	"github.com/heimdall-dns/heimdall/internal/dns/packet"
)

// Entry is one cached response. The stored Response is never mutated in
// place after insert; clone returns a TTL-rewritten deep-enough copy for
// every read, so concurrent readers never observe another reader's
// rewritten TTLs.
type Entry struct {
	Response    *packet.DNSPacket
	InsertedAt  time.Time
	FinalTTL    uint32 // the TTL computed at insert time (min over records, or negative-cache TTL)
	IsNegative  bool
	accessCount int32 // promotion counter, main tier only; hot-tier entries don't track it
}

// remaining returns the entry's remaining TTL in seconds at now, or -1 if
// the entry has expired and must be treated as a miss.
func (e *Entry) remaining(now time.Time) int64 {
	elapsed := now.Sub(e.InsertedAt).Seconds()
	rem := int64(e.FinalTTL) - int64(elapsed)
	if rem <= 0 {
		return -1
	}
	return rem
}

// expired reports whether the entry's remaining TTL has reached zero.
func (e *Entry) expired(now time.Time) bool {
	return e.remaining(now) <= 0
}

// clone returns a response whose answer/authority/additional record TTLs
// are rewritten to the entry's remaining TTL at now, with the original
// transaction ID left to the caller to overwrite. Returns nil if the
// entry has already expired.
func (e *Entry) clone(now time.Time) *packet.DNSPacket {
	rem := e.remaining(now)
	if rem < 0 {
		return nil
	}
	ttl := uint32(rem) // #nosec G115 -- rem is bounded by FinalTTL, a uint32 at insert
	out := *e.Response
	out.Questions = append([]packet.DNSQuestion(nil), e.Response.Questions...)
	out.Answers = rewriteTTLs(e.Response.Answers, ttl)
	out.Authorities = rewriteTTLs(e.Response.Authorities, ttl)
	out.Resources = rewriteTTLs(e.Response.Resources, ttl)
	return &out
}

func rewriteTTLs(records []packet.DNSRecord, ttl uint32) []packet.DNSRecord {
	if len(records) == 0 {
		return records
	}
	out := make([]packet.DNSRecord, len(records))
	for i, r := range records {
		out[i] = r
		if r.Type != packet.OPT {
			out[i].TTL = ttl
		}
	}
	return out
}
