package cache

import (
	"github.com/heimdall-dns/heimdall/internal/dns/packet"
)

// DefaultNegativeTTL is the short fallback used when a negative response
// carries no parseable SOA.
const DefaultNegativeTTL = 60

// DefaultPositiveTTL is the short fallback used when a positive response
// has an empty/invalid TTL shape.
const DefaultPositiveTTL = 300

// IsNegative reports whether resp is a negative response per RFC 2308:
// rcode=NXDOMAIN, or rcode=NOERROR with zero answers for a query that
// actually asked something and either carries AA or has authority
// records.
func IsNegative(resp *packet.DNSPacket) bool {
	if resp.Header.ResCode == packet.RcodeNxDomain {
		return true
	}
	if resp.Header.ResCode != packet.RcodeNoError {
		return false
	}
	if len(resp.Answers) != 0 {
		return false
	}
	if len(resp.Questions) == 0 {
		return false
	}
	if !resp.Header.Response {
		return false
	}
	return resp.Header.AuthoritativeAnswer || len(resp.Authorities) > 0
}

// ComputeTTL derives the TTL to cache resp under: negative responses are
// bounded by the first SOA's MINIMUM field (itself bounded by the SOA's
// own TTL, RFC 2308 §5) and capped by negativeTTLCap; positive responses
// use the minimum TTL across answers and authorities; empty/invalid
// shapes fall back to a short default. A returned TTL of 0 means "do not
// cache".
func ComputeTTL(resp *packet.DNSPacket, negativeTTLCap uint32) uint32 {
	if IsNegative(resp) {
		return negativeTTL(resp, negativeTTLCap)
	}
	return positiveTTL(resp)
}

func negativeTTL(resp *packet.DNSPacket, cap32 uint32) uint32 {
	for _, rr := range resp.Authorities {
		if rr.Type == packet.SOA {
			ttl := rr.Minimum
			if rr.TTL < ttl {
				ttl = rr.TTL
			}
			if ttl == 0 {
				ttl = DefaultNegativeTTL
			}
			if cap32 > 0 && ttl > cap32 {
				ttl = cap32
			}
			return ttl
		}
	}
	if cap32 > 0 && cap32 < DefaultNegativeTTL {
		return cap32
	}
	return DefaultNegativeTTL
}

func positiveTTL(resp *packet.DNSPacket) uint32 {
	var min uint32
	found := false
	consider := func(records []packet.DNSRecord) {
		for _, r := range records {
			if r.Type == packet.OPT {
				continue
			}
			if !found || r.TTL < min {
				min = r.TTL
				found = true
			}
		}
	}
	consider(resp.Answers)
	consider(resp.Authorities)
	if !found {
		return DefaultPositiveTTL
	}
	return min
}
