package blocklist

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// registrableDomain returns the eTLD+1 ("registrable domain") for name,
// e.g. "ads.sub.example.co.uk." -> "example.co.uk". It is used to dedupe
// blocklist entries: once a parent domain is blocked, every subdomain of
// it is redundant and adding a new subdomain of an already-blocked parent
// is a no-op.
//
// publicsuffix.EffectiveTLDPlusOne fails closed on inputs it doesn't
// recognize (bare TLDs, single-label names); in that case the original
// name is returned unchanged so callers still have something to index.
func registrableDomain(name string) string {
	trimmed := strings.TrimSuffix(strings.ToLower(name), ".")
	if trimmed == "" {
		return trimmed
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(trimmed)
	if err != nil {
		return trimmed
	}
	return etld1
}

// isSubdomainOf reports whether child is equal to or a strict subdomain
// of parent, both already lowercased/dot-trimmed.
func isSubdomainOf(child, parent string) bool {
	if child == parent {
		return true
	}
	return strings.HasSuffix(child, "."+parent)
}
