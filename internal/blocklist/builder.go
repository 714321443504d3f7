package blocklist

import (
	"fmt"
	"io"
)

// Source identifies where a blocklist entry came from, kept for Stats
// and for future per-source enable/disable.
type Source struct {
	Name   string
	Format Format
}

// BuildStats reports what a Builder did while assembling a Blocklist,
// mirroring the dedup-savings accounting original_source/blocking/builder.rs
// keeps per load.
type BuildStats struct {
	TotalProcessed   int
	Blocked          int
	Wildcards        int
	Allowed          int
	DedupedBySuffix  int // subdomain skipped because a parent was already blocked
	PrunedBySuffix   int // previously added subdomain removed once its parent arrived
	PatternsSkipped  int // Pi-hole regex lines that aren't plain domains
	WildcardsSkipped int // wildcard entries dropped because wildcards are disabled
}

// Builder assembles a Blocklist from one or more sources, deduplicating
// on registrable domain as it goes: adding "example.com" after
// "ads.example.com" was already blocked drops the redundant child entry,
// and adding a subdomain of an already-blocked parent is a no-op. This
// mirrors BlocklistBuilder::add_domain in the Rust reference.
type Builder struct {
	// EnableWildcards admits "*.domain" entries; when false they are
	// dropped at staging time and counted in WildcardsSkipped.
	EnableWildcards bool

	// staged maps a normalized domain to whether it's an allow entry.
	// A later allow overrides an earlier block for the same exact name.
	staged    map[string]bool
	wildcards map[string]bool
	allow     map[string]bool
	// blockedParents tracks registrable domains already covered by a
	// non-wildcard block, so later subdomains can be dropped outright.
	blockedParents map[string]bool
	stats          BuildStats
}

// NewBuilder creates an empty Builder with wildcards enabled.
func NewBuilder() *Builder {
	return &Builder{
		EnableWildcards: true,
		staged:          make(map[string]bool),
		wildcards:       make(map[string]bool),
		allow:           make(map[string]bool),
		blockedParents:  make(map[string]bool),
	}
}

// LoadReader parses r under format and stages every entry it yields.
func (b *Builder) LoadReader(r io.Reader, format Format) error {
	entries, err := parseFile(r, format)
	if err != nil {
		return fmt.Errorf("blocklist: parse: %w", err)
	}
	for _, e := range entries {
		if e.pattern {
			b.stats.PatternsSkipped++
			continue
		}
		if e.domain == "" {
			continue
		}
		b.add(e)
	}
	return nil
}

func (b *Builder) add(e entry) {
	b.stats.TotalProcessed++

	if e.allow {
		b.allow[e.domain] = true
		b.stats.Allowed++
		return
	}

	if e.wildcard && !b.EnableWildcards {
		b.stats.WildcardsSkipped++
		return
	}

	parent := registrableDomain(e.domain)
	if !e.wildcard && e.domain == parent {
		// Blocking the registrable domain itself: purge any previously
		// staged subdomains of it, they're now redundant.
		for d := range b.staged {
			if d != parent && isSubdomainOf(d, parent) {
				delete(b.staged, d)
				delete(b.wildcards, d)
				b.stats.PrunedBySuffix++
			}
		}
		b.blockedParents[parent] = true
	} else if b.blockedParents[parent] {
		// A parent covering this domain is already blocked; this entry
		// adds nothing.
		b.stats.DedupedBySuffix++
		return
	}

	if e.wildcard {
		b.wildcards[e.domain] = true
		b.stats.Wildcards++
	} else {
		b.staged[e.domain] = true
		b.stats.Blocked++
	}
}

// Build finalizes the staged entries into an immutable Blocklist.
func (b *Builder) Build() *Blocklist {
	blocked := newTrie()
	for d := range b.staged {
		if !b.allow[d] {
			blocked.insert(d, false)
		}
	}
	for d := range b.wildcards {
		blocked.insert(d, true)
	}
	allow := newTrie()
	for d := range b.allow {
		allow.insert(d, false)
	}
	return &Blocklist{
		blocked: blocked,
		allow:   allow,
		stats:   b.stats,
	}
}
