package blocklist

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

// Blocklist is the query-time filter: an atomically-swappable pair of
// tries (blocked, allow) built by a Builder. Reload constructs a fresh
// pair and swaps the pointer, so concurrent lookups never observe a
// half-built trie and never block on a writer.
type Blocklist struct {
	blocked *trie
	allow   *trie
	stats   BuildStats
}

// Manager owns the live, swappable Blocklist plus the file sources it
// was built from, so Reload can rebuild from scratch on a SIGHUP or
// timer without the caller re-specifying every source.
type Manager struct {
	// EnableWildcards is copied into every rebuild's Builder; when false,
	// wildcard entries from any source are dropped at staging time.
	EnableWildcards bool

	current atomic.Pointer[Blocklist]
	sources []FileSource
	extra   []entry // entries staged via LoadReader, replayed on every Reload
}

// FileSource is one blocklist file to load on (re)build.
type FileSource struct {
	Path   string
	Format Format
}

// NewManager creates a Manager with an empty, always-safe-to-query
// Blocklist; call Reload (or AddSource+Reload) to populate it.
func NewManager() *Manager {
	m := &Manager{EnableWildcards: true}
	m.current.Store(NewBuilder().Build())
	return m
}

// AddSource registers a file to be loaded on the next Reload.
func (m *Manager) AddSource(path string, format Format) {
	m.sources = append(m.sources, FileSource{Path: path, Format: format})
}

// Reload re-reads every registered source into a fresh Builder and
// atomically publishes the result. A per-file read error is collected
// and returned, but does not prevent the other sources from loading;
// the previous Blocklist remains live until the new one is fully built.
func (m *Manager) Reload() error {
	b := NewBuilder()
	b.EnableWildcards = m.EnableWildcards
	var firstErr error
	for _, src := range m.sources {
		if err := loadSourceFile(b, src); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("blocklist: load %s: %w", src.Path, err)
		}
	}
	for _, e := range m.extra {
		b.add(e)
	}
	m.current.Store(b.Build())
	return firstErr
}

func loadSourceFile(b *Builder, src FileSource) error {
	f, err := os.Open(src.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	return b.LoadReader(f, src.Format)
}

// LoadReader parses r under format, remembers the resulting entries so
// they survive future Reload calls, and rebuilds the live Blocklist from
// every registered source plus everything staged this way. Intended for
// "load this extra list right now" callers (admin API, tests) that don't
// want a persistent FileSource.
func (m *Manager) LoadReader(r io.Reader, format Format) error {
	parsed, err := parseFile(r, format)
	if err != nil {
		return fmt.Errorf("blocklist: parse: %w", err)
	}
	for _, e := range parsed {
		if e.pattern || e.domain == "" {
			continue
		}
		m.extra = append(m.extra, e)
	}
	return m.Reload()
}

// IsBlocked reports whether domain should be filtered: allowlisted
// entries always win, then exact/wildcard matches against the blocked
// trie apply. This mirrors DnsBlocker::is_blocked's allowlist-first
// short-circuit.
func (m *Manager) IsBlocked(domain string) bool {
	cur := m.current.Load()
	if cur.allow.matches(domain) {
		return false
	}
	return cur.blocked.matches(domain)
}

// Stats returns the BuildStats recorded the last time Reload/LoadReader
// rebuilt the live Blocklist.
func (m *Manager) Stats() BuildStats {
	return m.current.Load().stats
}

// Count returns the number of distinct blocked entries (exact + wildcard)
// currently active.
func (m *Manager) Count() int {
	return m.current.Load().blocked.walkCount()
}
