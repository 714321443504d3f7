package cache

import (
	"strings"
	"sync"
)

// suffixIndex supports related-entry lookups for wildcard/apex
// operations: given a suffix like "example.com.",
// return every cached key whose domain ends at that suffix. Each
// inserted domain is registered under every one of its own ancestor
// suffixes (a handful of buckets per insert, bounded by label depth),
// so a suffix query is a single map lookup rather than a full scan.
type suffixIndex struct {
	mu      sync.RWMutex
	buckets map[string]map[Key]struct{}
}

func newSuffixIndex() *suffixIndex {
	return &suffixIndex{buckets: make(map[string]map[Key]struct{})}
}

func (s *suffixIndex) add(k Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, suffix := range ancestorSuffixes(k.Domain) {
		b, ok := s.buckets[suffix]
		if !ok {
			b = make(map[Key]struct{})
			s.buckets[suffix] = b
		}
		b[k] = struct{}{}
	}
}

func (s *suffixIndex) remove(k Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, suffix := range ancestorSuffixes(k.Domain) {
		if b, ok := s.buckets[suffix]; ok {
			delete(b, k)
			if len(b) == 0 {
				delete(s.buckets, suffix)
			}
		}
	}
}

// Query returns every key registered under the exact suffix (callers
// filter expired entries themselves, since expiry lives on the cache
// entry, not the index).
func (s *suffixIndex) query(suffix string) []Key {
	suffix = strings.ToLower(suffix)
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[suffix]
	if !ok {
		return nil
	}
	out := make([]Key, 0, len(b))
	for k := range b {
		out = append(out, k)
	}
	return out
}

// ancestorSuffixes returns domain itself plus every ancestor suffix,
// e.g. "www.example.com." -> ["www.example.com.", "example.com.", "com."].
func ancestorSuffixes(domain string) []string {
	domain = strings.TrimSuffix(domain, ".")
	if domain == "" {
		return nil
	}
	labels := strings.Split(domain, ".")
	out := make([]string, 0, len(labels))
	for i := range labels {
		out = append(out, strings.Join(labels[i:], ".")+".")
	}
	return out
}
