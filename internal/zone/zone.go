// Package zone is the in-memory, authoritative-zone store consulted on
// every query before any recursive/forwarding resolution is attempted.
// It is the primary store; internal/adapters/repository is an optional
// write-through persistence layer loaded at startup through the
// StoreRepository adapter (see StoreRepository.LoadFromDurable).
package zone

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/heimdall-dns/heimdall/internal/core/domain"
)

// Zone is one authoritative origin's immutable record set. A Zone is
// never mutated in place; every change (AXFR load, dynamic update)
// builds a new Zone and the Store swaps it in atomically, so readers
// never observe a half-updated zone.
type Zone struct {
	Meta    domain.Zone
	Origin  string // lowercase, trailing dot
	Serial  uint32
	records map[string][]domain.Record // name (lowercase, trailing dot) -> records at that name
}

// NewZone creates an empty Zone for origin.
func NewZone(meta domain.Zone) *Zone {
	return &Zone{
		Meta:    meta,
		Origin:  normalizeName(meta.Name),
		records: make(map[string][]domain.Record),
	}
}

// WithRecords returns a new Zone with records indexed by name, replacing
// this Zone's contents. Used to build the next atomic generation after a
// reload or dynamic update, rather than mutating in place.
func (z *Zone) WithRecords(records []domain.Record) *Zone {
	next := &Zone{
		Meta:    z.Meta,
		Origin:  z.Origin,
		Serial:  z.Serial,
		records: make(map[string][]domain.Record, len(records)),
	}
	for _, r := range records {
		key := normalizeName(r.Name)
		next.records[key] = append(next.records[key], r)
		if r.Type == domain.TypeSOA {
			if serial, ok := parseSOASerial(r.Content); ok {
				next.Serial = serial
			}
		}
	}
	return next
}

// recordsAt returns every record stored at the exact name (no wildcard
// expansion; callers apply wildcard synthesis separately if needed).
func (z *Zone) recordsAt(name string) []domain.Record {
	return z.records[normalizeName(name)]
}

// hasAnyRecords reports whether any record (of any type) exists at name,
// used to distinguish NXDOMAIN from NODATA.
func (z *Zone) hasAnyRecords(name string) bool {
	return len(z.records[normalizeName(name)]) > 0
}

// AllRecords returns every record in the zone, for AXFR and for rebuilding
// a Zone via WithRecords.
func (z *Zone) AllRecords() []domain.Record {
	out := make([]domain.Record, 0, len(z.records))
	for _, rs := range z.records {
		out = append(out, rs...)
	}
	return out
}

func normalizeName(name string) string {
	name = strings.ToLower(name)
	if !strings.HasSuffix(name, ".") {
		name += "."
	}
	return name
}

func parseSOASerial(content string) (uint32, bool) {
	fields := strings.Fields(content)
	if len(fields) < 3 {
		return 0, false
	}
	var serial uint32
	for _, c := range fields[2] {
		if c < '0' || c > '9' {
			return 0, false
		}
		serial = serial*10 + uint32(c-'0')
	}
	return serial, true
}

// holder lets each origin be swapped independently without a store-wide
// write lock serializing unrelated zones' updates.
type holder struct {
	zone atomic.Pointer[Zone]
}

// Store indexes every authoritative Zone this server knows about, keyed
// by origin. Lookups and swaps for different origins never contend; the
// RWMutex only guards the origin->holder map itself (add/remove zone),
// never a query.
type Store struct {
	mu    sync.RWMutex
	zones map[string]*holder
}

// NewStore creates an empty zone store.
func NewStore() *Store {
	return &Store{zones: make(map[string]*holder)}
}

// AddZone registers z, replacing any existing zone with the same origin.
func (s *Store) AddZone(z *Zone) {
	s.mu.Lock()
	h, ok := s.zones[z.Origin]
	if !ok {
		h = &holder{}
		s.zones[z.Origin] = h
	}
	s.mu.Unlock()
	h.zone.Store(z)
}

// RemoveZone deletes the zone at origin, if present.
func (s *Store) RemoveZone(origin string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.zones, normalizeName(origin))
}

// GetZone returns the zone at the exact origin, or nil if none is loaded.
func (s *Store) GetZone(origin string) *Zone {
	s.mu.RLock()
	h, ok := s.zones[normalizeName(origin)]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return h.zone.Load()
}

// FindZone returns the zone whose origin is the longest suffix match of
// name (the closest enclosing zone), or nil if name falls outside every
// configured origin. This is the authority-cut lookup every query goes
// through first.
func (s *Store) FindZone(name string) *Zone {
	name = normalizeName(name)

	s.mu.RLock()
	holders := make(map[string]*holder, len(s.zones))
	for k, h := range s.zones {
		holders[k] = h
	}
	s.mu.RUnlock()

	var best *Zone
	bestLen := -1
	for origin, h := range holders {
		if name != origin && !strings.HasSuffix(name, "."+origin) {
			continue
		}
		if len(origin) > bestLen {
			z := h.zone.Load()
			if z != nil {
				best = z
				bestLen = len(origin)
			}
		}
	}
	return best
}

// ListOrigins returns every configured origin.
func (s *Store) ListOrigins() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.zones))
	for origin := range s.zones {
		out = append(out, origin)
	}
	return out
}

// ZoneCount returns the number of zones currently loaded.
func (s *Store) ZoneCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.zones)
}
