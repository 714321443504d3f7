package zone

import (
	"strings"

	"github.com/heimdall-dns/heimdall/internal/core/domain"
)

// ResultKind classifies a zone query outcome, mirroring the
// Success/NoData/NXDomain/Delegation/NotAuthoritative five-way split the
// zone engine must distinguish so the server can choose the right header
// flags and rcode.
type ResultKind int

const (
	// NotAuthoritative: no configured zone encloses the queried name.
	// The caller should fall through to recursive/forwarding resolution.
	NotAuthoritative ResultKind = iota
	// Success: one or more records of the requested type exist at name.
	Success
	// NoData: the name exists in the zone but has no record of the
	// requested type (NODATA, RFC 2308).
	NoData
	// NXDomain: the name does not exist anywhere in the zone.
	NXDomain
	// Delegation: the name is at or below an NS cut to a child zone this
	// server is not authoritative for; Records holds the NS (and glue)
	// records for the referral.
	Delegation
)

// Result is the outcome of querying a Store for a name/type pair.
type Result struct {
	Kind    ResultKind
	Zone    *Zone            // the enclosing zone, nil for NotAuthoritative
	Records []domain.Record  // answer records (Success) or NS/glue (Delegation)
	SOA     *domain.Record   // authority-section SOA for NoData/NXDomain
}

// IsAuthoritative reports whether the response should carry the AA bit.
func (r Result) IsAuthoritative() bool {
	return r.Kind == Success || r.Kind == NoData || r.Kind == NXDomain
}

// Query resolves name/qType against the store: it finds the closest
// enclosing zone, checks for a delegation cut above the queried name,
// and otherwise returns Success/NoData/NXDomain based on what's present
// at that exact name. qType == "" matches every type at name (ANY).
func (s *Store) Query(name string, qType domain.RecordType) Result {
	z := s.FindZone(name)
	if z == nil {
		return Result{Kind: NotAuthoritative}
	}
	return z.query(name, qType)
}

func (z *Zone) query(name string, qType domain.RecordType) Result {
	name = normalizeName(name)

	if delegation, ok := z.findDelegation(name); ok {
		return Result{Kind: Delegation, Zone: z, Records: delegation}
	}

	records := z.recordsAt(name)
	if qType == domain.TypeCNAME || qType == "" {
		// ANY queries and explicit CNAME lookups both want whatever is
		// actually stored at the name.
	} else if hasCNAME(records) && !hasType(records, qType) {
		// A CNAME at name answers every other query type by redirection;
		// the caller chases the alias, so hand back the CNAME itself.
		return Result{Kind: Success, Zone: z, Records: filterType(records, domain.TypeCNAME)}
	}

	matched := filterType(records, qType)
	if len(matched) > 0 {
		return Result{Kind: Success, Zone: z, Records: matched}
	}

	if z.hasAnyRecords(name) {
		return Result{Kind: NoData, Zone: z, SOA: z.soaRecord()}
	}

	return Result{Kind: NXDomain, Zone: z, SOA: z.soaRecord()}
}

// findDelegation walks from name up to (but not including) the zone
// origin looking for an NS RRset at a strict ancestor — a cut to a
// delegated child zone. The zone's own apex NS records are the zone's
// own authority, not a delegation, so origin itself is never checked.
func (z *Zone) findDelegation(name string) ([]domain.Record, bool) {
	if name == z.Origin {
		return nil, false
	}
	cur := parentOf(name)
	for cur != "" && cur != z.Origin && strings.HasSuffix(cur, "."+z.Origin) {
		if ns := filterType(z.recordsAt(cur), domain.TypeNS); len(ns) > 0 {
			return withGlue(z, ns), true
		}
		cur = parentOf(cur)
	}
	// The walk stops at z.Origin: the zone's own apex is never a
	// delegation.
	return nil, false
}

func withGlue(z *Zone, ns []domain.Record) []domain.Record {
	out := make([]domain.Record, 0, len(ns)*2)
	out = append(out, ns...)
	for _, r := range ns {
		out = append(out, filterType(z.recordsAt(r.Content), domain.TypeA)...)
		out = append(out, filterType(z.recordsAt(r.Content), domain.TypeAAAA)...)
	}
	return out
}

func parentOf(name string) string {
	name = strings.TrimSuffix(name, ".")
	idx := strings.IndexByte(name, '.')
	if idx < 0 {
		return ""
	}
	return name[idx+1:] + "."
}

func hasType(records []domain.Record, t domain.RecordType) bool {
	for _, r := range records {
		if r.Type == t {
			return true
		}
	}
	return false
}

func hasCNAME(records []domain.Record) bool {
	return hasType(records, domain.TypeCNAME)
}

func filterType(records []domain.Record, t domain.RecordType) []domain.Record {
	if t == "" {
		return records
	}
	out := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

func (z *Zone) soaRecord() *domain.Record {
	soa := filterType(z.recordsAt(z.Origin), domain.TypeSOA)
	if len(soa) == 0 {
		return nil
	}
	return &soa[0]
}
