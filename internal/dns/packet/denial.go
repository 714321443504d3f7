package packet

import (
	"strings"
)

// maxNsec3Iterations bounds the NSEC3 iteration count a validator will
// attempt to verify, per RFC 5155's hash-cost abuse concern (resolvers are
// expected to cap, not merely warn). 2500 matches the widely deployed
// "generous but bounded" value for keys up to 2048 bits.
const maxNsec3Iterations = 2500

// validateDenial is the denial-of-existence step for negative
// responses: prove, via NSEC or NSEC3 records in the authority
// section, either that the queried name does not exist or that it exists
// but lacks the queried type.
func (v *DNSSECValidator) validateDenial(p *DNSPacket, dnskeys []DNSRecord) ValidationResult {
	if len(p.Questions) == 0 {
		return secureResult()
	}
	qname := strings.ToLower(strings.TrimSuffix(p.Questions[0].Name, "."))
	qtype := p.Questions[0].QType

	var nsecs, nsec3s []DNSRecord
	for _, r := range p.Authorities {
		switch r.Type {
		case NSEC:
			nsecs = append(nsecs, r)
		case NSEC3:
			nsec3s = append(nsec3s, r)
		}
	}

	if len(nsecs) == 0 && len(nsec3s) == 0 {
		// No RRSIG covered any non-meta RRset (validateRRset would already have
		// rejected a signed-but-absent answer), and the response is negative:
		// if it carries no denial records at all, the negative answer itself
		// is unauthenticated.
		return bogusResult(ReasonDenialOfExistenceFailed)
	}

	if len(nsec3s) > 0 {
		return v.validateNsec3Denial(qname, qtype, nsec3s)
	}
	return validateNsecDenial(qname, qtype, nsecs)
}

func validateNsecDenial(qname string, qtype QueryType, nsecs []DNSRecord) ValidationResult {
	for _, r := range nsecs {
		owner := strings.ToLower(strings.TrimSuffix(r.Name, "."))
		if owner == qname {
			if !typeInBitmap(r.TypeBitMap, qtype) {
				return secureResult()
			}
			continue
		}
		next := strings.ToLower(strings.TrimSuffix(r.NextName, "."))
		if nameInCanonicalRange(owner, qname, next) {
			return secureResult()
		}
	}
	return bogusResult(ReasonDenialOfExistenceFailed)
}

// nameInCanonicalRange reports whether name falls strictly between owner and
// next in RFC 4034 §6.1 canonical order, accounting for the final NSEC in a
// zone wrapping back to the apex (next <= owner).
func nameInCanonicalRange(owner, name, next string) bool {
	if canonicalNameLess(owner, next) {
		return canonicalNameLess(owner, name) && canonicalNameLess(name, next)
	}
	// wraps around the end of the zone
	return canonicalNameLess(owner, name) || canonicalNameLess(name, next)
}

func canonicalNameLess(a, b string) bool {
	return canonicalNameCompare(a, b) < 0
}

// canonicalNameCompare implements RFC 4034 §6.1 canonical DNS name
// ordering, comparing labels right-to-left.
func canonicalNameCompare(a, b string) int {
	a = strings.TrimSuffix(strings.ToLower(a), ".")
	b = strings.TrimSuffix(strings.ToLower(b), ".")
	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}
	al := strings.Split(a, ".")
	bl := strings.Split(b, ".")
	i, j := len(al)-1, len(bl)-1
	for i >= 0 && j >= 0 {
		if al[i] < bl[j] {
			return -1
		}
		if al[i] > bl[j] {
			return 1
		}
		i--
		j--
	}
	if len(al) < len(bl) {
		return -1
	}
	if len(al) > len(bl) {
		return 1
	}
	return 0
}

// typeInBitmap reports whether qtype is set in an NSEC/NSEC3 RFC 4034 §4.1.2
// type bitmap (window blocks: 1 byte window number, 1 byte bitmap length,
// then that many bytes of bitmap).
func typeInBitmap(bitmap []byte, qtype QueryType) bool {
	t := uint16(qtype)
	window := byte(t >> 8)
	bit := uint8(t & 0xFF) // #nosec G115
	pos := 0
	for pos+2 <= len(bitmap) {
		w := bitmap[pos]
		length := int(bitmap[pos+1])
		pos += 2
		if pos+length > len(bitmap) {
			return false
		}
		if w == window {
			byteIdx := int(bit) / 8
			if byteIdx >= length {
				return false
			}
			mask := byte(0x80) >> (bit % 8)
			return bitmap[pos+byteIdx]&mask != 0
		}
		pos += length
	}
	return false
}

func (v *DNSSECValidator) validateNsec3Denial(qname string, qtype QueryType, nsec3s []DNSRecord) ValidationResult {
	alg := nsec3s[0].HashAlg
	iterations := nsec3s[0].Iterations
	salt := nsec3s[0].Salt

	if alg != 1 {
		return bogusResult(ReasonInvalidNsec3Parameters)
	}
	if iterations > maxNsec3Iterations {
		return bogusResult(ReasonTooManyIterations)
	}

	target := strings.ToUpper(Base32Encode(HashName(qname, alg, iterations, salt)))

	type hashed struct {
		owner string
		next  string
		rec   DNSRecord
	}
	recs := make([]hashed, 0, len(nsec3s))
	for _, r := range nsec3s {
		if r.HashAlg != alg || r.Iterations != iterations || string(r.Salt) != string(salt) {
			continue // mismatched parameter set; not part of this proof
		}
		owner := strings.ToUpper(strings.TrimSuffix(r.Name, "."))
		if idx := strings.IndexByte(owner, '.'); idx >= 0 {
			owner = owner[:idx]
		}
		next := strings.ToUpper(Base32Encode(r.NextHash))
		recs = append(recs, hashed{owner: owner, next: next, rec: r})
	}

	for _, h := range recs {
		if h.owner == target {
			if !typeInBitmap(h.rec.TypeBitMap, qtype) {
				return secureResult()
			}
		}
	}
	for _, h := range recs {
		if nameInCanonicalRange(h.owner, target, h.next) {
			return secureResult()
		}
	}
	return bogusResult(ReasonDenialOfExistenceFailed)
}
