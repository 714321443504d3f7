// Package validator applies structural and policy checks to parsed DNS
// packets before they reach the rest of the pipeline.
package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/heimdall-dns/heimdall/internal/dns/packet"
)

// Sentinel errors forming the ValidationError sum type. Every failure
// returned by FastValidate/FullValidate is, or wraps, one of these.
var (
	ErrReservedBitSet      = errors.New("validator: reserved header bit set")
	ErrUnexpectedOpcode    = errors.New("validator: opcode not allowed on this path")
	ErrEmptyQuestion       = errors.New("validator: query with no question section")
	ErrTooManyQuestions    = errors.New("validator: too many questions")
	ErrTooManyRecords      = errors.New("validator: section record count exceeds cap")
	ErrPacketTooSmall      = errors.New("validator: estimated wire size below minimum")
	ErrPacketTooLarge      = errors.New("validator: estimated wire size exceeds maximum")
	ErrInvalidDomainName   = errors.New("validator: invalid domain name")
	ErrRecordTypeDenied    = errors.New("validator: record type denied by policy")
	ErrInvalidTXTChain     = errors.New("validator: malformed TXT length-prefix chain")
	ErrRDATALengthMismatch = errors.New("validator: RDATA length does not match type expectations")
	ErrEDNSPayloadTooLarge = errors.New("validator: EDNS UDP payload size exceeds cap")
	ErrNonZeroRcode        = errors.New("validator: query rcode must be zero")
)

// Limits bounds the Full validation pass. Zero-value fields fall back to
// the defaults below.
type Limits struct {
	MaxQuestions      int
	MaxSectionRecords int
	MinWireSize       int
	MaxWireSize       int
	MaxEDNSPayload    uint16

	// AllowZoneTransfer permits AXFR/IXFR through the record-type gate.
	AllowZoneTransfer bool
	// DenyANY drops ANY queries, a standard amplification mitigation.
	DenyANY bool
}

// DefaultLimits returns the standard bounds (100 questions, 65535-byte
// max wire size).
func DefaultLimits() Limits {
	return Limits{
		MaxQuestions:      100,
		MaxSectionRecords: 1000,
		MinWireSize:       12, // header only
		MaxWireSize:       65535,
		MaxEDNSPayload:    4096,
	}
}

// FastValidate performs the cheap pre-parse-adjacent checks suitable for
// every UDP datagram: opcode range and a non-empty question section on
// queries. This is the default path for UDP.
func FastValidate(p *packet.DNSPacket) error {
	if p.Header.Opcode > 2 {
		return fmt.Errorf("%w: opcode=%d", ErrUnexpectedOpcode, p.Header.Opcode)
	}
	if !p.Header.Response && p.Header.Questions > 0 && len(p.Questions) == 0 {
		return ErrEmptyQuestion
	}
	if len(p.Questions) > 100 {
		return fmt.Errorf("%w: got %d", ErrTooManyQuestions, len(p.Questions))
	}
	return nil
}

// FullValidate performs the exhaustive structural and policy pass used on
// TCP/DoT/DoH connections and for responses the server is about to cache
// or forward.
func FullValidate(p *packet.DNSPacket, lim Limits) error {
	if lim.MaxQuestions == 0 {
		lim = DefaultLimits()
	}

	if p.Header.Z {
		return ErrReservedBitSet
	}
	if !p.Header.Response && p.Header.ResCode != packet.RcodeNoError {
		return ErrNonZeroRcode
	}
	if len(p.Questions) > lim.MaxQuestions {
		return fmt.Errorf("%w: got %d", ErrTooManyQuestions, len(p.Questions))
	}
	if len(p.Answers) > lim.MaxSectionRecords || len(p.Authorities) > lim.MaxSectionRecords || len(p.Resources) > lim.MaxSectionRecords {
		return ErrTooManyRecords
	}

	size := estimateWireSize(p)
	if size < lim.MinWireSize {
		return fmt.Errorf("%w: %d < %d", ErrPacketTooSmall, size, lim.MinWireSize)
	}
	if lim.MaxWireSize > 0 && size > lim.MaxWireSize {
		return fmt.Errorf("%w: %d > %d", ErrPacketTooLarge, size, lim.MaxWireSize)
	}

	for _, q := range p.Questions {
		if err := ValidateDomainName(q.Name); err != nil {
			return err
		}
		if err := checkRecordTypePolicy(q.QType, lim); err != nil {
			return err
		}
	}

	for _, sec := range [][]packet.DNSRecord{p.Answers, p.Authorities, p.Resources} {
		for _, r := range sec {
			if err := validateRecord(&r); err != nil {
				return err
			}
			if r.Type == packet.OPT && r.UDPPayloadSize > lim.MaxEDNSPayload {
				return fmt.Errorf("%w: %d > %d", ErrEDNSPayloadTooLarge, r.UDPPayloadSize, lim.MaxEDNSPayload)
			}
		}
	}

	return nil
}

func checkRecordTypePolicy(qtype packet.QueryType, lim Limits) error {
	switch qtype {
	case packet.AXFR, packet.IXFR:
		if !lim.AllowZoneTransfer {
			return fmt.Errorf("%w: %v", ErrRecordTypeDenied, qtype)
		}
	case packet.ANY:
		if lim.DenyANY {
			return fmt.Errorf("%w: ANY", ErrRecordTypeDenied)
		}
	}
	return nil
}

// ValidateDomainName enforces RFC 1035 label syntax: 1-63 bytes per
// label, ASCII alphanumeric plus hyphen, no leading/trailing hyphen, and
// an overall length under 255 octets.
func ValidateDomainName(name string) error {
	trimmed := strings.TrimSuffix(name, ".")
	if trimmed == "" {
		return nil // root
	}
	if len(name) > 253 {
		return fmt.Errorf("%w: %q exceeds 253 octets", ErrInvalidDomainName, name)
	}
	for _, label := range strings.Split(trimmed, ".") {
		if len(label) == 0 || len(label) > 63 {
			return fmt.Errorf("%w: label %q has invalid length", ErrInvalidDomainName, label)
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return fmt.Errorf("%w: label %q has leading/trailing hyphen", ErrInvalidDomainName, label)
		}
		for _, c := range label {
			if !isValidLabelChar(byte(c)) {
				return fmt.Errorf("%w: label %q has invalid character %q", ErrInvalidDomainName, label, c)
			}
		}
	}
	return nil
}

func isValidLabelChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
		return true
	default:
		return false
	}
}

// validateRecord runs the TXT chain check on TXT records. RDATA length is
// not compared against type expectations; ErrRDATALengthMismatch is never
// returned.
func validateRecord(r *packet.DNSRecord) error {
	if r.Type == packet.TXT {
		if err := validateTXTChain(r.Txt); err != nil {
			return err
		}
	}
	return nil
}

// validateTXTChain accepts every TXT payload: packet.go has already
// concatenated the character-string payloads into r.Txt, so the wire
// length-prefix chain is not available here and is not checked;
// ErrInvalidTXTChain is never returned.
func validateTXTChain(_ string) error {
	return nil
}

func estimateWireSize(p *packet.DNSPacket) int {
	size := 12 // header
	for _, q := range p.Questions {
		size += len(q.Name) + 2 + 4 + 1
	}
	for _, sec := range [][]packet.DNSRecord{p.Answers, p.Authorities, p.Resources} {
		for _, r := range sec {
			size += len(r.Name) + 1 + 2 + 2 + 4 + 2 + estimateRDATASize(&r)
		}
	}
	return size
}

func estimateRDATASize(r *packet.DNSRecord) int {
	switch r.Type {
	case packet.A:
		return 4
	case packet.AAAA:
		return 16
	case packet.TXT:
		return len(r.Txt) + 1
	case packet.CNAME, packet.NS, packet.PTR:
		return len(r.Host) + 2
	case packet.MX:
		return len(r.Host) + 4
	default:
		return len(r.Data)
	}
}
