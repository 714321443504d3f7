package resolver

import "github.com/heimdall-dns/heimdall/internal/dns/packet"

// CreateServfailResponse builds a SERVFAIL reply to req, used when no
// upstream could be reached or every attempt failed validation.
func CreateServfailResponse(req *packet.DNSPacket) *packet.DNSPacket {
	resp := errorResponse(req, packet.RcodeServFail)
	return resp
}

// CreateNXDomainResponse builds an NXDOMAIN reply (the AA bit is not set),
// used when forwarding is disabled or the upstream set is empty for a
// name the zone store doesn't cover.
func CreateNXDomainResponse(req *packet.DNSPacket) *packet.DNSPacket {
	return errorResponse(req, packet.RcodeNxDomain)
}

// CreateTruncatedResponse builds a minimal, answer-free reply with TC=1,
// used when a response exceeds the client's advertised UDP payload size
// and must be retried over TCP.
func CreateTruncatedResponse(req *packet.DNSPacket) *packet.DNSPacket {
	resp := errorResponse(req, packet.RcodeNoError)
	resp.Header.TruncatedMessage = true
	return resp
}

func errorResponse(req *packet.DNSPacket, rcode uint8) *packet.DNSPacket {
	resp := packet.NewDNSPacket()
	resp.Header.ID = req.Header.ID
	resp.Header.Response = true
	resp.Header.Opcode = req.Header.Opcode
	resp.Header.RecursionDesired = req.Header.RecursionDesired
	resp.Header.RecursionAvailable = true
	resp.Header.ResCode = rcode
	resp.Questions = append(resp.Questions, req.Questions...)
	return resp
}
