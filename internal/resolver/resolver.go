// Package resolver forwards queries the zone store isn't authoritative
// for to a configured set of upstream recursive servers, with per-upstream
// health tracking, connection pooling, and retry/backoff.
package resolver

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/heimdall-dns/heimdall/internal/dns/packet"
	"github.com/heimdall-dns/heimdall/internal/infrastructure/metrics"
)

// Config configures a Resolver.
type Config struct {
	Upstreams          []string // "host:port" pairs, tried in order per query
	Timeout            time.Duration
	MaxRetries         int
	UDPPayloadSize     uint16
	FailureThreshold   int           // consecutive failures before an upstream is marked unhealthy
	CooldownPeriod     time.Duration // how long an unhealthy upstream is skipped
	MaxTCPConnsPerHost int

	// DNSSEC validates forwarded responses. Nil disables validation
	// entirely (responses pass through as Insecure).
	DNSSEC *packet.DNSSECValidator
	// DNSSECStrict controls Bogus handling: when true, a Bogus verdict is
	// treated as an upstream failure (tried again, then surfaced as
	// SERVFAIL by the caller); when false, the response is still delivered
	// but with AD=0, and the reason only logged.
	DNSSECStrict bool
}

// DefaultConfig returns the standard forwarding settings: 5s per-attempt
// timeout, two retries, and a one-hour cooldown after repeated failures.
func DefaultConfig(upstreams ...string) Config {
	return Config{
		Upstreams:          upstreams,
		Timeout:            5 * time.Second,
		MaxRetries:         2,
		UDPPayloadSize:     1232,
		FailureThreshold:   3,
		CooldownPeriod:     time.Hour,
		MaxTCPConnsPerHost: 4,
	}
}

// Resolver forwards queries to Config.Upstreams.
type Resolver struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	health  map[string]*upstreamHealth
	tcpPool map[string]*tcpPool
}

type upstreamHealth struct {
	consecutiveFailures int32
	unhealthyUntil      atomic.Int64 // unix nanos; 0 means healthy
}

// New creates a Resolver. logger may be nil, in which case slog.Default()
// is used.
func New(cfg Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		cfg:     cfg,
		logger:  logger,
		health:  make(map[string]*upstreamHealth),
		tcpPool: make(map[string]*tcpPool),
	}
	for _, u := range cfg.Upstreams {
		r.health[u] = &upstreamHealth{}
	}
	return r
}

// ErrNoUpstreamAvailable is returned when every configured upstream is in
// its failure cooldown window.
var ErrNoUpstreamAvailable = errors.New("resolver: no healthy upstream available")

// Resolve forwards req to a healthy upstream, retrying with backoff
// across upstreams on failure, and validates that the response actually
// answers the question asked (QNAME/QTYPE match; the class is not
// compared) to reject
// off-path cache-poisoning attempts. If the upstream response is
// truncated over UDP and retried over TCP exceeds the advertised
// payload size, the truncation is passed through unchanged to the
// caller, which is itself responsible for the TC=1 contract with its
// own client.
func (r *Resolver) Resolve(req *packet.DNSPacket) (*packet.DNSPacket, error) {
	if len(req.Questions) == 0 {
		return nil, errors.New("resolver: request has no question")
	}
	q := req.Questions[0]

	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		upstream, ok := r.selectUpstream(attempt)
		if !ok {
			if lastErr != nil {
				return nil, fmt.Errorf("%w: %v", ErrNoUpstreamAvailable, lastErr)
			}
			return nil, ErrNoUpstreamAvailable
		}

		if attempt > 0 {
			time.Sleep(time.Duration(100*(attempt+1)) * time.Millisecond)
		}

		resp, err := r.queryUpstream(upstream, q.Name, q.QType)
		if err != nil {
			lastErr = err
			r.markFailed(upstream)
			metrics.UpstreamRequests.WithLabelValues(upstream, "error").Inc()
			r.logger.Warn("upstream query failed", "upstream", upstream, "name", q.Name, "error", err)
			continue
		}
		if !validateResponse(req, resp) {
			lastErr = fmt.Errorf("upstream %s returned a response that does not match the question asked", upstream)
			r.markFailed(upstream)
			metrics.UpstreamRequests.WithLabelValues(upstream, "mismatch").Inc()
			continue
		}

		resp.Header.AuthedData = false
		if r.cfg.DNSSEC != nil {
			result := r.cfg.DNSSEC.Validate(resp)
			metrics.DNSSECValidations.WithLabelValues(result.Status.String()).Inc()
			switch result.Status {
			case packet.StatusSecure:
				resp.Header.AuthedData = true
			case packet.StatusBogus:
				if r.cfg.DNSSECStrict {
					lastErr = fmt.Errorf("upstream %s: dnssec validation bogus: %s", upstream, result.Reason)
					r.markFailed(upstream)
					continue
				}
				r.logger.Warn("dnssec validation bogus, delivering with AD=0",
					"upstream", upstream, "name", q.Name, "reason", result.Reason)
			}
		}

		r.markHealthy(upstream)
		metrics.UpstreamRequests.WithLabelValues(upstream, "success").Inc()
		resp.Header.ID = req.Header.ID
		return resp, nil
	}
	return nil, fmt.Errorf("resolver: all attempts exhausted: %w", lastErr)
}

// selectUpstream returns the upstream to try for this attempt: round the
// healthy set by attempt index so retries fan out across upstreams
// instead of hammering the same one.
func (r *Resolver) selectUpstream(attempt int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.cfg.Upstreams) == 0 {
		return "", false
	}
	now := time.Now().UnixNano()
	for i := 0; i < len(r.cfg.Upstreams); i++ {
		idx := (attempt + i) % len(r.cfg.Upstreams)
		u := r.cfg.Upstreams[idx]
		h := r.health[u]
		if h == nil || h.unhealthyUntil.Load() <= now {
			return u, true
		}
	}
	return "", false
}

func (r *Resolver) markFailed(upstream string) {
	r.mu.Lock()
	h, ok := r.health[upstream]
	if !ok {
		h = &upstreamHealth{}
		r.health[upstream] = h
	}
	r.mu.Unlock()

	if int(atomic.AddInt32(&h.consecutiveFailures, 1)) >= r.cfg.FailureThreshold {
		h.unhealthyUntil.Store(time.Now().Add(r.cfg.CooldownPeriod).UnixNano())
		metrics.UpstreamHealthy.WithLabelValues(upstream).Set(0)
	}
}

func (r *Resolver) markHealthy(upstream string) {
	r.mu.Lock()
	h, ok := r.health[upstream]
	r.mu.Unlock()
	if !ok {
		return
	}
	atomic.StoreInt32(&h.consecutiveFailures, 0)
	h.unhealthyUntil.Store(0)
	metrics.UpstreamHealthy.WithLabelValues(upstream).Set(1)
}

func generateTransactionID() uint16 {
	var id uint16
	_ = binary.Read(rand.Reader, binary.BigEndian, &id)
	return id
}

// queryUpstream sends a single query over UDP, retrying over TCP if the
// UDP response is truncated, matching standard DNS resolver behavior.
func (r *Resolver) queryUpstream(upstream, name string, qtype packet.QueryType) (*packet.DNSPacket, error) {
	resp, err := r.queryUDP(upstream, name, qtype)
	if err != nil {
		return nil, err
	}
	if resp.Header.TruncatedMessage {
		return r.queryTCP(upstream, name, qtype)
	}
	return resp, nil
}

func (r *Resolver) prepareQuery(name string, qtype packet.QueryType) (*packet.DNSPacket, uint16) {
	req := packet.NewDNSPacket()
	id := generateTransactionID()
	req.Header.ID = id
	req.Header.Questions = 1
	req.Header.RecursionDesired = true
	req.Questions = append(req.Questions, *packet.NewDNSQuestion(name, qtype))
	if r.cfg.UDPPayloadSize > 0 {
		req.Resources = append(req.Resources, packet.DNSRecord{
			Type:           packet.OPT,
			UDPPayloadSize: r.cfg.UDPPayloadSize,
		})
	}
	return req, id
}

func (r *Resolver) queryUDP(upstream, name string, qtype packet.QueryType) (*packet.DNSPacket, error) {
	req, id := r.prepareQuery(name, qtype)

	conn, err := net.DialTimeout("udp", upstream, r.cfg.Timeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	buf := packet.NewBytePacketBuffer()
	if err := req.Write(buf); err != nil {
		return nil, err
	}
	if _, err := conn.Write(buf.Buf[:buf.Position()]); err != nil {
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(r.cfg.Timeout))
	tmp := make([]byte, packet.MaxPacketSize)
	n, err := conn.Read(tmp)
	if err != nil {
		return nil, err
	}

	resBuf := packet.NewBytePacketBuffer()
	resBuf.Load(tmp[:n])
	resp := packet.NewDNSPacket()
	if err := resp.FromBuffer(resBuf); err != nil {
		return nil, err
	}
	if resp.Header.ID != id {
		return nil, fmt.Errorf("transaction ID mismatch: expected %d, got %d", id, resp.Header.ID)
	}
	return resp, nil
}

func (r *Resolver) queryTCP(upstream, name string, qtype packet.QueryType) (*packet.DNSPacket, error) {
	req, id := r.prepareQuery(name, qtype)

	pool := r.tcpPoolFor(upstream)
	conn, err := pool.acquire(r.cfg.Timeout)
	if err != nil {
		return nil, err
	}
	broken := false
	defer func() {
		if broken {
			pool.discard(conn)
		} else {
			pool.release(conn)
		}
	}()

	buf := packet.NewBytePacketBuffer()
	if err := req.Write(buf); err != nil {
		return nil, err
	}
	payload := buf.Buf[:buf.Position()]

	var lenPrefix [2]byte
	binary.BigEndian.PutUint16(lenPrefix[:], uint16(len(payload)))

	_ = conn.SetDeadline(time.Now().Add(r.cfg.Timeout))
	if _, err := conn.Write(lenPrefix[:]); err != nil {
		broken = true
		return nil, err
	}
	if _, err := conn.Write(payload); err != nil {
		broken = true
		return nil, err
	}

	if _, err := readFull(conn, lenPrefix[:]); err != nil {
		broken = true
		return nil, err
	}
	respLen := binary.BigEndian.Uint16(lenPrefix[:])
	respBytes := make([]byte, respLen)
	if _, err := readFull(conn, respBytes); err != nil {
		broken = true
		return nil, err
	}

	resBuf := packet.NewBytePacketBuffer()
	resBuf.Load(respBytes)
	resp := packet.NewDNSPacket()
	if err := resp.FromBuffer(resBuf); err != nil {
		return nil, err
	}
	if resp.Header.ID != id {
		return nil, fmt.Errorf("transaction ID mismatch: expected %d, got %d", id, resp.Header.ID)
	}
	return resp, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// validateResponse rejects a response whose question section doesn't
// echo the query's QNAME and QTYPE (the class is not compared), a
// minimal defense against off-path response injection.
func validateResponse(req, resp *packet.DNSPacket) bool {
	if len(resp.Questions) == 0 || len(req.Questions) == 0 {
		return len(resp.Questions) == 0 && resp.Header.ResCode != packet.RcodeNoError
	}
	rq, qq := resp.Questions[0], req.Questions[0]
	return normalizeName(rq.Name) == normalizeName(qq.Name) && rq.QType == qq.QType
}

func normalizeName(name string) string {
	if name == "" {
		return name
	}
	lower := []byte(name)
	for i, c := range lower {
		if c >= 'A' && c <= 'Z' {
			lower[i] = c + ('a' - 'A')
		}
	}
	s := string(lower)
	if len(s) > 0 && s[len(s)-1] != '.' {
		s += "."
	}
	return s
}
