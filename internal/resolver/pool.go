package resolver

import (
	"net"
	"sync"
	"time"
)

// tcpPool is a small bounded pool of pre-dialed TCP connections to one
// upstream, avoiding a full handshake on every truncated-UDP retry.
// Grounded on the connection-pooling shape in HydraDNS's forwarding
// resolver, adapted to a mutex-guarded slice of idle connections rather than a
// generic object pool library (none of the pack's dependencies provide
// one suited to net.Conn lifecycles).
type tcpPool struct {
	addr string
	max  int

	mu    sync.Mutex
	conns []pooledConn
}

// pooledConn remembers when a connection was last returned, so checkout
// can evict ones that have idled past poolIdleTimeout.
type pooledConn struct {
	c        net.Conn
	idleFrom time.Time
}

// poolIdleTimeout is how long a pooled connection may sit unused before
// checkout discards it instead of handing it out. Eviction is lazy: no
// background sweeper, staleness is checked only when a caller acquires.
const poolIdleTimeout = 90 * time.Second

func newTCPPool(addr string, max int) *tcpPool {
	if max <= 0 {
		max = 1
	}
	return &tcpPool{addr: addr, max: max}
}

func (r *Resolver) tcpPoolFor(upstream string) *tcpPool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.tcpPool[upstream]
	if !ok {
		p = newTCPPool(upstream, r.cfg.MaxTCPConnsPerHost)
		r.tcpPool[upstream] = p
	}
	return p
}

func (p *tcpPool) acquire(timeout time.Duration) (net.Conn, error) {
	now := time.Now()
	p.mu.Lock()
	for n := len(p.conns); n > 0; n = len(p.conns) {
		pc := p.conns[n-1]
		p.conns = p.conns[:n-1]
		if now.Sub(pc.idleFrom) > poolIdleTimeout {
			_ = pc.c.Close()
			continue
		}
		p.mu.Unlock()
		return pc.c, nil
	}
	p.mu.Unlock()
	return net.DialTimeout("tcp", p.addr, timeout)
}

// release returns a healthy connection to the pool for reuse, up to max
// idle connections; beyond that, or on a connection the caller marked
// bad via discard, the connection is closed instead.
func (p *tcpPool) release(c net.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.conns) >= p.max {
		_ = c.Close()
		return
	}
	p.conns = append(p.conns, pooledConn{c: c, idleFrom: time.Now()})
}

func (p *tcpPool) discard(c net.Conn) {
	_ = c.Close()
}
