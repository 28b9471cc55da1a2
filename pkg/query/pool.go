package query

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// connPool is a bounded pool of persistent UDP connections to one server.
type connPool struct {
	addr string
	size int

	conns chan *dns.Conn

	mu    sync.Mutex
	total int
}

func newConnPool(addr string, size int) *connPool {
	if size <= 0 {
		size = runtime.NumCPU()
	}

	return &connPool{
		addr:  addr,
		size:  size,
		conns: make(chan *dns.Conn, size),
		mu:    sync.Mutex{},
		total: 0,
	}
}

// Get returns a pooled connection, dialing a new one if the pool has room.
func (p *connPool) Get(ctx context.Context) (*dns.Conn, error) {
	select {
	case conn := <-p.conns:
		return conn, nil
	default:
	}

	if p.incrementTotal() {
		conn, err := p.dial(ctx)
		if err != nil {
			p.decrementTotal()

			return nil, err
		}

		return conn, nil
	}

	select {
	case conn := <-p.conns:
		return conn, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("connection pool get cancelled: %w", ctx.Err())
	}
}

// Put returns a healthy connection to the pool.
func (p *connPool) Put(conn *dns.Conn) {
	if conn == nil {
		return
	}

	_ = conn.SetDeadline(time.Time{})

	select {
	case p.conns <- conn:
	default:
		_ = conn.Close()
		p.decrementTotal()
	}
}

// Discard closes a connection that failed mid-exchange.
func (p *connPool) Discard(conn *dns.Conn) {
	if conn == nil {
		return
	}
	_ = conn.Close()
	p.decrementTotal()
}

// Close closes all idle pooled connections.
func (p *connPool) Close() {
	for {
		select {
		case conn := <-p.conns:
			_ = conn.Close()
			p.decrementTotal()
		default:
			return
		}
	}
}

func (p *connPool) incrementTotal() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.total >= p.size {
		return false
	}

	p.total++

	return true
}

func (p *connPool) decrementTotal() {
	p.mu.Lock()
	if p.total > 0 {
		p.total--
	}
	p.mu.Unlock()
}

func (p *connPool) dial(ctx context.Context) (*dns.Conn, error) {
	dialer := &net.Dialer{}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	client := &dns.Client{
		Net:    "udp",
		Dialer: dialer,
	}

	conn, err := client.DialContext(ctx, p.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial server %s: %w", p.addr, err)
	}

	return conn, nil
}
