package query

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// Package-level errors.
var (
	ErrNilResponse = errors.New("nil response from server")
	ErrIDMismatch  = errors.New("response ID does not match query ID")
)

// Client is the network-backed Exchanger
// Maintains persistent UDP connection pools per server and falls back to TCP
// for truncated responses.
type Client struct {
	// maxConnsPerServer controls per-server UDP pool sizing
	maxConnsPerServer int

	// udpPools holds persistent UDP connection pools keyed by server address
	udpPools map[string]*connPool

	// poolMu protects udpPools
	poolMu sync.RWMutex
}

// ClientConfig holds configuration for the query client.
type ClientConfig struct {
	// ConnectionsPerServer is the max number of persistent UDP sockets per server
	ConnectionsPerServer int
}

// DefaultClientConfig returns configuration with sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ConnectionsPerServer: runtime.NumCPU(),
	}
}

// NewClient creates a new network query client.
func NewClient(config ClientConfig) *Client {
	maxConns := config.ConnectionsPerServer
	if maxConns <= 0 {
		maxConns = runtime.NumCPU()
	}

	return &Client{
		maxConnsPerServer: maxConns,
		udpPools:          make(map[string]*connPool),
		poolMu:            sync.RWMutex{},
	}
}

// ExecuteAll executes all requests concurrently and waits for every result.
func (c *Client) ExecuteAll(ctx context.Context, requests []Request) []Response {
	responses := make([]Response, len(requests))

	var wg sync.WaitGroup
	for i := range requests {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			responses[i] = c.execute(ctx, requests[i])
		}(i)
	}
	wg.Wait()

	return responses
}

// Close closes all pooled connections.
func (c *Client) Close() error {
	c.poolMu.Lock()
	defer c.poolMu.Unlock()

	for addr, pool := range c.udpPools {
		pool.Close()
		delete(c.udpPools, addr)
	}

	return nil
}

// execute performs one single-attempt exchange for a request.
func (c *Client) execute(ctx context.Context, req Request) Response {
	deadline := time.Now().Add(req.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	queryCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	msg := newQueryMessage(req)

	pool := c.getPool(req.Server)
	conn, err := pool.Get(queryCtx)
	if err != nil {
		return failedResponse(req, nil, err)
	}

	response, rtt, err := exchangeWithConn(conn, msg, deadline)
	if err != nil {
		pool.Discard(conn)

		return failedResponse(req, response, err)
	}
	pool.Put(conn)

	if response == nil {
		return failedResponse(req, nil, ErrNilResponse)
	}

	// Truncated UDP response - retry the same request over TCP.
	if response.Truncated {
		tcpResponse, tcpRTT, tcpErr := exchangeTCP(queryCtx, msg, req.Server, deadline)
		if tcpErr != nil {
			return failedResponse(req, tcpResponse, tcpErr)
		}
		response, rtt = tcpResponse, tcpRTT
	}

	if response.Id != msg.Id {
		return failedResponse(req, response, fmt.Errorf("%w: got %d, want %d", ErrIDMismatch, response.Id, msg.Id))
	}

	return Response{
		Request:  req,
		Complete: true,
		Valid:    isUsableResponse(response),
		Msg:      response,
		RTT:      rtt,
		Kind:     ErrorNone,
		Err:      nil,
	}
}

// newQueryMessage builds the wire query for a request.
func newQueryMessage(req Request) *dns.Msg {
	msg := new(dns.Msg)
	msg.Id = dns.Id()
	msg.RecursionDesired = true
	msg.Question = []dns.Question{{
		Name:   dns.Fqdn(req.Name),
		Qtype:  req.Qtype,
		Qclass: req.Qclass,
	}}

	return msg
}

// isUsableResponse reports whether a complete response can answer a question.
// Error rcodes such as SERVFAIL and REFUSED are complete but not usable.
func isUsableResponse(msg *dns.Msg) bool {
	if !msg.Response {
		return false
	}

	return msg.Rcode == dns.RcodeSuccess || msg.Rcode == dns.RcodeNameError
}

// failedResponse builds a Response for a failed exchange, classifying the error.
func failedResponse(req Request, msg *dns.Msg, err error) Response {
	return Response{
		Request:  req,
		Complete: false,
		Valid:    false,
		Msg:      msg,
		RTT:      0,
		Kind:     classifyError(err),
		Err:      err,
	}
}

// classifyError maps an exchange error to its ErrorKind
// Timeouts are checked before generic network errors because a read deadline
// surfaces as a *net.OpError whose Timeout() is true.
func classifyError(err error) ErrorKind {
	if err == nil {
		return ErrorNone
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrorTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.Is(err, net.ErrClosed) {
		return ErrorNetwork
	}

	return ErrorOther
}

// exchangeWithConn performs a single query over an existing UDP connection.
func exchangeWithConn(conn *dns.Conn, msg *dns.Msg, deadline time.Time) (*dns.Msg, time.Duration, error) {
	if conn == nil {
		return nil, 0, ErrNilResponse
	}

	if err := conn.SetDeadline(deadline); err != nil {
		return nil, 0, fmt.Errorf("failed to set connection deadline: %w", err)
	}

	start := time.Now()
	if err := conn.WriteMsg(msg); err != nil {
		return nil, 0, fmt.Errorf("failed to write DNS message: %w", err)
	}

	response, err := conn.ReadMsg()
	rtt := time.Since(start)
	if err != nil {
		// ReadMsg can return a partially decoded message alongside the error;
		// hand it back so the caller can classify the server as broken.
		return response, rtt, fmt.Errorf("failed to read DNS response: %w", err)
	}

	return response, rtt, nil
}

// exchangeTCP performs a query over TCP (for truncated responses).
func exchangeTCP(ctx context.Context, msg *dns.Msg, server string, deadline time.Time) (*dns.Msg, time.Duration, error) {
	tcpClient := &dns.Client{
		Net:            "tcp",
		UDPSize:        0,
		TLSConfig:      nil,
		Dialer:         nil,
		Timeout:        time.Until(deadline),
		DialTimeout:    0,
		ReadTimeout:    0,
		WriteTimeout:   0,
		TsigSecret:     nil,
		TsigProvider:   nil,
		SingleInflight: false,
	}

	response, rtt, err := tcpClient.ExchangeContext(ctx, msg, server)
	if err != nil {
		return nil, 0, fmt.Errorf("TCP query to %s failed: %w", server, err)
	}

	return response, rtt, nil
}

// getPool returns (creating if needed) the UDP connection pool for a server.
func (c *Client) getPool(server string) *connPool {
	c.poolMu.RLock()
	pool := c.udpPools[server]
	c.poolMu.RUnlock()

	if pool != nil {
		return pool
	}

	c.poolMu.Lock()
	defer c.poolMu.Unlock()

	if pool, ok := c.udpPools[server]; ok {
		return pool
	}

	pool = newConnPool(server, c.maxConnsPerServer)
	c.udpPools[server] = pool

	return pool
}
