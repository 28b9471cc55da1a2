package query_test

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// mockDNSServer is a scriptable UDP DNS server for tests. Its handler
// receives each parsed query and returns the response to send, or nil to
// drop the packet (simulating an unresponsive server).
type mockDNSServer struct {
	addr    string
	conn    *net.UDPConn
	handler func(query *dns.Msg) *dns.Msg

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// newMockDNSServer starts a mock server on a random loopback port.
func newMockDNSServer(handler func(query *dns.Msg) *dns.Msg) (*mockDNSServer, error) {
	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP: %w", err)
	}

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		_ = conn.Close()

		return nil, fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}

	server := &mockDNSServer{
		addr:    fmt.Sprintf("127.0.0.1:%d", localAddr.Port),
		conn:    conn,
		handler: handler,
		mu:      sync.Mutex{},
		running: true,
		wg:      sync.WaitGroup{},
	}

	server.wg.Add(1)
	go server.serve()

	return server, nil
}

// Addr returns the server's host:port address.
func (m *mockDNSServer) Addr() string {
	return m.addr
}

// Stop shuts the server down and waits for its serve loop to exit.
func (m *mockDNSServer) Stop() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()

	_ = m.conn.Close()
	m.wg.Wait()
}

func (m *mockDNSServer) serve() {
	defer m.wg.Done()

	buffer := make([]byte, 4096)

	for {
		m.mu.Lock()
		running := m.running
		m.mu.Unlock()

		if !running {
			return
		}

		_ = m.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

		n, addr, err := m.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			return
		}

		queryMsg := new(dns.Msg)
		if err := queryMsg.Unpack(buffer[:n]); err != nil {
			continue
		}

		response := m.handler(queryMsg)
		if response == nil {
			// Drop the packet: the client sees a timeout.
			continue
		}

		responseBytes, err := response.Pack()
		if err != nil {
			continue
		}

		_, _ = m.conn.WriteToUDP(responseBytes, addr)
	}
}

// answerHandler returns a handler that responds with one A record.
func answerHandler(ip string) func(queryMsg *dns.Msg) *dns.Msg {
	return func(queryMsg *dns.Msg) *dns.Msg {
		response := new(dns.Msg)
		response.SetReply(queryMsg)

		if len(queryMsg.Question) == 0 {
			response.Rcode = dns.RcodeFormatError

			return response
		}

		q := queryMsg.Question[0]
		rr, err := dns.NewRR(fmt.Sprintf("%s 300 IN A %s", q.Name, ip))
		if err != nil {
			response.Rcode = dns.RcodeServerFailure

			return response
		}
		response.Answer = append(response.Answer, rr)

		return response
	}
}

// rcodeHandler returns a handler that responds with an empty message of the
// given rcode.
func rcodeHandler(rcode int) func(queryMsg *dns.Msg) *dns.Msg {
	return func(queryMsg *dns.Msg) *dns.Msg {
		response := new(dns.Msg)
		response.SetReply(queryMsg)
		response.Rcode = rcode

		return response
	}
}

// dropHandler never responds.
func dropHandler(_ *dns.Msg) *dns.Msg {
	return nil
}

// wrongIDHandler answers correctly but mangles the message ID.
func wrongIDHandler(queryMsg *dns.Msg) *dns.Msg {
	response := answerHandler("192.0.2.1")(queryMsg)
	response.Id = queryMsg.Id + 1

	return response
}
