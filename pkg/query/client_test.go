package query_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/piwi3910/dns-stub/pkg/query"
)

func newTestRequest(server string, timeout time.Duration) query.Request {
	return query.Request{
		Name:    "www.example.com.",
		Qtype:   dns.TypeA,
		Qclass:  dns.ClassINET,
		Server:  server,
		Timeout: timeout,
	}
}

func TestExecuteAll_Answer(t *testing.T) {
	t.Parallel()

	server, err := newMockDNSServer(answerHandler("192.0.2.10"))
	if err != nil {
		t.Fatalf("Failed to start mock server: %v", err)
	}
	defer server.Stop()

	client := query.NewClient(query.DefaultClientConfig())
	defer func() { _ = client.Close() }()

	responses := client.ExecuteAll(context.Background(),
		[]query.Request{newTestRequest(server.Addr(), 2*time.Second)})

	if len(responses) != 1 {
		t.Fatalf("Expected 1 response, got %d", len(responses))
	}

	resp := responses[0]
	if !resp.Complete || !resp.Valid {
		t.Fatalf("Expected complete valid response, got complete=%v valid=%v err=%v",
			resp.Complete, resp.Valid, resp.Err)
	}

	if resp.Kind != query.ErrorNone {
		t.Errorf("Expected ErrorNone, got %v", resp.Kind)
	}

	if len(resp.Msg.Answer) != 1 {
		t.Errorf("Expected 1 answer record, got %d", len(resp.Msg.Answer))
	}
}

func TestExecuteAll_Timeout(t *testing.T) {
	t.Parallel()

	server, err := newMockDNSServer(dropHandler)
	if err != nil {
		t.Fatalf("Failed to start mock server: %v", err)
	}
	defer server.Stop()

	client := query.NewClient(query.DefaultClientConfig())
	defer func() { _ = client.Close() }()

	start := time.Now()
	responses := client.ExecuteAll(context.Background(),
		[]query.Request{newTestRequest(server.Addr(), 200*time.Millisecond)})
	elapsed := time.Since(start)

	resp := responses[0]
	if resp.Complete {
		t.Fatal("Expected incomplete response for dropped packet")
	}

	if resp.Kind != query.ErrorTimeout {
		t.Errorf("Expected ErrorTimeout, got %v (err=%v)", resp.Kind, resp.Err)
	}

	if elapsed > 2*time.Second {
		t.Errorf("Timeout took %v, expected around 200ms", elapsed)
	}
}

func TestExecuteAll_ErrorRcodeIsCompleteButNotValid(t *testing.T) {
	t.Parallel()

	server, err := newMockDNSServer(rcodeHandler(dns.RcodeServerFailure))
	if err != nil {
		t.Fatalf("Failed to start mock server: %v", err)
	}
	defer server.Stop()

	client := query.NewClient(query.DefaultClientConfig())
	defer func() { _ = client.Close() }()

	responses := client.ExecuteAll(context.Background(),
		[]query.Request{newTestRequest(server.Addr(), 2*time.Second)})

	resp := responses[0]
	if !resp.Complete {
		t.Fatalf("Expected complete response, got err=%v", resp.Err)
	}

	if resp.Valid {
		t.Error("Expected SERVFAIL response to be invalid")
	}

	if resp.Msg == nil {
		t.Error("Expected message to be attached")
	}
}

func TestExecuteAll_NXDOMAINIsValid(t *testing.T) {
	t.Parallel()

	server, err := newMockDNSServer(rcodeHandler(dns.RcodeNameError))
	if err != nil {
		t.Fatalf("Failed to start mock server: %v", err)
	}
	defer server.Stop()

	client := query.NewClient(query.DefaultClientConfig())
	defer func() { _ = client.Close() }()

	responses := client.ExecuteAll(context.Background(),
		[]query.Request{newTestRequest(server.Addr(), 2*time.Second)})

	resp := responses[0]
	if !resp.Complete || !resp.Valid {
		t.Errorf("Expected NXDOMAIN to be complete and valid, got complete=%v valid=%v",
			resp.Complete, resp.Valid)
	}
}

func TestExecuteAll_WrongIDIsOtherError(t *testing.T) {
	t.Parallel()

	server, err := newMockDNSServer(wrongIDHandler)
	if err != nil {
		t.Fatalf("Failed to start mock server: %v", err)
	}
	defer server.Stop()

	client := query.NewClient(query.DefaultClientConfig())
	defer func() { _ = client.Close() }()

	responses := client.ExecuteAll(context.Background(),
		[]query.Request{newTestRequest(server.Addr(), 2*time.Second)})

	resp := responses[0]
	if resp.Complete {
		t.Error("Expected ID mismatch to be incomplete")
	}

	if resp.Kind != query.ErrorOther {
		t.Errorf("Expected ErrorOther, got %v (err=%v)", resp.Kind, resp.Err)
	}

	if resp.Msg == nil {
		t.Error("Expected mismatched message to be attached for inspection")
	}
}

func TestExecuteAll_ConcurrentBarrier(t *testing.T) {
	t.Parallel()

	server, err := newMockDNSServer(answerHandler("192.0.2.20"))
	if err != nil {
		t.Fatalf("Failed to start mock server: %v", err)
	}
	defer server.Stop()

	client := query.NewClient(query.DefaultClientConfig())
	defer func() { _ = client.Close() }()

	const numRequests = 8

	requests := make([]query.Request, 0, numRequests)
	for i := 0; i < numRequests; i++ {
		requests = append(requests, query.Request{
			Name:    fmt.Sprintf("host%d.example.com.", i),
			Qtype:   dns.TypeA,
			Qclass:  dns.ClassINET,
			Server:  server.Addr(),
			Timeout: 2 * time.Second,
		})
	}

	responses := client.ExecuteAll(context.Background(), requests)

	if len(responses) != numRequests {
		t.Fatalf("Expected %d responses, got %d", numRequests, len(responses))
	}

	// Responses are index-aligned with requests.
	for i, resp := range responses {
		if resp.Request.Name != requests[i].Name {
			t.Errorf("Response %d belongs to %s, want %s", i, resp.Request.Name, requests[i].Name)
		}
		if !resp.Complete || !resp.Valid {
			t.Errorf("Request %d failed: %v", i, resp.Err)
		}
	}
}

func TestErrorKindString(t *testing.T) {
	t.Parallel()

	kinds := map[query.ErrorKind]string{
		query.ErrorNone:    "none",
		query.ErrorTimeout: "timeout",
		query.ErrorNetwork: "network",
		query.ErrorOther:   "other",
	}

	for kind, want := range kinds {
		if kind.String() != want {
			t.Errorf("Expected %q, got %q", want, kind.String())
		}
	}
}
