package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/piwi3910/dns-stub/pkg/api/types"
	"github.com/piwi3910/dns-stub/pkg/config"
	"github.com/piwi3910/dns-stub/pkg/query"
	"github.com/piwi3910/dns-stub/pkg/resolver"
)

// fakeExchanger resolves every A question to a fixed address and answers
// NXDOMAIN for names under missing.test.
type fakeExchanger struct{}

func (fakeExchanger) ExecuteAll(_ context.Context, requests []query.Request) []query.Response {
	responses := make([]query.Response, len(requests))
	for i, req := range requests {
		msg := new(dns.Msg)
		msg.Response = true

		if dns.IsSubDomain("missing.test.", req.Name) {
			msg.Rcode = dns.RcodeNameError
		} else {
			rr, err := dns.NewRR(fmt.Sprintf("%s 300 IN A 192.0.2.10", req.Name))
			if err == nil {
				msg.Answer = append(msg.Answer, rr)
			}
		}

		responses[i] = query.Response{
			Request:  req,
			Complete: true,
			Valid:    true,
			Msg:      msg,
			RTT:      time.Millisecond,
			Kind:     query.ErrorNone,
			Err:      nil,
		}
	}

	return responses
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	res, err := resolver.NewResolver(resolver.Config{
		Servers:     []string{"192.0.2.53:53"},
		Timeout:     time.Second,
		MaxAttempts: 2,
		Lifetime:    5 * time.Second,
		Shuffle:     false,
		Exchanger:   fakeExchanger{},
	})
	if err != nil {
		t.Fatalf("Failed to create resolver: %v", err)
	}

	server := NewServer(config.DefaultConfig(), res)

	ts := httptest.NewServer(server.setupRouter())
	t.Cleanup(ts.Close)

	return ts
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var health types.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}

	if health.Status != "ok" {
		t.Errorf("Expected status ok, got %s", health.Status)
	}
}

func TestHandleLookup(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/lookup?name=www.example.com&type=A")
	if err != nil {
		t.Fatalf("Lookup request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var lookup types.LookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&lookup); err != nil {
		t.Fatalf("Failed to decode lookup response: %v", err)
	}

	if lookup.Result.Error != "" {
		t.Fatalf("Expected successful lookup, got error %q", lookup.Result.Error)
	}

	if len(lookup.Result.Records) != 1 {
		t.Errorf("Expected 1 record, got %d", len(lookup.Result.Records))
	}

	if lookup.Result.Server != "192.0.2.53:53" {
		t.Errorf("Expected answer attributed to the nameserver, got %q", lookup.Result.Server)
	}
}

func TestHandleLookup_NXDOMAIN(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/lookup?name=gone.missing.test&type=A")
	if err != nil {
		t.Fatalf("Lookup request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var lookup types.LookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&lookup); err != nil {
		t.Fatalf("Failed to decode lookup response: %v", err)
	}

	if lookup.Result.Error != "nxdomain" {
		t.Errorf("Expected nxdomain error kind, got %q", lookup.Result.Error)
	}
}

func TestHandleLookup_MissingName(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/lookup?type=A")
	if err != nil {
		t.Fatalf("Lookup request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestHandleLookup_UnknownType(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/lookup?name=www.example.com&type=BOGUS")
	if err != nil {
		t.Fatalf("Lookup request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestHandleBatchLookup(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	body, err := json.Marshal(types.BatchLookupRequest{
		Questions: []types.QuestionRequest{
			{Name: "one.example.com", Type: "A", Class: ""},
			{Name: "two.example.com", Type: "A", Class: "IN"},
			{Name: "gone.missing.test", Type: "A", Class: ""},
		},
		AllowNoAnswer: false,
	})
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	resp, err := http.Post(ts.URL+"/api/lookup/batch", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Batch request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var batch types.BatchLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		t.Fatalf("Failed to decode batch response: %v", err)
	}

	if batch.BatchID == "" {
		t.Error("Expected a batch ID")
	}

	if len(batch.Results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(batch.Results))
	}

	errorsByKind := map[string]int{}
	for _, result := range batch.Results {
		errorsByKind[result.Error]++
	}

	if errorsByKind[""] != 2 {
		t.Errorf("Expected 2 successful results, got %d", errorsByKind[""])
	}

	if errorsByKind["nxdomain"] != 1 {
		t.Errorf("Expected 1 nxdomain result, got %d", errorsByKind["nxdomain"])
	}
}

func TestHandleBatchLookup_EmptyBody(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/lookup/batch", "application/json",
		bytes.NewReader([]byte(`{"questions":[]}`)))
	if err != nil {
		t.Fatalf("Batch request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}
