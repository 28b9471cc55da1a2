// Package query executes single-attempt DNS queries against nameservers.
//
// A Request is one (question, server) exchange with its own timeout. An
// Exchanger runs a set of independent Requests with whatever concurrency it
// chooses and returns exactly one Response per Request, each carrying a
// three-way error classification (timeout, network, other) that callers use
// to decide whether a server is worth retrying.
package query

import (
	"context"
	"time"

	"github.com/miekg/dns"
)

// ErrorKind classifies the failure mode of a single exchange.
type ErrorKind int

const (
	// ErrorNone means the exchange produced a response without error.
	ErrorNone ErrorKind = iota

	// ErrorTimeout means the exchange hit its deadline without a response.
	ErrorTimeout

	// ErrorNetwork means a network-level failure (unreachable, refused, reset).
	ErrorNetwork

	// ErrorOther means any other failure, including protocol violations,
	// ID mismatches, and unparseable responses.
	ErrorOther
)

// String returns a human-readable name for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorNone:
		return "none"
	case ErrorTimeout:
		return "timeout"
	case ErrorNetwork:
		return "network"
	case ErrorOther:
		return "other"
	default:
		return "unknown"
	}
}

// Request describes a single-attempt query for one question against one server.
type Request struct {
	// Name is the query name, already in canonical FQDN form.
	Name string

	// Qtype is the record type to query for.
	Qtype uint16

	// Qclass is the record class to query for.
	Qclass uint16

	// Server is the nameserver address in host:port form.
	Server string

	// Timeout bounds this single exchange.
	Timeout time.Duration
}

// Response is the result of one Request.
type Response struct {
	// Request is the request this response belongs to.
	Request Request

	// Complete reports whether a whole, parseable response message arrived.
	Complete bool

	// Valid reports whether a complete response is usable: the response bit
	// is set, the ID matches, and the rcode is NOERROR or NXDOMAIN.
	Valid bool

	// Msg is the response message. It may be non-nil even when Complete is
	// false, e.g. for an ID mismatch, so callers can see what arrived.
	Msg *dns.Msg

	// RTT is the measured round-trip time for successful exchanges.
	RTT time.Duration

	// Kind classifies Err. ErrorNone when the exchange succeeded.
	Kind ErrorKind

	// Err is the underlying error, nil when Kind is ErrorNone.
	Err error
}

// Exchanger executes a set of independent queries concurrently.
//
// ExecuteAll returns when every request has a result; the returned slice is
// index-aligned with requests. Implementations must not retry internally;
// retry policy belongs to the caller.
type Exchanger interface {
	ExecuteAll(ctx context.Context, requests []Request) []Response
}
