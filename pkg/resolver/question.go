// Package resolver implements the resolution core of a DNS stub resolver:
// batch scheduling of questions across multiple nameservers with bounded
// retries, a shared wall-clock budget, and CNAME-aware answer extraction.
package resolver

import (
	"fmt"

	"github.com/miekg/dns"
)

// Question is a (name, type, class) triple to resolve.
//
// The name is stored in canonical form (lowercased FQDN) so that two
// differently-cased spellings of the same name compare equal; Question is
// used as the map key for all per-batch state.
type Question struct {
	// Name is the canonical query name.
	Name string

	// Qtype is the record type to query for.
	Qtype uint16

	// Qclass is the record class to query for.
	Qclass uint16
}

// NewQuestion builds a Question in the IN class with a canonicalized name.
func NewQuestion(name string, qtype uint16) Question {
	return NewQuestionClass(name, qtype, dns.ClassINET)
}

// NewQuestionClass builds a Question with a canonicalized name.
func NewQuestionClass(name string, qtype uint16, qclass uint16) Question {
	return Question{
		Name:   dns.CanonicalName(name),
		Qtype:  qtype,
		Qclass: qclass,
	}
}

// String returns the question in "name/class/type" form.
func (q Question) String() string {
	return fmt.Sprintf("%s/%s/%s", q.Name, dns.ClassToString[q.Qclass], dns.TypeToString[q.Qtype])
}

// Answer is a resolved answer: the record set for the requested type, the
// full response it was extracted from, and the server that supplied it.
//
// Name is the final name in the CNAME chain rooted at the requested name, so
// the record set may belong to a different name than the one queried. RRset
// is empty (not nil-checked by callers) when the no-answer-tolerant path
// accepted a response without a matching record set.
type Answer struct {
	// Name is the owner name of the record set after CNAME chasing.
	Name string

	// RRset holds the records of the requested type at Name.
	RRset []dns.RR

	// Response is the full response message the answer came from.
	Response *dns.Msg

	// Server is the address of the nameserver that supplied the response.
	Server string
}

// Result is the terminal outcome for one question: an Answer, or exactly one
// of ErrNameDoesNotExist, ErrNoAnswer, ErrNoNameservers, ErrTimeout.
type Result struct {
	Answer *Answer
	Err    error
}
