package resolver

import (
	"fmt"

	"github.com/miekg/dns"
)

// maxCNAMERedirection bounds CNAME chain following. The bound guarantees
// termination against cyclic or unbounded chains; running into it is treated
// the same as finding no answer.
const maxCNAMERedirection = 20

// ExtractAnswer validates a response message for a question.
//
// It fails with ErrNameDoesNotExist on an NXDOMAIN rcode (checked before any
// CNAME chasing) and with ErrNoAnswer when no record set of the requested
// type exists at the end of the CNAME chain.
func ExtractAnswer(q Question, msg *dns.Msg, server string) (*Answer, error) {
	return extractAnswer(q, msg, server, false)
}

// ExtractAnswerAllowNoAnswer is the no-answer-tolerant variant: a missing
// final record set yields an Answer with an empty RRset instead of an error.
// NXDOMAIN still fails.
func ExtractAnswerAllowNoAnswer(q Question, msg *dns.Msg, server string) (*Answer, error) {
	return extractAnswer(q, msg, server, true)
}

func extractAnswer(q Question, msg *dns.Msg, server string, allowNoAnswer bool) (*Answer, error) {
	if msg.Rcode == dns.RcodeNameError {
		return nil, fmt.Errorf("%w: %s", ErrNameDoesNotExist, q.Name)
	}

	name := q.Name
	var rrset []dns.RR

	for i := 0; i < maxCNAMERedirection; i++ {
		rrset = findRRset(msg.Answer, name, q.Qclass, q.Qtype)
		if len(rrset) > 0 {
			break
		}

		cnames := findRRset(msg.Answer, name, q.Qclass, dns.TypeCNAME)
		if len(cnames) == 0 {
			break
		}

		cname, ok := cnames[0].(*dns.CNAME)
		if !ok {
			break
		}
		name = dns.CanonicalName(cname.Target)
	}

	if len(rrset) == 0 && !allowNoAnswer {
		return nil, fmt.Errorf("%w: %s", ErrNoAnswer, q)
	}

	return &Answer{
		Name:     name,
		RRset:    rrset,
		Response: msg,
		Server:   server,
	}, nil
}

// findRRset collects the records of one (name, class, type) from an answer
// section. Owner names are compared in canonical form.
func findRRset(answer []dns.RR, name string, qclass uint16, qtype uint16) []dns.RR {
	var rrset []dns.RR
	for _, rr := range answer {
		header := rr.Header()
		if header.Rrtype != qtype || header.Class != qclass {
			continue
		}
		if dns.CanonicalName(header.Name) != name {
			continue
		}
		rrset = append(rrset, rr)
	}

	return rrset
}
