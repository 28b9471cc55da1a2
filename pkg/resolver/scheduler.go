package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/piwi3910/dns-stub/pkg/query"
)

// batchState holds all mutable per-batch bookkeeping. It is created at the
// start of one resolveBatch call, mutated only between round barriers, and
// discarded when the call returns.
type batchState struct {
	// attempts counts attempt slots consumed per question. The counter
	// advances once per considered slot even when the slot's server was
	// already invalidated, so cycleNum/serverIndex stay pure arithmetic:
	// cycleNum, serverIndex = divmod(attempts, len(servers)).
	attempts map[Question]int

	// validServers is the per-question set of servers not yet disqualified
	// by a hard failure.
	validServers map[Question]map[string]struct{}

	// results maps each question to its terminal outcome once decided.
	results map[Question]Result
}

func newBatchState(questions []Question, servers []string) *batchState {
	st := &batchState{
		attempts:     make(map[Question]int, len(questions)),
		validServers: make(map[Question]map[string]struct{}, len(questions)),
		results:      make(map[Question]Result, len(questions)),
	}

	for _, q := range questions {
		st.attempts[q] = 0
		valid := make(map[string]struct{}, len(servers))
		for _, server := range servers {
			valid[server] = struct{}{}
		}
		st.validServers[q] = valid
	}

	return st
}

// pending returns the questions that have no recorded outcome yet, in a
// stable order.
func (st *batchState) pending(questions []Question) []Question {
	var pending []Question
	for _, q := range questions {
		if _, done := st.results[q]; !done {
			pending = append(pending, q)
		}
	}

	return pending
}

// resolveBatch runs the round loop for a set of already-deduplicated
// questions and returns one Result per question.
func (r *Resolver) resolveBatch(ctx context.Context, questions []Question, allowNoAnswer bool) map[Question]Result {
	st := newBatchState(questions, r.servers)
	start := time.Now()

	pending := st.pending(questions)
	for len(pending) > 0 && r.withinLifetime(start) && ctx.Err() == nil {
		requests := r.planRound(st, pending, start)
		responses := r.exchanger.ExecuteAll(ctx, requests)
		r.foldRound(st, responses, allowNoAnswer)

		pending = st.pending(questions)
	}

	// Whatever is still unresolved ran out of budget.
	for _, q := range pending {
		st.results[q] = Result{
			Answer: nil,
			Err:    fmt.Errorf("%w: %s", ErrTimeout, q),
		}
	}

	return st.results
}

// planRound decides, for every pending question, whether to issue a query
// this round, and returns the round's request set.
//
// Per question it walks consecutive attempt slots until one of three things
// happens: the per-server attempt ceiling is hit (question resolves to
// timeout), the slot's server is still valid (one query is enqueued), or the
// valid set is empty (question resolves to no-usable-nameserver). Slots
// whose server was invalidated are skipped but still consume the counter.
func (r *Resolver) planRound(st *batchState, pending []Question, start time.Time) []query.Request {
	now := time.Now()
	requests := make([]query.Request, 0, len(pending))

	for _, q := range pending {
		if len(st.validServers[q]) == 0 {
			st.results[q] = Result{
				Answer: nil,
				Err:    fmt.Errorf("%w: %s", ErrNoNameservers, q),
			}

			continue
		}

		for {
			cycleNum := st.attempts[q] / len(r.servers)
			serverIndex := st.attempts[q] % len(r.servers)

			if r.maxAttempts > 0 && cycleNum >= r.maxAttempts {
				st.results[q] = Result{
					Answer: nil,
					Err:    fmt.Errorf("%w: %s", ErrTimeout, q),
				}

				break
			}

			server := r.servers[serverIndex]
			st.attempts[q]++

			if _, valid := st.validServers[q][server]; valid {
				requests = append(requests, query.Request{
					Name:    q.Name,
					Qtype:   q.Qtype,
					Qclass:  q.Qclass,
					Server:  server,
					Timeout: r.attemptTimeout(start, now),
				})

				break
			}
		}
	}

	return requests
}

// foldRound applies one round's responses to the batch state.
func (r *Resolver) foldRound(st *batchState, responses []query.Response, allowNoAnswer bool) {
	for _, resp := range responses {
		q := Question{
			Name:   resp.Request.Name,
			Qtype:  resp.Request.Qtype,
			Qclass: resp.Request.Qclass,
		}
		server := resp.Request.Server

		switch {
		case resp.Complete && resp.Valid:
			// A decisive response. Negative answers (NXDOMAIN, no record of
			// the requested type) are authoritative and never retried
			// against other servers.
			answer, err := extractAnswer(q, resp.Msg, server, allowNoAnswer)
			st.results[q] = Result{Answer: answer, Err: err}
			r.health.recordSuccess(server, resp.RTT)

		case resp.Msg != nil || (resp.Kind != query.ErrorTimeout && resp.Kind != query.ErrorNetwork):
			// The server produced a malformed or unexpected response: it is
			// broken for this question and never queried for it again. Other
			// questions keep their own view of the server.
			delete(st.validServers[q], server)
			r.health.recordFailure(server)

		default:
			// True timeout or network error. The server stays eligible for a
			// later cycle.
			r.health.recordFailure(server)
		}
	}
}

// withinLifetime reports whether the batch's wall-clock budget still has
// room. A zero lifetime means unbounded.
func (r *Resolver) withinLifetime(start time.Time) bool {
	if r.lifetime == 0 {
		return true
	}

	return time.Since(start) < r.lifetime
}

// attemptTimeout computes the per-query timeout for this round: the
// per-attempt timeout clamped to the batch's remaining lifetime.
func (r *Resolver) attemptTimeout(start time.Time, now time.Time) time.Duration {
	if r.lifetime == 0 {
		return r.timeout
	}

	remaining := start.Add(r.lifetime).Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	if r.timeout < remaining {
		return r.timeout
	}

	return remaining
}
