package resolver

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/piwi3910/dns-stub/pkg/query"
)

// Resolver configuration defaults.
const (
	// DefaultTimeout is the default per-attempt query timeout.
	DefaultTimeout = 1 * time.Second

	// DefaultMaxAttempts is the default number of full passes over the
	// server list per question.
	DefaultMaxAttempts = 5

	// DefaultLifetime is the default wall-clock budget for a whole batch.
	DefaultLifetime = 15 * time.Second
)

// Config holds configuration for a Resolver.
type Config struct {
	// Servers is the ordered list of nameserver addresses in host:port form.
	// Ordering is significant: attempts rotate through it round robin.
	Servers []string

	// Timeout is the per-attempt query timeout.
	Timeout time.Duration

	// MaxAttempts is the number of full passes over the server list allowed
	// per question. Zero disables the attempt ceiling.
	MaxAttempts int

	// Lifetime is the wall-clock budget for an entire batch. Zero disables
	// the budget. At least one of MaxAttempts and Lifetime must be set.
	Lifetime time.Duration

	// Shuffle randomizes the server order once per Resolver instance.
	Shuffle bool

	// Exchanger executes the actual wire queries. Nil selects the default
	// network client.
	Exchanger query.Exchanger
}

// DefaultConfig returns configuration with sensible defaults for the given
// servers.
func DefaultConfig(servers []string) Config {
	return Config{
		Servers:     servers,
		Timeout:     DefaultTimeout,
		MaxAttempts: DefaultMaxAttempts,
		Lifetime:    DefaultLifetime,
		Shuffle:     false,
		Exchanger:   nil,
	}
}

// Resolver is a stub DNS resolver. Its configuration is immutable after
// construction; all per-batch state lives inside a single QueryMultiple call,
// so a Resolver is safe for concurrent use.
type Resolver struct {
	servers     []string
	timeout     time.Duration
	maxAttempts int
	lifetime    time.Duration
	exchanger   query.Exchanger
	health      *serverHealth
}

// NewResolver creates a Resolver from a Config.
//
// It fails if no servers are configured, if any bound is negative, or if both
// Lifetime and MaxAttempts are disabled: at least one must bound the retry
// loop, or a batch could run forever against an unresponsive network.
func NewResolver(config Config) (*Resolver, error) {
	if len(config.Servers) == 0 {
		return nil, ErrNoServers
	}
	if config.Timeout < 0 || config.Lifetime < 0 || config.MaxAttempts < 0 {
		// The scheduler reads any positive bound as a ceiling and zero as
		// disabled; a negative value would slip past both and retry forever.
		return nil, ErrNegativeBound
	}
	if config.Lifetime == 0 && config.MaxAttempts == 0 {
		return nil, ErrNoRetryBound
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	servers := make([]string, len(config.Servers))
	copy(servers, config.Servers)
	if config.Shuffle {
		rand.Shuffle(len(servers), func(i, j int) {
			servers[i], servers[j] = servers[j], servers[i]
		})
	}

	exchanger := config.Exchanger
	if exchanger == nil {
		exchanger = query.NewClient(query.DefaultClientConfig())
	}

	return &Resolver{
		servers:     servers,
		timeout:     timeout,
		maxAttempts: config.MaxAttempts,
		lifetime:    config.Lifetime,
		exchanger:   exchanger,
		health:      newServerHealth(),
	}, nil
}

// Query resolves a single question in the IN class, returning the answer or
// the recorded error outcome.
func (r *Resolver) Query(ctx context.Context, name string, qtype uint16) (*Answer, error) {
	return r.queryOne(ctx, NewQuestion(name, qtype), false)
}

// QueryAllowNoAnswer resolves a single question in the IN class, tolerating
// a response without a matching record set: the returned Answer then carries
// an empty RRset. NXDOMAIN still fails.
func (r *Resolver) QueryAllowNoAnswer(ctx context.Context, name string, qtype uint16) (*Answer, error) {
	return r.queryOne(ctx, NewQuestion(name, qtype), true)
}

// QueryMultiple resolves a batch of questions and returns one Result per
// deduplicated question. Per-question errors are captured in the map and
// never interrupt sibling questions.
func (r *Resolver) QueryMultiple(ctx context.Context, questions ...Question) map[Question]Result {
	return r.resolveBatch(ctx, dedupQuestions(questions), false)
}

// QueryMultipleAllowNoAnswer is QueryMultiple with the no-answer-tolerant
// extraction applied to every question.
func (r *Resolver) QueryMultipleAllowNoAnswer(ctx context.Context, questions ...Question) map[Question]Result {
	return r.resolveBatch(ctx, dedupQuestions(questions), true)
}

// Servers returns the server list in the order attempts rotate through it.
func (r *Resolver) Servers() []string {
	servers := make([]string, len(r.servers))
	copy(servers, r.servers)

	return servers
}

// Stats returns per-server query statistics accumulated by this Resolver.
func (r *Resolver) Stats() []ServerSnapshot {
	return r.health.snapshot()
}

func (r *Resolver) queryOne(ctx context.Context, q Question, allowNoAnswer bool) (*Answer, error) {
	results := r.resolveBatch(ctx, []Question{q}, allowNoAnswer)

	result, ok := results[q]
	if !ok {
		// resolveBatch guarantees total coverage; this is unreachable.
		return nil, fmt.Errorf("%w: %s", ErrTimeout, q)
	}
	if result.Err != nil {
		return nil, result.Err
	}

	return result.Answer, nil
}

// dedupQuestions collapses duplicate questions while preserving first-seen
// order, so rounds walk questions deterministically.
func dedupQuestions(questions []Question) []Question {
	seen := make(map[Question]struct{}, len(questions))
	deduped := make([]Question, 0, len(questions))

	for _, q := range questions {
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		deduped = append(deduped, q)
	}

	return deduped
}
