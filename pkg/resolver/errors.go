package resolver

import "errors"

// Package-level errors.
//
// The first four are per-question outcomes: they are recorded as data in the
// batch result map and re-raised only by the single-question convenience
// methods. The remaining ones are construction-time configuration errors.
var (
	// ErrNameDoesNotExist is an authoritative negative answer (NXDOMAIN).
	ErrNameDoesNotExist = errors.New("name does not exist")

	// ErrNoAnswer means the name exists but holds no record of the requested
	// type at the end of its CNAME chain.
	ErrNoAnswer = errors.New("no answer for question")

	// ErrNoNameservers means every configured server was disqualified for
	// this question by a hard failure.
	ErrNoNameservers = errors.New("no usable nameservers")

	// ErrTimeout means the lifetime or per-question attempt budget ran out
	// without a decisive answer.
	ErrTimeout = errors.New("query timed out")

	// ErrNoRetryBound is returned by NewResolver when both the lifetime and
	// the per-server attempt limit are disabled.
	ErrNoRetryBound = errors.New("at least one of lifetime or max attempts must be set")

	// ErrNoServers is returned by NewResolver when no nameserver is configured.
	ErrNoServers = errors.New("no nameservers configured")

	// ErrNegativeBound is returned by NewResolver when the timeout, lifetime,
	// or attempt limit is negative.
	ErrNegativeBound = errors.New("timeout, lifetime, and max attempts must not be negative")
)
