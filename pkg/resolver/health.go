package resolver

import (
	"sync"
	"sync/atomic"
	"time"
)

// Constants for server health accounting.
const (
	// defaultRTTMs is the rolling RTT seed for servers with no samples yet.
	defaultRTTMs = 100.0

	// emaWeightOld is the weight of the previous rolling RTT value.
	emaWeightOld = 0.8

	// emaWeightNew is the weight of a new RTT sample.
	emaWeightNew = 0.2
)

// serverHealth records per-server query statistics for a Resolver.
//
// The stats are observational only: server selection stays strict round
// robin, so nothing here feeds back into scheduling. They exist so operators
// can see which configured servers are slow or failing.
type serverHealth struct {
	servers sync.Map // map[string]*serverStats
}

// serverStats tracks statistics for a single nameserver.
type serverStats struct {
	address string

	// rtt is the rolling average round-trip time in milliseconds
	rtt atomic.Value // float64

	lastSuccess   atomic.Int64
	lastFailure   atomic.Int64
	totalQueries  atomic.Int64
	totalFailures atomic.Int64
}

// ServerSnapshot is a point-in-time copy of one server's statistics.
type ServerSnapshot struct {
	// Address is the server address in host:port form.
	Address string

	// RTTMs is the rolling average round-trip time in milliseconds.
	RTTMs float64

	// TotalQueries is the number of queries sent to this server.
	TotalQueries int64

	// TotalFailures is the number of failed queries, including timeouts.
	TotalFailures int64

	// LastSuccess is the time of the last successful exchange (zero if none).
	LastSuccess time.Time

	// LastFailure is the time of the last failed exchange (zero if none).
	LastFailure time.Time
}

func newServerHealth() *serverHealth {
	return &serverHealth{
		servers: sync.Map{},
	}
}

// getOrCreate gets or creates stats for a server.
func (h *serverHealth) getOrCreate(address string) *serverStats {
	if stats, ok := h.servers.Load(address); ok {
		if serverStats, ok := stats.(*serverStats); ok {
			return serverStats
		}
		h.servers.Delete(address)
	}

	newStats := &serverStats{
		address:       address,
		rtt:           atomic.Value{},
		lastSuccess:   atomic.Int64{},
		lastFailure:   atomic.Int64{},
		totalQueries:  atomic.Int64{},
		totalFailures: atomic.Int64{},
	}
	newStats.rtt.Store(defaultRTTMs)

	actual, _ := h.servers.LoadOrStore(address, newStats)
	if stats, ok := actual.(*serverStats); ok {
		return stats
	}

	return newStats
}

// recordSuccess records a successful exchange and folds the RTT sample into
// the rolling average.
func (h *serverHealth) recordSuccess(address string, rtt time.Duration) {
	stats := h.getOrCreate(address)
	stats.totalQueries.Add(1)
	stats.lastSuccess.Store(time.Now().Unix())

	sample := float64(rtt.Microseconds()) / 1000.0
	if current, ok := stats.rtt.Load().(float64); ok {
		stats.rtt.Store(current*emaWeightOld + sample*emaWeightNew)
	} else {
		stats.rtt.Store(sample)
	}
}

// recordFailure records a failed exchange (timeout, network error, or a
// response the scheduler rejected).
func (h *serverHealth) recordFailure(address string) {
	stats := h.getOrCreate(address)
	stats.totalQueries.Add(1)
	stats.totalFailures.Add(1)
	stats.lastFailure.Store(time.Now().Unix())
}

// snapshot returns a copy of the statistics for all observed servers.
func (h *serverHealth) snapshot() []ServerSnapshot {
	var snapshots []ServerSnapshot

	h.servers.Range(func(_, value any) bool {
		stats, ok := value.(*serverStats)
		if !ok {
			return true
		}

		rtt, _ := stats.rtt.Load().(float64)
		snapshots = append(snapshots, ServerSnapshot{
			Address:       stats.address,
			RTTMs:         rtt,
			TotalQueries:  stats.totalQueries.Load(),
			TotalFailures: stats.totalFailures.Load(),
			LastSuccess:   unixOrZero(stats.lastSuccess.Load()),
			LastFailure:   unixOrZero(stats.lastFailure.Load()),
		})

		return true
	})

	return snapshots
}

func unixOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}

	return time.Unix(sec, 0)
}
