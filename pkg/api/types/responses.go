// Package types contains request and response types for the lookup API.
package types

import "time"

// APIResponse is the standard API response wrapper for errors.
type APIResponse struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status        string        `json:"status"`
	Version       string        `json:"version"`
	GoVersion     string        `json:"go_version"`
	UptimeSeconds float64       `json:"uptime_seconds"`
	Servers       []ServerStats `json:"servers"`
}

// ServerStats contains per-nameserver query statistics.
type ServerStats struct {
	Address       string  `json:"address"`
	RTTMs         float64 `json:"rtt_ms"`
	TotalQueries  int64   `json:"total_queries"`
	TotalFailures int64   `json:"total_failures"`
	LastSuccess   string  `json:"last_success,omitempty"`
	LastFailure   string  `json:"last_failure,omitempty"`
}

// LookupResult is the outcome for one question.
type LookupResult struct {
	// Question is the canonical "name/class/type" form of the question.
	Question string `json:"question"`

	// Server is the nameserver that supplied the decisive response.
	Server string `json:"server,omitempty"`

	// Name is the owner name of the returned records (the end of the CNAME
	// chain, which may differ from the queried name).
	Name string `json:"name,omitempty"`

	// Records holds the answer records in zone-file presentation format.
	Records []string `json:"records,omitempty"`

	// Rcode is the response code of the decisive response.
	Rcode string `json:"rcode,omitempty"`

	// Error names the failure kind for unresolved questions:
	// "nxdomain", "noanswer", "nonameservers", or "timeout".
	Error string `json:"error,omitempty"`
}

// LookupResponse is returned by the single lookup endpoint.
type LookupResponse struct {
	Result LookupResult `json:"result"`
}

// BatchLookupResponse is returned by the batch lookup endpoint.
type BatchLookupResponse struct {
	// BatchID identifies this batch in logs.
	BatchID string `json:"batch_id"`

	Results []LookupResult `json:"results"`
}
