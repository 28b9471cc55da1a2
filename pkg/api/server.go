// Package api provides the REST lookup API for the stub resolver.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/miekg/dns"

	"github.com/piwi3910/dns-stub/pkg/api/types"
	"github.com/piwi3910/dns-stub/pkg/config"
	"github.com/piwi3910/dns-stub/pkg/resolver"
)

const version = "0.1.0"

// HTTP server timeouts.
const (
	readTimeout       = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 60 * time.Second
	handlerTimeout    = 30 * time.Second
	corsMaxAgeSec     = 300
	maxBatchQuestions = 64
)

// Server is the HTTP lookup API server.
type Server struct {
	config     *config.Config
	resolver   *resolver.Resolver
	startTime  time.Time
	httpServer *http.Server
}

// NewServer creates a new lookup API server.
func NewServer(cfg *config.Config, res *resolver.Resolver) *Server {
	return &Server{
		config:     cfg,
		resolver:   res,
		startTime:  time.Now(),
		httpServer: nil,
	}
}

// Start starts the API server and blocks until it stops.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.config.API.ListenAddress,
		Handler:           s.setupRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	log.Printf("lookup API listening on %s", s.config.API.ListenAddress)

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(handlerTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.API.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           corsMaxAgeSec,
	}))

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/lookup", s.handleLookup)
	r.Post("/api/lookup/batch", s.handleBatchLookup)

	return r
}

// Health check handler.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := types.HealthResponse{
		Status:        "ok",
		Version:       version,
		GoVersion:     runtime.Version(),
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		Servers:       serverStats(s.resolver.Stats()),
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// Single lookup handler: GET /api/lookup?name=...&type=...&class=...
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		s.sendError(w, http.StatusBadRequest, "missing 'name' parameter")

		return
	}

	qtype, ok := parseType(r.URL.Query().Get("type"))
	if !ok {
		s.sendError(w, http.StatusBadRequest, "unknown record type")

		return
	}

	qclass, ok := parseClass(r.URL.Query().Get("class"))
	if !ok {
		s.sendError(w, http.StatusBadRequest, "unknown record class")

		return
	}

	allowNoAnswer := r.URL.Query().Get("allow_noanswer") == "true"

	question := resolver.NewQuestionClass(name, qtype, qclass)

	var results map[resolver.Question]resolver.Result
	if allowNoAnswer {
		results = s.resolver.QueryMultipleAllowNoAnswer(r.Context(), question)
	} else {
		results = s.resolver.QueryMultiple(r.Context(), question)
	}

	if s.config.Logging.EnableQueryLog {
		log.Printf("lookup %s", question)
	}

	s.sendJSON(w, http.StatusOK, types.LookupResponse{
		Result: lookupResult(question, results[question]),
	})
}

// Batch lookup handler: POST /api/lookup/batch.
func (s *Server) handleBatchLookup(w http.ResponseWriter, r *http.Request) {
	var req types.BatchLookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	if len(req.Questions) == 0 {
		s.sendError(w, http.StatusBadRequest, "no questions in request")

		return
	}
	if len(req.Questions) > maxBatchQuestions {
		s.sendError(w, http.StatusBadRequest, "too many questions in request")

		return
	}

	questions := make([]resolver.Question, 0, len(req.Questions))
	for _, qr := range req.Questions {
		qtype, ok := parseType(qr.Type)
		if !ok {
			s.sendError(w, http.StatusBadRequest, "unknown record type: "+qr.Type)

			return
		}

		qclass, ok := parseClass(qr.Class)
		if !ok {
			s.sendError(w, http.StatusBadRequest, "unknown record class: "+qr.Class)

			return
		}

		questions = append(questions, resolver.NewQuestionClass(qr.Name, qtype, qclass))
	}

	batchID := uuid.NewString()

	var results map[resolver.Question]resolver.Result
	if req.AllowNoAnswer {
		results = s.resolver.QueryMultipleAllowNoAnswer(r.Context(), questions...)
	} else {
		results = s.resolver.QueryMultiple(r.Context(), questions...)
	}

	if s.config.Logging.EnableQueryLog {
		log.Printf("batch %s: %d questions, %d results", batchID, len(req.Questions), len(results))
	}

	resp := types.BatchLookupResponse{
		BatchID: batchID,
		Results: make([]types.LookupResult, 0, len(results)),
	}
	for question, result := range results {
		resp.Results = append(resp.Results, lookupResult(question, result))
	}

	s.sendJSON(w, http.StatusOK, resp)
}

// lookupResult converts a resolver outcome to its JSON form.
func lookupResult(question resolver.Question, result resolver.Result) types.LookupResult {
	out := types.LookupResult{
		Question: question.String(),
		Server:   "",
		Name:     "",
		Records:  nil,
		Rcode:    "",
		Error:    errorKind(result.Err),
	}

	if result.Answer != nil {
		out.Server = result.Answer.Server
		out.Name = result.Answer.Name
		out.Rcode = dns.RcodeToString[result.Answer.Response.Rcode]
		for _, rr := range result.Answer.RRset {
			out.Records = append(out.Records, rr.String())
		}
	}

	return out
}

// errorKind names a per-question error for the API surface.
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, resolver.ErrNameDoesNotExist):
		return "nxdomain"
	case errors.Is(err, resolver.ErrNoAnswer):
		return "noanswer"
	case errors.Is(err, resolver.ErrNoNameservers):
		return "nonameservers"
	case errors.Is(err, resolver.ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}

// parseType converts a record type mnemonic to its wire value.
func parseType(name string) (uint16, bool) {
	if name == "" {
		return dns.TypeA, true
	}

	qtype, ok := dns.StringToType[strings.ToUpper(name)]

	return qtype, ok
}

// parseClass converts a record class mnemonic to its wire value.
func parseClass(name string) (uint16, bool) {
	if name == "" {
		return dns.ClassINET, true
	}

	qclass, ok := dns.StringToClass[strings.ToUpper(name)]

	return qclass, ok
}

func serverStats(snapshots []resolver.ServerSnapshot) []types.ServerStats {
	stats := make([]types.ServerStats, 0, len(snapshots))
	for _, snap := range snapshots {
		stat := types.ServerStats{
			Address:       snap.Address,
			RTTMs:         snap.RTTMs,
			TotalQueries:  snap.TotalQueries,
			TotalFailures: snap.TotalFailures,
			LastSuccess:   "",
			LastFailure:   "",
		}
		if !snap.LastSuccess.IsZero() {
			stat.LastSuccess = snap.LastSuccess.Format(time.RFC3339)
		}
		if !snap.LastFailure.IsZero() {
			stat.LastFailure = snap.LastFailure.Format(time.RFC3339)
		}
		stats = append(stats, stat)
	}

	return stats
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	resp := types.APIResponse{
		Success:   false,
		Error:     message,
		Timestamp: time.Now(),
	}
	s.sendJSON(w, status, resp)
}
