// Package main provides a command-line stub resolver lookup tool.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/piwi3910/dns-stub/pkg/query"
	"github.com/piwi3910/dns-stub/pkg/resolvconf"
	"github.com/piwi3910/dns-stub/pkg/resolver"
)

// Package-level errors.
var (
	ErrUnknownQueryType  = errors.New("unknown query type")
	ErrUnknownQueryClass = errors.New("unknown query class")
	ErrInvalidServer     = errors.New("invalid server address")
)

type cliConfig struct {
	servers       string
	class         string
	timeout       time.Duration
	maxAttempts   int
	lifetime      time.Duration
	shuffle       bool
	allowNoAnswer bool
}

func parseFlags() (*cliConfig, []string) {
	cfg := &cliConfig{
		servers:       "",
		class:         "",
		timeout:       0,
		maxAttempts:   0,
		lifetime:      0,
		shuffle:       false,
		allowNoAnswer: false,
	}
	flag.StringVar(&cfg.servers, "servers", "", "Comma-separated nameservers (default: /etc/resolv.conf)")
	flag.StringVar(&cfg.class, "class", "IN", "Record class")
	flag.DurationVar(&cfg.timeout, "timeout", resolver.DefaultTimeout, "Per-attempt query timeout")
	flag.IntVar(&cfg.maxAttempts, "attempts", resolver.DefaultMaxAttempts, "Max attempts per server (0 to disable)")
	flag.DurationVar(&cfg.lifetime, "lifetime", resolver.DefaultLifetime, "Total time budget (0 to disable)")
	flag.BoolVar(&cfg.shuffle, "shuffle", false, "Shuffle server order once at startup")
	flag.BoolVar(&cfg.allowNoAnswer, "allow-noanswer", false, "Treat a missing record set as success")
	flag.Usage = usage
	flag.Parse()

	return cfg, flag.Args()
}

func usage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [flags] <name> <type>\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	cfg, args := parseFlags()

	if len(args) < 2 {
		usage()
		os.Exit(1)
	}

	name, typeName := args[0], args[1]

	qtype, err := parseQueryType(typeName)
	if err != nil {
		log.Fatal(err)
	}

	qclass, err := parseQueryClass(cfg.class)
	if err != nil {
		log.Fatal(err)
	}

	res, err := buildResolver(cfg)
	if err != nil {
		log.Fatal(err)
	}

	answer := runQuery(res, cfg, name, qtype, qclass)
	printAnswer(name, typeName, answer)
}

// buildResolver assembles a resolver from the CLI flags, loading servers
// from resolv.conf when none were given.
func buildResolver(cfg *cliConfig) (*resolver.Resolver, error) {
	servers, err := serverList(cfg.servers)
	if err != nil {
		return nil, err
	}

	return resolver.NewResolver(resolver.Config{
		Servers:     servers,
		Timeout:     cfg.timeout,
		MaxAttempts: cfg.maxAttempts,
		Lifetime:    cfg.lifetime,
		Shuffle:     cfg.shuffle,
		Exchanger:   query.NewClient(query.DefaultClientConfig()),
	})
}

func runQuery(res *resolver.Resolver, cfg *cliConfig, name string, qtype uint16, qclass uint16) *resolver.Answer {
	question := resolver.NewQuestionClass(name, qtype, qclass)

	var results map[resolver.Question]resolver.Result
	if cfg.allowNoAnswer {
		results = res.QueryMultipleAllowNoAnswer(context.Background(), question)
	} else {
		results = res.QueryMultiple(context.Background(), question)
	}

	result := results[question]
	if result.Err != nil {
		log.Fatalf("Query for %s failed: %v", question, result.Err)
	}

	return result.Answer
}

// serverList parses the -servers flag, falling back to resolv.conf.
func serverList(flagValue string) ([]string, error) {
	if flagValue == "" {
		return resolvconf.Load(resolvconf.DefaultPath), nil
	}

	var servers []string
	for _, raw := range strings.Split(flagValue, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		addr, ok := resolvconf.Normalize(raw)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidServer, raw)
		}
		servers = append(servers, addr)
	}

	return servers, nil
}

// parseQueryType converts a record type mnemonic to its wire value.
func parseQueryType(typeName string) (uint16, error) {
	qtype, ok := dns.StringToType[strings.ToUpper(typeName)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownQueryType, typeName)
	}

	return qtype, nil
}

// parseQueryClass converts a record class mnemonic to its wire value.
func parseQueryClass(className string) (uint16, error) {
	qclass, ok := dns.StringToClass[strings.ToUpper(className)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownQueryClass, className)
	}

	return qclass, nil
}

// printAnswer prints the resolved answer in a dig-like format.
func printAnswer(name string, typeName string, answer *resolver.Answer) {
	size := 0
	if packed, err := answer.Response.Pack(); err == nil {
		size = len(packed)
	}

	_, _ = fmt.Fprintf(os.Stdout, "Response for %s/%s:\n", name, typeName)
	_, _ = fmt.Fprintf(os.Stdout, "   from %s: %s (%d bytes)\n",
		answer.Server, dns.RcodeToString[answer.Response.Rcode], size)

	if len(answer.RRset) == 0 {
		_, _ = fmt.Fprintf(os.Stdout, "   answer: (none)\n")

		return
	}

	_, _ = fmt.Fprintf(os.Stdout, "   answer:\n")
	for _, rr := range answer.RRset {
		_, _ = fmt.Fprintf(os.Stdout, "      %s\n", rr.String())
	}
}
