// Package resolvconf loads nameserver addresses from a resolv.conf style
// file. It never returns an empty server list: on read failure or when no
// usable nameserver line is found, it falls back to the local loopback
// resolver.
package resolvconf

import (
	"net"

	"github.com/miekg/dns"
)

const (
	// DefaultPath is the conventional resolver configuration file.
	DefaultPath = "/etc/resolv.conf"

	// defaultPort is appended to nameserver addresses without a port.
	defaultPort = "53"

	// fallbackServer is used when no usable nameserver is configured.
	fallbackServer = "127.0.0.1:53"
)

// Load reads nameserver addresses from path. Entries that are not valid IP
// address literals are skipped. The result is never empty.
func Load(path string) []string {
	conf, err := dns.ClientConfigFromFile(path)
	if err != nil {
		return []string{fallbackServer}
	}

	var servers []string
	for _, server := range conf.Servers {
		// ClientConfigFromFile accepts any token after "nameserver"; only
		// keep entries that are actually address literals.
		addr, ok := Normalize(server)
		if !ok {
			continue
		}
		servers = append(servers, addr)
	}

	if len(servers) == 0 {
		return []string{fallbackServer}
	}

	return servers
}

// Normalize validates a nameserver address literal and returns it in
// host:port form, bracketing IPv6 addresses and appending the DNS port when
// missing.
func Normalize(addr string) (string, bool) {
	// Already host:port?
	if host, port, err := net.SplitHostPort(addr); err == nil {
		if net.ParseIP(host) == nil {
			return "", false
		}

		return net.JoinHostPort(host, port), true
	}

	ip := net.ParseIP(addr)
	if ip == nil {
		return "", false
	}

	return net.JoinHostPort(addr, defaultPort), true
}
