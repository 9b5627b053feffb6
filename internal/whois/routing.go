package whois

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// fallbackPort is the IANA-registered WHOIS port, used when the service database is unavailable.
const fallbackPort = 43

var (
	defaultPort     int
	defaultPortOnce sync.Once
)

// DefaultPort returns the WHOIS service port from the system service database, or 43.
func DefaultPort() int {
	defaultPortOnce.Do(func() {
		port, err := net.LookupPort("tcp", "whois")
		if err != nil || port <= 0 {
			port = fallbackPort
		}
		defaultPort = port
	})

	return defaultPort
}

// RoutingTable maps queries to zones and zones to the authoritative upstream servers. It is built
// once at startup and only read afterwards, so it is safe for concurrent use without locking.
type RoutingTable struct {
	// Suffix is appended to a zone to derive its server host when no override exists.
	Suffix string
	// Overrides map a zone onto a "host" or "host:port" server address.
	Overrides map[string]string
	// Prefixes map a zone onto a string prepended to queries sent to its registry.
	Prefixes map[string]string
	// RecursionPatterns mark a zone's registry as thin. Each pattern has a named group "server"
	// that captures the registrar's WHOIS server from the registry response.
	RecursionPatterns map[string]*regexp.Regexp
	// Conservative lists multi-label zones matched as a whole, in order, before the generic
	// first-label split.
	Conservative []string
}

// ResolveZone determines the zone whose registry should be asked about the query.
func (r *RoutingTable) ResolveZone(query string) string {
	for _, zone := range r.Conservative {
		if strings.HasSuffix(query, "."+zone) {
			return zone
		}
	}

	_, zone := SplitFQDN(query)

	return zone
}

// ResolveServer returns the host and port of the WHOIS server for a zone. An override may carry an
// explicit port; a malformed port is reported here rather than at load time.
func (r *RoutingTable) ResolveServer(zone string) (string, int, error) {
	server, ok := r.Overrides[zone]
	if !ok {
		server = zone + "." + r.Suffix
	}

	idx := strings.IndexByte(server, ':')
	if idx < 0 {
		return server, DefaultPort(), nil
	}

	host := server[:idx]

	port, err := strconv.Atoi(server[idx+1:])
	if err != nil || port <= 0 || port > 65535 {
		return host, 0, NewUpstreamError(
			host,
			KindConfig,
			fmt.Errorf("invalid port in server address: server=%s", server),
		)
	}

	return host, port, nil
}

// ResolvePrefix returns the query prefix configured for a zone, or an empty string.
func (r *RoutingTable) ResolvePrefix(zone string) string {
	return r.Prefixes[zone]
}

// IsThin reports whether the zone's registry only refers to registrars.
func (r *RoutingTable) IsThin(zone string) bool {
	_, ok := r.RecursionPatterns[zone]
	return ok
}

// ResolveRecursion extracts the registrar's WHOIS server from a thin registry's response. It
// returns false when the zone is not thin or the response carries no recognizable referral.
func (r *RoutingTable) ResolveRecursion(zone string, response string) (string, bool) {
	pattern, ok := r.RecursionPatterns[zone]
	if !ok {
		return "", false
	}

	match := pattern.FindStringSubmatch(response)
	if match == nil {
		return "", false
	}

	idx := pattern.SubexpIndex("server")
	if idx < 0 || match[idx] == "" {
		return "", false
	}

	return match[idx], true
}

// CompileRecursionPattern compiles a registrar referral pattern. Matching is case-insensitive and
// the pattern must define a named group "server".
func CompileRecursionPattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}

	if re.SubexpIndex("server") < 0 {
		return nil, fmt.Errorf("pattern has no named group \"server\": pattern=%s", pattern)
	}

	return re, nil
}
