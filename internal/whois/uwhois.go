package whois

import (
	"context"
	"strings"

	"uwhoisd/internal/log"
	"uwhoisd/internal/metrics"
)

// pageFeed separates the registry and registrar responses so clients can split them.
const pageFeed = "\f"

// Querier performs a single WHOIS round trip against one upstream server.
type Querier interface {
	// Query sends text to host:port and returns the full response.
	Query(ctx context.Context, host string, port int, text string) (string, error)
}

// Func is the signature of a WHOIS resolution function, optionally wrapped by a cache.
type Func func(ctx context.Context, query string) (string, error)

// UWhois is the universal WHOIS resolution engine. It routes a query to its zone's registry and,
// for thin registries, follows the referral to the registrar's server.
type UWhois struct {
	Routing  *RoutingTable
	Upstream Querier
	Hook     metrics.WhoisHook
	Logger   log.Logger
	Opts     UWhoisOpts
}

// UWhoisOpts formalizes the response splicing policy for thin registries.
type UWhoisOpts struct {
	// RegistryWhois retains the registry's own response ahead of the registrar's response. When
	// false, only the registrar's response is returned.
	RegistryWhois bool
	// PageFeed inserts a form feed between the retained registry response and the registrar
	// response. It has no effect unless RegistryWhois is set.
	PageFeed bool
}

// Whois resolves a query against the appropriate upstream servers. Upstream failures on either
// leg are returned as *UpstreamError; a failed registrar leg is never masked by a successful
// registry leg.
func (u *UWhois) Whois(ctx context.Context, query string) (string, error) {
	zone := u.Routing.ResolveZone(query)

	/* Registry leg */

	host, port, err := u.Routing.ResolveServer(zone)
	if err != nil {
		return "", err
	}

	u.Logger.Info("uwhois: querying %s about %s", host, query)

	response, err := u.query(ctx, host, port, u.Routing.ResolvePrefix(zone)+query)
	if err != nil {
		return "", err
	}

	if !u.Routing.IsThin(zone) {
		return response, nil
	}

	/* Registrar leg */

	registrar, ok := u.Routing.ResolveRecursion(zone, response)
	if !ok {
		u.Logger.Warn("uwhois: no registrar referral in thin registry response: zone=%s query=%s", zone, query)
		return response, nil
	}

	var sb strings.Builder
	if u.Opts.RegistryWhois {
		sb.WriteString(response)
		if u.Opts.PageFeed {
			sb.WriteString(pageFeed)
		}
	}

	u.Logger.Info("uwhois: recursive query to %s about %s", registrar, query)
	u.Hook.EmitRecursion(zone)

	// Referrals carry no port, so the registry leg's port is reused.
	registrarResponse, err := u.query(ctx, registrar, port, query)
	if err != nil {
		return "", err
	}

	sb.WriteString(registrarResponse)

	return sb.String(), nil
}

// query performs one upstream leg and records its latency.
func (u *UWhois) query(ctx context.Context, host string, port int, text string) (string, error) {
	timer := metrics.NewTimer()

	response, err := u.Upstream.Query(ctx, host, port, text)
	if err != nil {
		if _, ok := AsUpstreamError(err); !ok {
			err = NewUpstreamError(host, KindIO, err)
		}

		return "", err
	}

	u.Hook.EmitUpstreamLatency(timer.Elapsed(), host)

	return response, nil
}
