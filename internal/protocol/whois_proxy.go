package protocol

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/getsentry/raven-go"
	"github.com/pkg/errors"

	"uwhoisd/internal/log"
	"uwhoisd/internal/metrics"
	"uwhoisd/internal/whois"
)

// Wire-level responses for failures that are answered rather than silently dropped.
const (
	queryTimeoutResponse    = "; Query timeout: closing\r\n"
	upstreamTimeoutResponse = "; Timeout from upstream server\r\n"
	rateLimitedResponse     = "; Rate limit exceeded\r\n"
	badQueryResponse        = "; Bad query: '%s'\r\n"
)

// Query outcomes reported to the metrics hook.
const (
	outcomeOK              = "ok"
	outcomeBadQuery        = "bad_query"
	outcomeReadTimeout     = "read_timeout"
	outcomeRateLimited     = "rate_limited"
	outcomeUpstreamTimeout = "upstream_timeout"
	outcomeUpstreamError   = "upstream_error"
)

// DefaultMaxQueryLength is the default ceiling on the length of a client query line.
const DefaultMaxQueryLength = 1024

// WhoisProxyHandler is a WHOIS protocol server handler. It reads a single query line from the
// client, resolves it through Whois, and writes back the response or an error line before the
// connection is closed.
type WhoisProxyHandler struct {
	Whois          whois.Func
	ClientCxIOHook metrics.ConnectionIOHook
	Hook           metrics.WhoisHook
	Logger         log.Logger
	// Limiter, if set, rejects clients that query too often.
	Limiter *ClientLimiter
	Opts    WhoisProxyOpts
}

// WhoisProxyOpts formalizes configuration options for the proxy handler.
type WhoisProxyOpts struct {
	// UpstreamTimeout bounds the wall clock time spent resolving a query, across both legs of a
	// recursive query.
	UpstreamTimeout time.Duration
	// MaxQueryLength is the maximum length of a query line, excluding its terminator. Longer
	// queries are rejected as bad queries.
	MaxQueryLength int
}

// ConsumeError logs the error and reports it upstream.
func (h *WhoisProxyHandler) ConsumeError(ctx context.Context, err error) {
	h.Logger.Error("%v", err)
	h.Hook.EmitError()

	tags := map[string]string{}
	if upstreamErr, ok := whois.AsUpstreamError(err); ok {
		tags["server"] = upstreamErr.Server
		tags["kind"] = upstreamErr.Kind.String()
	}

	raven.CaptureError(err, tags)
}

// Handle serves a single query on the client connection. Conditions that are answered on the wire
// (malformed queries, timeouts, upstream failures) are not returned as errors; only failures to
// talk to the client itself are.
func (h *WhoisProxyHandler) Handle(ctx context.Context, clientConn net.Conn) error {
	rttTimer := metrics.NewTimer()
	client := clientConn.RemoteAddr()

	/* Awaiting query */

	line, overlong, err := h.clientRead(clientConn)
	if err == io.EOF {
		h.Logger.Debug("whois_proxy: client closed connection without a query: client=%v", client)
		return nil
	}

	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			h.ClientCxIOHook.EmitTimeout(client)
			h.Logger.Debug("whois_proxy: timed out reading query: client=%v", client)

			return h.respond(clientConn, outcomeReadTimeout, queryTimeoutResponse, rttTimer)
		}

		h.ClientCxIOHook.EmitReadError(client)

		return fmt.Errorf("whois_proxy: error reading query from client: client=%v err=%v", client, err)
	}

	if h.Limiter != nil && !h.Limiter.Allow(client) {
		h.Logger.Warn("whois_proxy: rate limit exceeded: client=%v", client)
		return h.respond(clientConn, outcomeRateLimited, rateLimitedResponse, rttTimer)
	}

	/* Validating */

	query := strings.ToLower(strings.TrimSpace(line))

	if overlong {
		h.Logger.Debug("whois_proxy: rejecting overlong query: client=%v prefix=%q", client, query)
		return h.respond(clientConn, outcomeBadQuery, fmt.Sprintf(badQueryResponse, query), rttTimer)
	}

	if !whois.IsWellFormedFQDN(query) {
		h.Logger.Debug("whois_proxy: rejecting malformed query: client=%v query=%q", client, query)
		return h.respond(clientConn, outcomeBadQuery, fmt.Sprintf(badQueryResponse, query), rttTimer)
	}

	/* Resolving */

	response, outcome := h.resolve(ctx, query)

	/* Responding */

	return h.respond(clientConn, outcome, response, rttTimer)
}

// clientRead reads the query line from the client. A line cut short by the client closing its
// write side is accepted as is. A line longer than the maximum query length is reported as
// overlong, with only its first maximum-length bytes returned.
func (h *WhoisProxyHandler) clientRead(conn net.Conn) (string, bool, error) {
	maxLength := h.Opts.MaxQueryLength
	if maxLength <= 0 {
		maxLength = DefaultMaxQueryLength
	}

	// Room for the CRLF terminator, plus one byte to detect overlong lines.
	reader := bufio.NewReader(io.LimitReader(conn, int64(maxLength)+3))

	line, err := reader.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}

	if err != nil {
		return "", false, err
	}

	if len(strings.TrimRight(line, "\r\n")) > maxLength {
		return line[:maxLength], true, nil
	}

	return line, false, nil
}

// resolve runs the query through the resolution function under the upstream timeout, mapping
// failures onto their wire-level error lines.
func (h *WhoisProxyHandler) resolve(ctx context.Context, query string) (string, string) {
	if h.Opts.UpstreamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Opts.UpstreamTimeout)
		defer cancel()
	}

	response, err := h.Whois(ctx, query)
	if err == nil {
		return response, outcomeOK
	}

	upstreamErr, isUpstream := whois.AsUpstreamError(err)

	if errors.Is(err, context.DeadlineExceeded) || (isUpstream && upstreamErr.Timeout()) {
		h.Logger.Warn("whois_proxy: upstream timeout: query=%s err=%v", query, err)
		return upstreamTimeoutResponse, outcomeUpstreamTimeout
	}

	h.Logger.Error("whois_proxy: upstream failure: query=%s err=%v", query, err)

	return err.Error() + "\n", outcomeUpstreamError
}

// respond writes the response to the client and reports end-to-end metrics.
func (h *WhoisProxyHandler) respond(conn net.Conn, outcome string, response string, rttTimer metrics.Timer) error {
	client := conn.RemoteAddr()

	written, err := io.WriteString(conn, response)
	if err != nil {
		h.ClientCxIOHook.EmitWriteError(client)
		return fmt.Errorf("whois_proxy: error writing response to client: client=%v err=%v", client, err)
	}

	h.Hook.EmitQuery(outcome, client)
	h.Hook.EmitResponseSize(int64(written), client)
	h.Hook.EmitRTT(rttTimer.Elapsed(), client)

	h.Logger.Debug(
		"whois_proxy: completed write back to client: outcome=%s response_bytes=%d rtt=%v",
		outcome,
		written,
		rttTimer.Elapsed(),
	)

	return nil
}
