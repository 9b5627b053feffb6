package network

import (
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"uwhoisd/internal/metrics"
	"uwhoisd/internal/whois"
)

// DefaultMaxResponseSize is the default ceiling on the number of bytes read from an upstream
// server for a single query.
const DefaultMaxResponseSize = 1 << 20

// WhoisClient performs one-shot WHOIS transactions against upstream servers. Each query opens a
// fresh TCP connection, writes a single CRLF-terminated line, and reads until the server closes
// the connection.
type WhoisClient struct {
	cxHook metrics.ConnectionLifecycleHook
	opts   WhoisClientOpts
}

// WhoisClientOpts formalizes WHOIS client configuration options.
type WhoisClientOpts struct {
	// ConnectTimeout is the timeout associated with establishing a connection with the upstream
	// server, including resolving its host name.
	ConnectTimeout time.Duration
	// Timeout bounds the entire transaction with a single upstream server. The effective
	// deadline is the earlier of this timeout and the deadline of the caller's context.
	Timeout time.Duration
	// MaxResponseSize caps the number of bytes read from the upstream server. Anything past the
	// cap is discarded.
	MaxResponseSize int64
}

// NewWhoisClient creates a WHOIS client reporting connection lifecycle events to cxHook.
func NewWhoisClient(cxHook metrics.ConnectionLifecycleHook, opts WhoisClientOpts) *WhoisClient {
	if opts.MaxResponseSize <= 0 {
		opts.MaxResponseSize = DefaultMaxResponseSize
	}

	return &WhoisClient{cxHook: cxHook, opts: opts}
}

// Query sends text to host:port and returns the server's full response, decoded as UTF-8 with
// invalid sequences replaced. Failures are reported as *whois.UpstreamError naming host.
//
// Cancellation of ctx aborts any in-flight I/O and releases the socket immediately.
func (c *WhoisClient) Query(ctx context.Context, host string, port int, text string) (string, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: c.opts.ConnectTimeout}

	dialTimer := metrics.NewTimer()

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.cxHook.EmitConnectionError()
		return "", whois.NewUpstreamError(host, whois.KindConnect, err)
	}

	c.cxHook.EmitConnectionOpen(dialTimer.Elapsed(), conn.RemoteAddr())

	defer func() {
		c.cxHook.EmitConnectionClose(conn.RemoteAddr())
		conn.Close()
	}()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return "", whois.NewUpstreamError(host, whois.KindIO, err)
		}
	}

	// Expire the deadline immediately once the context is done, unblocking any pending I/O.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if _, err := io.WriteString(conn, text+"\r\n"); err != nil {
		return "", c.ioError(ctx, host, err)
	}

	response, err := io.ReadAll(io.LimitReader(conn, c.opts.MaxResponseSize))
	if err != nil {
		return "", c.ioError(ctx, host, err)
	}

	return strings.ToValidUTF8(string(response), "\uFFFD"), nil
}

// ioError attributes an I/O failure to host, preferring the context's error when the failure was
// caused by cancellation.
func (c *WhoisClient) ioError(ctx context.Context, host string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return whois.NewUpstreamError(host, whois.KindIO, ctxErr)
	}

	return whois.NewUpstreamError(host, whois.KindIO, err)
}
