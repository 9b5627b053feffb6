//go:generate go run golang.org/x/tools/cmd/stringer -type=Kind -linecomment=true

package whois

import (
	"context"
	"fmt"
	"net"

	"github.com/pkg/errors"
)

// Kind classifies a failure talking to an upstream WHOIS server.
type Kind int

const (
	// KindConnect is a failure establishing the TCP connection.
	KindConnect Kind = iota // connect
	// KindResolve is a failure resolving the upstream server's host name.
	KindResolve // resolve
	// KindTimeout is an upstream operation that exceeded its deadline.
	KindTimeout // timeout
	// KindIO is a failure writing the query or reading the response.
	KindIO // io
	// KindConfig is a routing entry that cannot be turned into a dialable address.
	KindConfig // config
)

// UpstreamError is a failed upstream query leg. It always names the server that failed so that
// operators can tell which upstream is unreachable.
type UpstreamError struct {
	Server string
	Kind   Kind
	Err    error
}

// NewUpstreamError classifies err and attributes it to server. Context expiry and network
// timeouts are reported as KindTimeout regardless of the fallback kind.
func NewUpstreamError(server string, fallback Kind, err error) *UpstreamError {
	kind := fallback

	var netErr net.Error
	var dnsErr *net.DNSError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &dnsErr) && !dnsErr.IsTimeout:
		kind = KindResolve
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}

	return &UpstreamError{Server: server, Kind: kind, Err: err}
}

// Error formats the failure as "<server>: <detail>".
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Server, e.Err)
}

// Unwrap exposes the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Cause exposes the underlying error to github.com/pkg/errors.
func (e *UpstreamError) Cause() error {
	return e.Err
}

// Timeout reports whether the failure was a deadline expiry.
func (e *UpstreamError) Timeout() bool {
	return e.Kind == KindTimeout
}

// AsUpstreamError extracts an UpstreamError from an error chain.
func AsUpstreamError(err error) (*UpstreamError, bool) {
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr, true
	}

	return nil, false
}
