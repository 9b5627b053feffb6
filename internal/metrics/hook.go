package metrics

import (
	"fmt"
	"net"
	"os"
	"time"
)

// ConnectionLifecycleHook is a metrics hook interface for reporting events that occur during a TCP
// connection lifecycle, either with a client or with an upstream WHOIS server.
type ConnectionLifecycleHook interface {
	// EmitConnectionOpen reports the event that a connection was successfully opened.
	EmitConnectionOpen(latency time.Duration, addr net.Addr)

	// EmitConnectionClose reports the event that a connection was closed.
	EmitConnectionClose(addr net.Addr)

	// EmitConnectionError reports occurrence of an error establishing a connection.
	EmitConnectionError()
}

// ConnectionIOHook is a metrics hook interface for reporting events related to I/O with an
// established TCP connection.
type ConnectionIOHook interface {
	// EmitReadError reports the event that a connection read failed.
	EmitReadError(addr net.Addr)

	// EmitWriteError reports the event that a connection write failed.
	EmitWriteError(addr net.Addr)

	// EmitTimeout reports the event that an I/O operation exceeded its deadline.
	EmitTimeout(addr net.Addr)
}

// WhoisHook is a metrics hook interface for reporting events and latencies related to resolving a
// single client query end-to-end.
type WhoisHook interface {
	// EmitQuery reports a served client query with its outcome, e.g. "ok" or "bad_query".
	EmitQuery(outcome string, client net.Addr)

	// EmitCacheHit reports a query answered from the cache.
	EmitCacheHit()

	// EmitCacheMiss reports a query that had to be resolved upstream.
	EmitCacheMiss()

	// EmitRecursion reports a thin registry referral followed to a registrar server.
	EmitRecursion(zone string)

	// EmitUpstreamLatency reports the latency of a single upstream query leg.
	EmitUpstreamLatency(latency time.Duration, server string)

	// EmitRTT reports the total, end-to-end latency associated with serving a single client
	// query, including reading the query and writing the response.
	EmitRTT(latency time.Duration, client net.Addr)

	// EmitResponseSize reports the size of the response written to the client.
	EmitResponseSize(bytes int64, client net.Addr)

	// EmitError reports the occurrence of a critical error in the query lifecycle that causes
	// the request to not be correctly served.
	EmitError()
}

// AsyncStatsdConnectionLifecycleHook is an implementation of ConnectionLifecycleHook that outputs
// metrics asynchronously to statsd.
type AsyncStatsdConnectionLifecycleHook struct {
	client *StatsdClient
	source string
}

// AsyncStatsdConnectionIOHook is an implementation of ConnectionIOHook that outputs metrics
// asynchronously to statsd.
type AsyncStatsdConnectionIOHook struct {
	client *StatsdClient
	source string
}

// AsyncStatsdWhoisHook is an implementation of WhoisHook that outputs metrics asynchronously to
// statsd.
type AsyncStatsdWhoisHook struct {
	client *StatsdClient
}

// NoopConnectionLifecycleHook implements the ConnectionLifecycleHook interface but noops on all
// emissions.
type NoopConnectionLifecycleHook struct{}

// NoopConnectionIOHook implements the ConnectionIOHook interface but noops on all emissions.
type NoopConnectionIOHook struct{}

// NoopWhoisHook implements the WhoisHook interface but noops on all emissions.
type NoopWhoisHook struct{}

// NewAsyncStatsdConnectionLifecycleHook creates a new client with the specified source, statsd
// address, and statsd sample rate. The source denotes the entity with whom the server is opening
// and closing TCP connections.
func NewAsyncStatsdConnectionLifecycleHook(source string, addr string, sampleRate float32, version string) (ConnectionLifecycleHook, error) {
	client, err := statsdClientFactory(addr, sampleRate, version)
	if err != nil {
		return nil, err
	}

	return &AsyncStatsdConnectionLifecycleHook{
		client: client,
		source: source,
	}, nil
}

// EmitConnectionOpen statsd implementation
func (h *AsyncStatsdConnectionLifecycleHook) EmitConnectionOpen(latency time.Duration, addr net.Addr) {
	go func() {
		tags := map[string]string{"addr": ipFromAddr(addr)}

		h.client.Count(fmt.Sprintf("event.%s.cx_open", h.source), 1, tags)

		if latency > 0 {
			h.client.Timing(fmt.Sprintf("latency.%s.cx_open", h.source), latency, tags)
		}
	}()
}

// EmitConnectionClose statsd implementation
func (h *AsyncStatsdConnectionLifecycleHook) EmitConnectionClose(addr net.Addr) {
	go h.client.Count(fmt.Sprintf("event.%s.cx_close", h.source), 1, map[string]string{
		"addr": ipFromAddr(addr),
	})
}

// EmitConnectionError statsd implementation
func (h *AsyncStatsdConnectionLifecycleHook) EmitConnectionError() {
	go h.client.Count(fmt.Sprintf("event.%s.cx_error", h.source), 1, nil)
}

// NewNoopConnectionLifecycleHook creates a noop implementation of ConnectionLifecycleHook.
func NewNoopConnectionLifecycleHook() ConnectionLifecycleHook {
	return &NoopConnectionLifecycleHook{}
}

// EmitConnectionOpen noops.
func (h *NoopConnectionLifecycleHook) EmitConnectionOpen(latency time.Duration, addr net.Addr) {}

// EmitConnectionClose noops.
func (h *NoopConnectionLifecycleHook) EmitConnectionClose(addr net.Addr) {}

// EmitConnectionError noops.
func (h *NoopConnectionLifecycleHook) EmitConnectionError() {}

// NewAsyncStatsdConnectionIOHook creates a new client with the specified source, statsd address,
// and statsd sample rate. The source denotes the entity with whom the server is performing I/O.
func NewAsyncStatsdConnectionIOHook(source string, addr string, sampleRate float32, version string) (ConnectionIOHook, error) {
	client, err := statsdClientFactory(addr, sampleRate, version)
	if err != nil {
		return nil, err
	}

	return &AsyncStatsdConnectionIOHook{
		client: client,
		source: source,
	}, nil
}

// EmitReadError statsd implementation.
func (h *AsyncStatsdConnectionIOHook) EmitReadError(addr net.Addr) {
	go h.client.Count(fmt.Sprintf("event.%s.read_error", h.source), 1, map[string]string{
		"addr": ipFromAddr(addr),
	})
}

// EmitWriteError statsd implementation.
func (h *AsyncStatsdConnectionIOHook) EmitWriteError(addr net.Addr) {
	go h.client.Count(fmt.Sprintf("event.%s.write_error", h.source), 1, map[string]string{
		"addr": ipFromAddr(addr),
	})
}

// EmitTimeout statsd implementation.
func (h *AsyncStatsdConnectionIOHook) EmitTimeout(addr net.Addr) {
	go h.client.Count(fmt.Sprintf("event.%s.io_timeout", h.source), 1, map[string]string{
		"addr": ipFromAddr(addr),
	})
}

// NewNoopConnectionIOHook creates a noop implementation of ConnectionIOHook.
func NewNoopConnectionIOHook() ConnectionIOHook {
	return &NoopConnectionIOHook{}
}

// EmitReadError noops.
func (h *NoopConnectionIOHook) EmitReadError(addr net.Addr) {}

// EmitWriteError noops.
func (h *NoopConnectionIOHook) EmitWriteError(addr net.Addr) {}

// EmitTimeout noops.
func (h *NoopConnectionIOHook) EmitTimeout(addr net.Addr) {}

// NewAsyncStatsdWhoisHook creates a new client with the specified statsd address and sample rate.
func NewAsyncStatsdWhoisHook(addr string, sampleRate float32, version string) (WhoisHook, error) {
	client, err := statsdClientFactory(addr, sampleRate, version)
	if err != nil {
		return nil, err
	}

	return &AsyncStatsdWhoisHook{client}, nil
}

// EmitQuery statsd implementation
func (h *AsyncStatsdWhoisHook) EmitQuery(outcome string, client net.Addr) {
	go h.client.Count("event.whois.query", 1, map[string]string{
		"outcome": outcome,
		"client":  ipFromAddr(client),
	})
}

// EmitCacheHit statsd implementation
func (h *AsyncStatsdWhoisHook) EmitCacheHit() {
	go h.client.Count("event.cache.hit", 1, nil)
}

// EmitCacheMiss statsd implementation
func (h *AsyncStatsdWhoisHook) EmitCacheMiss() {
	go h.client.Count("event.cache.miss", 1, nil)
}

// EmitRecursion statsd implementation
func (h *AsyncStatsdWhoisHook) EmitRecursion(zone string) {
	go h.client.Count("event.whois.recursion", 1, map[string]string{
		"zone": zone,
	})
}

// EmitUpstreamLatency statsd implementation
func (h *AsyncStatsdWhoisHook) EmitUpstreamLatency(latency time.Duration, server string) {
	go h.client.Timing("latency.whois.upstream", latency, map[string]string{
		"upstream": server,
	})
}

// EmitRTT statsd implementation
func (h *AsyncStatsdWhoisHook) EmitRTT(latency time.Duration, client net.Addr) {
	go h.client.Timing("latency.whois.tx_rtt", latency, map[string]string{
		"client": ipFromAddr(client),
	})
}

// EmitResponseSize statsd implementation
func (h *AsyncStatsdWhoisHook) EmitResponseSize(bytes int64, client net.Addr) {
	go h.client.Size("size.whois.response", bytes, map[string]string{
		"client": ipFromAddr(client),
	})
}

// EmitError statsd implementation
func (h *AsyncStatsdWhoisHook) EmitError() {
	go h.client.Count("event.whois.error", 1, nil)
}

// NewNoopWhoisHook creates a noop implementation of WhoisHook.
func NewNoopWhoisHook() WhoisHook {
	return &NoopWhoisHook{}
}

// EmitQuery noops.
func (h *NoopWhoisHook) EmitQuery(outcome string, client net.Addr) {}

// EmitCacheHit noops.
func (h *NoopWhoisHook) EmitCacheHit() {}

// EmitCacheMiss noops.
func (h *NoopWhoisHook) EmitCacheMiss() {}

// EmitRecursion noops.
func (h *NoopWhoisHook) EmitRecursion(zone string) {}

// EmitUpstreamLatency noops.
func (h *NoopWhoisHook) EmitUpstreamLatency(latency time.Duration, server string) {}

// EmitRTT noops.
func (h *NoopWhoisHook) EmitRTT(latency time.Duration, client net.Addr) {}

// EmitResponseSize noops.
func (h *NoopWhoisHook) EmitResponseSize(bytes int64, client net.Addr) {}

// EmitError noops.
func (h *NoopWhoisHook) EmitError() {}

// statsdClientFactory creates a configured StatsdClient with reasonable defaults for the given
// statsd server address and sample rate.
func statsdClientFactory(addr string, sampleRate float32, version string) (*StatsdClient, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, err
	}

	defaultTags := map[string]string{
		"host": hostname,
	}
	if version != "" {
		defaultTags["version"] = version
	}

	return NewStatsdClient(addr, "uwhoisd", defaultTags, sampleRate)
}

// ipFromAddr returns the IP address from a full net.Addr, or null if unavailable.
func ipFromAddr(addr net.Addr) string {
	switch networkAddr := addr.(type) {
	case *net.TCPAddr:
		return networkAddr.IP.String()
	case *net.UDPAddr:
		return networkAddr.IP.String()
	default:
		return "null"
	}
}
