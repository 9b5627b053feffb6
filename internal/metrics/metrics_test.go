package metrics

import (
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMetric(t *testing.T) {
	assert.Equal(t, "event.whois.query", formatMetric("event.whois.query"))
	assert.Equal(t, "event.whois.query", formatMetric("event.whois.query", nil, nil))

	assert.Equal(
		t,
		"latency.whois.upstream,host=box,upstream=whois.example%3A43",
		formatMetric(
			"latency.whois.upstream",
			map[string]string{"host": "box"},
			map[string]string{"upstream": "whois.example:43"},
		),
	)

	assert.Equal(
		t,
		"event.whois.query,host=override",
		formatMetric("event.whois.query", map[string]string{"host": "box"}, map[string]string{"host": "override"}),
	)
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Elapsed(), 5*time.Millisecond)
}

func TestIPFromAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1", ipFromAddr(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 43}))
	assert.Equal(t, "null", ipFromAddr(nil))
}

func TestPrometheusHooks(t *testing.T) {
	registry := NewPrometheusRegistry()
	addr := &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 5000}

	registry.ConnectionLifecycleHook("client").EmitConnectionOpen(time.Millisecond, addr)
	registry.ConnectionLifecycleHook("upstream").EmitConnectionError()
	registry.ConnectionIOHook("client").EmitTimeout(addr)

	whois := registry.WhoisHook()
	whois.EmitQuery("ok", addr)
	whois.EmitQuery("ok", addr)
	whois.EmitCacheHit()
	whois.EmitRecursion("com")
	whois.EmitError()

	assert.Equal(t, 1.0, testutil.ToFloat64(registry.cxEvents.WithLabelValues("client", "cx_open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(registry.cxEvents.WithLabelValues("upstream", "cx_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(registry.ioEvents.WithLabelValues("client", "io_timeout")))
	assert.Equal(t, 2.0, testutil.ToFloat64(registry.queries.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(registry.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(registry.recursions.WithLabelValues("com")))
	assert.Equal(t, 1.0, testutil.ToFloat64(registry.errors))

	recorder := httptest.NewRecorder()
	registry.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "uwhoisd_queries_total")
}

type countingWhoisHook struct {
	NoopWhoisHook
	errors int
}

func (h *countingWhoisHook) EmitError() {
	h.errors++
}

func TestMultiWhoisHook(t *testing.T) {
	_, ok := NewMultiWhoisHook().(*NoopWhoisHook)
	assert.True(t, ok)

	single := &countingWhoisHook{}
	assert.Same(t, single, NewMultiWhoisHook(single).(*countingWhoisHook))

	a, b := &countingWhoisHook{}, &countingWhoisHook{}
	NewMultiWhoisHook(a, b).EmitError()
	assert.Equal(t, 1, a.errors)
	assert.Equal(t, 1, b.errors)
}
