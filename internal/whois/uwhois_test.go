package whois

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uwhoisd/internal/log"
	"uwhoisd/internal/metrics"
)

// fakeQuerier serves canned responses keyed by host.
type fakeQuerier struct {
	responses map[string]string
	failures  map[string]error
	calls     []fakeCall
	mutex     sync.Mutex
}

type fakeCall struct {
	host string
	port int
	text string
}

func (f *fakeQuerier) Query(ctx context.Context, host string, port int, text string) (string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.calls = append(f.calls, fakeCall{host, port, text})

	if err, ok := f.failures[host]; ok {
		return "", err
	}

	response, ok := f.responses[host]
	if !ok {
		return "", fmt.Errorf("no such host")
	}

	return response, nil
}

func newTestUWhois(t *testing.T, upstream Querier, opts UWhoisOpts) *UWhois {
	routing := newTestRouting(t)
	routing.Overrides["com"] = "whois.verisign-grs.com:4343"

	return &UWhois{
		Routing:  routing,
		Upstream: upstream,
		Hook:     metrics.NewNoopWhoisHook(),
		Logger:   log.NewWriterLogger(io.Discard, log.Error),
		Opts:     opts,
	}
}

func readTranscript(t *testing.T, name string) string {
	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)

	return string(data)
}

func TestWhoisThickRegistry(t *testing.T) {
	upstream := &fakeQuerier{responses: map[string]string{
		"whois.denic.de": "Domain: example.de\nStatus: connect\n",
	}}
	uwhois := newTestUWhois(t, upstream, UWhoisOpts{})

	response, err := uwhois.Whois(context.Background(), "example.de")
	require.NoError(t, err)
	assert.Equal(t, "Domain: example.de\nStatus: connect\n", response)

	require.Len(t, upstream.calls, 1)
	assert.Equal(t, fakeCall{"whois.denic.de", 43, "-T dn,ace example.de"}, upstream.calls[0])
}

func TestWhoisRecursionSplice(t *testing.T) {
	registry := readTranscript(t, "google.com.txt")
	registrar := "Domain Name: google.com\nRegistrant Organization: Google LLC\n"

	upstream := &fakeQuerier{responses: map[string]string{
		"whois.verisign-grs.com": registry,
		"whois.markmonitor.com":  registrar,
	}}

	uwhois := newTestUWhois(t, upstream, UWhoisOpts{RegistryWhois: true, PageFeed: true})
	response, err := uwhois.Whois(context.Background(), "google.com")
	require.NoError(t, err)
	assert.Equal(t, registry+"\f"+registrar, response)

	require.Len(t, upstream.calls, 2)
	assert.Equal(t, fakeCall{"whois.verisign-grs.com", 4343, "google.com"}, upstream.calls[0])
	// The registrar leg reuses the registry leg's port and sends the bare query.
	assert.Equal(t, fakeCall{"whois.markmonitor.com", 4343, "google.com"}, upstream.calls[1])
}

func TestWhoisRecursionWithoutPageFeed(t *testing.T) {
	registry := readTranscript(t, "google.com.txt")
	upstream := &fakeQuerier{responses: map[string]string{
		"whois.verisign-grs.com": registry,
		"whois.markmonitor.com":  "registrar",
	}}

	uwhois := newTestUWhois(t, upstream, UWhoisOpts{RegistryWhois: true, PageFeed: false})
	response, err := uwhois.Whois(context.Background(), "google.com")
	require.NoError(t, err)
	assert.Equal(t, registry+"registrar", response)
}

func TestWhoisRecursionDiscardsRegistry(t *testing.T) {
	upstream := &fakeQuerier{responses: map[string]string{
		"whois.verisign-grs.com": readTranscript(t, "google.com.txt"),
		"whois.markmonitor.com":  "registrar",
	}}

	uwhois := newTestUWhois(t, upstream, UWhoisOpts{RegistryWhois: false, PageFeed: true})
	response, err := uwhois.Whois(context.Background(), "google.com")
	require.NoError(t, err)
	assert.Equal(t, "registrar", response)
}

func TestWhoisThinRegistryWithoutReferral(t *testing.T) {
	upstream := &fakeQuerier{responses: map[string]string{
		"whois.verisign-grs.com": "No match for \"NOPE.COM\".\n",
	}}

	uwhois := newTestUWhois(t, upstream, UWhoisOpts{RegistryWhois: false})
	response, err := uwhois.Whois(context.Background(), "nope.com")
	require.NoError(t, err)
	assert.Equal(t, "No match for \"NOPE.COM\".\n", response)
	assert.Len(t, upstream.calls, 1)
}

func TestWhoisRegistrarFailureIsNotMasked(t *testing.T) {
	upstream := &fakeQuerier{
		responses: map[string]string{
			"whois.verisign-grs.com": readTranscript(t, "google.com.txt"),
		},
		failures: map[string]error{
			"whois.markmonitor.com": NewUpstreamError("whois.markmonitor.com", KindIO, context.DeadlineExceeded),
		},
	}

	uwhois := newTestUWhois(t, upstream, UWhoisOpts{RegistryWhois: true, PageFeed: true})
	response, err := uwhois.Whois(context.Background(), "google.com")
	require.Error(t, err)
	assert.Empty(t, response)

	upstreamErr, ok := AsUpstreamError(err)
	require.True(t, ok)
	assert.Equal(t, "whois.markmonitor.com", upstreamErr.Server)
	assert.True(t, upstreamErr.Timeout())
}

func TestWhoisRegistryFailureNamesServer(t *testing.T) {
	upstream := &fakeQuerier{failures: map[string]error{
		"whois.denic.de": fmt.Errorf("connection refused"),
	}}

	uwhois := newTestUWhois(t, upstream, UWhoisOpts{})
	_, err := uwhois.Whois(context.Background(), "example.de")
	require.Error(t, err)

	upstreamErr, ok := AsUpstreamError(err)
	require.True(t, ok)
	assert.Equal(t, "whois.denic.de", upstreamErr.Server)
	assert.Equal(t, KindIO, upstreamErr.Kind)
	assert.Equal(t, "whois.denic.de: connection refused", err.Error())
}

func TestWhoisMalformedOverridePort(t *testing.T) {
	uwhois := newTestUWhois(t, &fakeQuerier{}, UWhoisOpts{})

	_, err := uwhois.Whois(context.Background(), "foo.bad")
	require.Error(t, err)

	upstreamErr, ok := AsUpstreamError(err)
	require.True(t, ok)
	assert.Equal(t, KindConfig, upstreamErr.Kind)
}
