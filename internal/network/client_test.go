package network

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uwhoisd/internal/metrics"
	"uwhoisd/internal/whois"
)

// fakeUpstream is a loopback WHOIS server that answers every connection with respond.
type fakeUpstream struct {
	ln      net.Listener
	queries chan string
}

func newFakeUpstream(t *testing.T, respond func(conn net.Conn, query string)) *fakeUpstream {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	upstream := &fakeUpstream{ln: ln, queries: make(chan string, 16)}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}

			go func() {
				defer conn.Close()

				line, err := bufio.NewReader(conn).ReadString('\n')
				if err != nil {
					return
				}

				upstream.queries <- line
				respond(conn, line)
			}()
		}
	}()

	t.Cleanup(func() { ln.Close() })

	return upstream
}

func (u *fakeUpstream) port() int {
	return u.ln.Addr().(*net.TCPAddr).Port
}

func newTestClient(opts WhoisClientOpts) *WhoisClient {
	return NewWhoisClient(metrics.NewNoopConnectionLifecycleHook(), opts)
}

func TestWhoisClientQuery(t *testing.T) {
	upstream := newFakeUpstream(t, func(conn net.Conn, query string) {
		conn.Write([]byte("Domain Name: EXAMPLE.COM\r\n"))
	})

	client := newTestClient(WhoisClientOpts{ConnectTimeout: time.Second, Timeout: time.Second})

	response, err := client.Query(context.Background(), "127.0.0.1", upstream.port(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, "Domain Name: EXAMPLE.COM\r\n", response)
	assert.Equal(t, "example.com\r\n", <-upstream.queries)
}

func TestWhoisClientReplacesInvalidUTF8(t *testing.T) {
	upstream := newFakeUpstream(t, func(conn net.Conn, query string) {
		conn.Write([]byte("Registrant: M\xfcller\n"))
	})

	client := newTestClient(WhoisClientOpts{Timeout: time.Second})

	response, err := client.Query(context.Background(), "127.0.0.1", upstream.port(), "example.de")
	require.NoError(t, err)
	assert.Equal(t, "Registrant: M\uFFFDller\n", response)
}

func TestWhoisClientTruncatesLargeResponses(t *testing.T) {
	upstream := newFakeUpstream(t, func(conn net.Conn, query string) {
		conn.Write([]byte(strings.Repeat("x", 4096)))
	})

	client := newTestClient(WhoisClientOpts{Timeout: time.Second, MaxResponseSize: 100})

	response, err := client.Query(context.Background(), "127.0.0.1", upstream.port(), "example.com")
	require.NoError(t, err)
	assert.Len(t, response, 100)
}

func TestWhoisClientConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	client := newTestClient(WhoisClientOpts{ConnectTimeout: time.Second, Timeout: time.Second})

	_, err = client.Query(context.Background(), "127.0.0.1", port, "example.com")
	require.Error(t, err)

	upstreamErr, ok := whois.AsUpstreamError(err)
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1", upstreamErr.Server)
	assert.Equal(t, whois.KindConnect, upstreamErr.Kind)
	assert.True(t, strings.HasPrefix(err.Error(), "127.0.0.1: "))
}

func TestWhoisClientTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	upstream := newFakeUpstream(t, func(conn net.Conn, query string) {
		<-release
	})

	client := newTestClient(WhoisClientOpts{Timeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := client.Query(context.Background(), "127.0.0.1", upstream.port(), "example.com")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	upstreamErr, ok := whois.AsUpstreamError(err)
	require.True(t, ok)
	assert.True(t, upstreamErr.Timeout())
}

func TestWhoisClientContextCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	upstream := newFakeUpstream(t, func(conn net.Conn, query string) {
		<-release
	})

	client := newTestClient(WhoisClientOpts{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-upstream.queries
		cancel()
	}()

	_, err := client.Query(ctx, "127.0.0.1", upstream.port(), "example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
