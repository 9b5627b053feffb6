package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uwhoisd/internal/log"
	"uwhoisd/internal/metrics"
)

var testLogger = log.NewNopLogger()

func TestNewNullBackend(t *testing.T) {
	c, err := New(Opts{Type: "null"})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = New(Opts{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New(Opts{Type: "memcached"})
	require.Error(t, err)

	var unknown *UnknownCacheError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "memcached", unknown.Name)
	assert.False(t, IsKnownBackend("memcached"))
}

func TestNewLFUBackend(t *testing.T) {
	c, err := New(Opts{Type: "lfu", MaxSize: 10, MaxAge: time.Minute})
	require.NoError(t, err)

	lfu, ok := c.(*LFU)
	require.True(t, ok)
	assert.Equal(t, 10, lfu.maxSize)
	assert.Equal(t, time.Minute, lfu.maxAge)
}

func TestBackends(t *testing.T) {
	assert.Equal(t, []string{"lfu", "null", "redis", "ristretto"}, Backends())

	for _, name := range Backends() {
		assert.True(t, IsKnownBackend(name))
	}
	assert.True(t, IsKnownBackend(""))
}

func TestRistrettoRoundTrip(t *testing.T) {
	c, err := NewRistretto(16, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get("example.com")
	assert.False(t, ok)

	c.Set("example.com", "response")

	value, ok := c.Get("example.com")
	require.True(t, ok)
	assert.Equal(t, "response", value)
}

func TestRedisUnreachableDegradesToMiss(t *testing.T) {
	c, err := NewRedis(RedisOpts{Address: "127.0.0.1:1", Timeout: 50 * time.Millisecond}, time.Minute, testLogger)
	require.NoError(t, err)

	c.Set("example.com", "response")

	_, ok := c.Get("example.com")
	assert.False(t, ok)
}

func TestNewRedisRequiresAddress(t *testing.T) {
	_, err := New(Opts{Type: "redis"})
	assert.Error(t, err)
}

// countingResolver counts invocations and answers with a per-call response.
type countingResolver struct {
	calls int32
	err   error
	delay time.Duration
}

func (r *countingResolver) resolve(ctx context.Context, query string) (string, error) {
	n := atomic.AddInt32(&r.calls, 1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	if r.err != nil {
		return "", r.err
	}

	return fmt.Sprintf("%s #%d", query, n), nil
}

func TestWrapDisabledCallsEveryTime(t *testing.T) {
	resolver := &countingResolver{}
	f := Wrap(nil, resolver.resolve, metrics.NewNoopWhoisHook(), testLogger)

	first, err := f(context.Background(), "example.com")
	require.NoError(t, err)
	second, err := f(context.Background(), "example.com")
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&resolver.calls))
	assert.NotEqual(t, first, second)
}

func TestWrapMemoizes(t *testing.T) {
	resolver := &countingResolver{}
	f := Wrap(NewLFU(16, time.Minute), resolver.resolve, metrics.NewNoopWhoisHook(), testLogger)

	first, err := f(context.Background(), "example.com")
	require.NoError(t, err)
	second, err := f(context.Background(), "example.com")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&resolver.calls))

	// Keys are case-sensitive; normalization happens before the cache.
	_, err = f(context.Background(), "EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&resolver.calls))
}

func TestWrapDoesNotCacheFailures(t *testing.T) {
	resolver := &countingResolver{err: fmt.Errorf("whois.example.net: connection refused")}
	lfu := NewLFU(16, time.Minute)
	f := Wrap(lfu, resolver.resolve, metrics.NewNoopWhoisHook(), testLogger)

	_, err := f(context.Background(), "example.com")
	assert.Error(t, err)
	_, err = f(context.Background(), "example.com")
	assert.Error(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&resolver.calls))
	assert.Equal(t, 0, lfu.Len())
}

func TestWrapCoalescesConcurrentMisses(t *testing.T) {
	resolver := &countingResolver{delay: 100 * time.Millisecond}
	f := Wrap(NewLFU(16, time.Minute), resolver.resolve, metrics.NewNoopWhoisHook(), testLogger)

	var wg sync.WaitGroup
	responses := make([]string, 8)

	for i := range responses {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			response, err := f(context.Background(), "example.com")
			assert.NoError(t, err)
			responses[i] = response
		}(i)
	}
	wg.Wait()

	for _, response := range responses {
		assert.Equal(t, responses[0], response)
	}
	assert.Less(t, atomic.LoadInt32(&resolver.calls), int32(len(responses)))
}
