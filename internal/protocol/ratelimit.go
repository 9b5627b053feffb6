package protocol

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientLimiter is a set of token buckets, one per client IP address. Buckets are created on a
// client's first query and discarded after they have been idle for a while.
type ClientLimiter struct {
	rate     rate.Limit
	burst    int
	clock    func() time.Time
	limiters map[string]*clientBucket
	mutex    sync.Mutex
}

// clientBucket is a single client's token bucket with the time of its last use.
type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter creates a limiter that admits, per client IP, qps queries per second on average
// with bursts of up to burst queries.
func NewClientLimiter(qps float64, burst int) *ClientLimiter {
	if burst <= 0 {
		burst = 1
	}

	return &ClientLimiter{
		rate:     rate.Limit(qps),
		burst:    burst,
		clock:    time.Now,
		limiters: make(map[string]*clientBucket),
	}
}

// Allow consumes a token from the client's bucket, reporting whether one was available.
func (l *ClientLimiter) Allow(client net.Addr) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := l.clock()
	key := ipFromAddr(client)

	bucket, ok := l.limiters[key]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = bucket
	}

	bucket.lastSeen = now

	return bucket.limiter.AllowN(now, 1)
}

// Sweep discards the buckets of clients not seen within idle.
func (l *ClientLimiter) Sweep(idle time.Duration) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	cutoff := l.clock().Add(-idle)

	for key, bucket := range l.limiters {
		if bucket.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
		}
	}
}

// Len reads the number of tracked clients.
func (l *ClientLimiter) Len() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return len(l.limiters)
}

// Run sweeps idle buckets every interval until ctx is done.
func (l *ClientLimiter) Run(ctx context.Context, interval time.Duration, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep(idle)
		case <-ctx.Done():
			return
		}
	}
}

// ipFromAddr extracts the IP from a client address, falling back to its string form.
func ipFromAddr(addr net.Addr) string {
	if addr == nil {
		return ""
	}

	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return tcpAddr.IP.String()
	}

	if host, _, err := net.SplitHostPort(addr.String()); err == nil {
		return host
	}

	return addr.String()
}
