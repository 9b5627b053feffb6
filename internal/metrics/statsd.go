package metrics

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cactus/go-statsd-client/v5/statsd"
)

// StatsdClient emits metrics over UDP to a statsd server. Every metric carries the client's
// default tags merged with the tags supplied at the call site.
type StatsdClient struct {
	backend     statsd.Statter
	defaultTags map[string]string
	sampleRate  float32
}

// NewStatsdClient creates a statsd client for the server at addr. Metric names are prefixed with
// prefix.
func NewStatsdClient(addr string, prefix string, defaultTags map[string]string, sampleRate float32) (*StatsdClient, error) {
	backend, err := statsd.NewClientWithConfig(&statsd.ClientConfig{
		Address: addr,
		Prefix:  prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("statsd: error creating statsd client: addr=%s err=%v", addr, err)
	}

	return &StatsdClient{
		backend:     backend,
		defaultTags: defaultTags,
		sampleRate:  sampleRate,
	}, nil
}

// Count increments a counter by delta.
func (c *StatsdClient) Count(metric string, delta int64, tags map[string]string) error {
	return c.backend.Inc(formatMetric(metric, c.defaultTags, tags), delta, c.sampleRate)
}

// Timing records a latency.
func (c *StatsdClient) Timing(metric string, duration time.Duration, tags map[string]string) error {
	return c.backend.TimingDuration(formatMetric(metric, c.defaultTags, tags), duration, c.sampleRate)
}

// Size records a payload size in bytes. It is shipped as a timing so that the server computes the
// same percentiles for it.
func (c *StatsdClient) Size(metric string, size int64, tags map[string]string) error {
	return c.backend.Timing(formatMetric(metric, c.defaultTags, tags), size, c.sampleRate)
}

// Close releases the client's socket.
func (c *StatsdClient) Close() error {
	return c.backend.Close()
}

// formatMetric appends InfluxDB-style tags to a metric name, e.g. "event.cache.hit,host=a,v=b".
// Later tag sets override earlier ones per key. Names, keys, and values are URL-escaped since
// characters like colons would corrupt the statsd line protocol.
func formatMetric(metric string, tagSets ...map[string]string) string {
	merged := make(map[string]string)
	for _, tags := range tagSets {
		for key, value := range tags {
			merged[key] = value
		}
	}

	escaped := url.QueryEscape(metric)
	if len(merged) == 0 {
		return escaped
	}

	components := make([]string, 0, len(merged))
	for key, value := range merged {
		components = append(components, url.QueryEscape(key)+"="+url.QueryEscape(value))
	}
	sort.Strings(components)

	return escaped + "," + strings.Join(components, ",")
}
