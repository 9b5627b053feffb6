package cache

import (
	"context"

	"golang.org/x/sync/singleflight"

	"uwhoisd/internal/log"
	"uwhoisd/internal/metrics"
	"uwhoisd/internal/whois"
)

// Wrap memoizes a resolution function. The cache key is the query exactly as passed in. Failed
// resolutions are not stored. Concurrent misses for the same query share a single resolution.
//
// A nil cache disables memoization and f is returned unchanged.
func Wrap(c Cache, f whois.Func, hook metrics.WhoisHook, logger log.Logger) whois.Func {
	if c == nil {
		return f
	}

	var group singleflight.Group

	return func(ctx context.Context, query string) (string, error) {
		if response, ok := c.Get(query); ok {
			logger.Info("cache: cache hit for '%s'", query)
			hook.EmitCacheHit()

			return response, nil
		}

		hook.EmitCacheMiss()

		response, err, _ := group.Do(query, func() (interface{}, error) {
			response, err := f(ctx, query)
			if err != nil {
				return "", err
			}

			c.Set(query, response)

			return response, nil
		})
		if err != nil {
			return "", err
		}

		return response.(string), nil
	}
}
