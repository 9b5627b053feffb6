package cache

import (
	"fmt"
	"sort"
	"time"

	"uwhoisd/internal/log"
)

// NullBackend is the backend name that disables caching.
const NullBackend = "null"

// Cache is a key-value store for WHOIS responses. A miss is reported by the boolean return and is
// never an error.
type Cache interface {
	// Get looks up the response stored for key.
	Get(key string) (string, bool)

	// Set stores value as the response for key.
	Set(key string, value string)
}

// Opts formalizes the parameters shared by all cache backends.
type Opts struct {
	// Type names the backend: null, lfu, ristretto, or redis.
	Type string
	// MaxSize bounds the number of entries held by the in-process backends.
	MaxSize int
	// MaxAge is the duration after which an entry is no longer served.
	MaxAge time.Duration
	// Redis configures the redis backend.
	Redis RedisOpts
	// Logger receives backend diagnostics. It may be nil for backends that log nothing.
	Logger log.Logger
}

// UnknownCacheError indicates that the configured backend name is not in the registry.
type UnknownCacheError struct {
	Name string
}

// Error implements the error interface.
func (e *UnknownCacheError) Error() string {
	return fmt.Sprintf("cache: unknown cache backend: type=%s", e.Name)
}

// backends is the static registry of cache constructors, keyed by backend name.
var backends = map[string]func(opts Opts) (Cache, error){
	"lfu": func(opts Opts) (Cache, error) {
		return NewLFU(opts.MaxSize, opts.MaxAge), nil
	},
	"ristretto": func(opts Opts) (Cache, error) {
		return NewRistretto(opts.MaxSize, opts.MaxAge)
	},
	"redis": func(opts Opts) (Cache, error) {
		return NewRedis(opts.Redis, opts.MaxAge, opts.Logger)
	},
}

// Backends lists the names of all supported backends, including the null backend.
func Backends() []string {
	names := []string{NullBackend}
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// IsKnownBackend reports whether name selects a supported backend. An empty name is treated as
// the null backend.
func IsKnownBackend(name string) bool {
	if name == "" || name == NullBackend {
		return true
	}

	_, ok := backends[name]

	return ok
}

// New constructs the backend selected by opts.Type. The null backend (or an empty type) yields a
// nil Cache, meaning caching is disabled.
func New(opts Opts) (Cache, error) {
	if opts.Type == "" || opts.Type == NullBackend {
		return nil, nil
	}

	constructor, ok := backends[opts.Type]
	if !ok {
		return nil, &UnknownCacheError{Name: opts.Type}
	}

	return constructor(opts)
}
