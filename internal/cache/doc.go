// Package cache memoizes WHOIS responses. Backends are selected by name from a fixed registry;
// the "null" backend disables caching entirely.
package cache
