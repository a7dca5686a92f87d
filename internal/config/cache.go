package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the response cache placed in front of
// the availability endpoint. When Enabled is false or no Redis client is
// configured, caching is disabled. Cached availability is invalidated by
// prefix whenever a booking changes the capacity of an experience, so the
// TTL only bounds staleness for changes made outside this process.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	KeyStrategy  string // route, route_query, method_route, method_route_query, path
	Prefix       string
	MaxBodyBytes int
}

// LoadCacheConfig reads CACHE_* variables. Defaults keep the cache short
// lived because availability changes with every booking.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		Methods:      parseMethods(envStr("CACHE_METHODS", "GET")),
		TTL:          envDur("CACHE_TTL", 15*time.Second),
		KeyStrategy:  envStr("CACHE_KEY_STRATEGY", "path"),
		Prefix:       envStr("CACHE_PREFIX", "cache:availability"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 256*1024),
	}
}

func parseMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
