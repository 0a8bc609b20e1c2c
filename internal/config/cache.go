package config

import "time"

// CacheConfig defines settings for the user cache that sits in front of
// the users table. When Enabled is false or no Redis client is available
// the stores fall back to a cache that always misses.
//
// Prefix namespaces every key (keys look like "<prefix>:user:id:42"). TTL is
// the lifetime of cached users. ReadTimeout bounds a single cache lookup; a
// lookup that exceeds it is treated as a miss.
type CacheConfig struct {
	Enabled     bool
	Prefix      string
	TTL         time.Duration
	ReadTimeout time.Duration
}

// LoadCacheConfig reads USER_CACHE_* variables. Defaults are used when
// variables are not set.
func LoadCacheConfig() CacheConfig {
	cc := CacheConfig{
		Enabled:     envBool("USER_CACHE_ENABLED", true),
		Prefix:      envStr("USER_CACHE_PREFIX", "local"),
		TTL:         envDur("USER_CACHE_TTL", 24*time.Hour),
		ReadTimeout: envDur("USER_CACHE_READ_TIMEOUT", 200*time.Millisecond),
	}
	if cc.TTL <= 0 {
		cc.TTL = 24 * time.Hour
	}
	return cc
}
