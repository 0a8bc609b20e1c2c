// Package cache provides the key/value capability used in front of the
// user store and a generic cache-aside accessor on top of it.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Cache.Get when the key is absent.
var ErrMiss = errors.New("cache: miss")

// Cache is a string-keyed byte store with per-entry ttl.
type Cache interface {
	// Get returns the stored value or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes keys. Absent keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}

// Noop is a Cache that stores nothing. It is used when Redis is unavailable
// or caching is disabled so that every read goes to the backing store.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, error)              { return nil, ErrMiss }
func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Noop) Delete(context.Context, ...string) error                  { return nil }
