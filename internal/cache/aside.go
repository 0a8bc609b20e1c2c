package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// Aside mediates reads between a Cache and a backing store.
//
// Cache failures never fail a read: a lookup error, a lookup slower than
// readTimeout or an undecodable entry is logged and treated as a miss, and
// a failed write-back is logged and ignored. Concurrent misses on the same
// key are not coalesced; each caller computes and the last write wins.
type Aside struct {
	cache       Cache
	log         *slog.Logger
	readTimeout time.Duration
}

// NewAside returns an accessor over c. readTimeout <= 0 disables the
// per-lookup deadline (the caller's context still applies).
func NewAside(c Cache, log *slog.Logger, readTimeout time.Duration) *Aside {
	if c == nil {
		c = Noop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Aside{cache: c, log: log, readTimeout: readTimeout}
}

// Cache exposes the underlying store for direct invalidation.
func (a *Aside) Cache() Cache { return a.cache }

// Decoder rebuilds a typed value from its cached JSON form.
type Decoder[T any] func([]byte) (T, error)

// JSON is the default Decoder: it unmarshals into a fresh T.
func JSON[T any](b []byte) (T, error) {
	var v T
	err := json.Unmarshal(b, &v)
	return v, err
}

// GetCachedOrCall returns the value cached under key, or calls compute,
// caches its JSON encoding for ttl and returns the computed value. On a hit
// compute is not invoked. If compute fails its error is returned unchanged
// and nothing is cached. decode may be nil, in which case JSON is used.
func GetCachedOrCall[T any](ctx context.Context, a *Aside, key string, ttl time.Duration, compute func(context.Context) (T, error), decode Decoder[T]) (T, error) {
	if decode == nil {
		decode = JSON[T]
	}

	if raw, ok := a.lookup(ctx, key); ok {
		v, err := decode(raw)
		if err == nil {
			return v, nil
		}
		a.log.WarnContext(ctx, "cache entry undecodable, recomputing", "key", key, "err", err)
	}

	v, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	raw, err := json.Marshal(v)
	if err != nil {
		a.log.WarnContext(ctx, "cache encode failed", "key", key, "err", err)
		return v, nil
	}
	if err := a.cache.Set(ctx, key, raw, ttl); err != nil {
		a.log.WarnContext(ctx, "cache write failed", "key", key, "err", err)
	}
	return v, nil
}

func (a *Aside) lookup(ctx context.Context, key string) ([]byte, bool) {
	rctx := ctx
	if a.readTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, a.readTimeout)
		defer cancel()
	}
	raw, err := a.cache.Get(rctx, key)
	switch {
	case err == nil:
		return raw, true
	case errors.Is(err, ErrMiss):
	default:
		a.log.WarnContext(ctx, "cache read failed, falling back to store", "key", key, "err", err)
	}
	return nil, false
}
