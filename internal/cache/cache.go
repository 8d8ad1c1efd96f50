// Package cache stores upstream responses keyed by a hash of the request.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/topic-enricher/internal/config"
	"github.com/sells-group/topic-enricher/internal/store"
)

// Cache is a byte-level response cache.
type Cache interface {
	// Get returns the cached bytes, or ok=false on a miss.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Clear removes every entry owned by this cache.
	Clear(ctx context.Context) error
}

// Key derives the cache key for one upstream request.
func Key(service, model, prompt string) string {
	h := sha256.New()
	for _, part := range []string{service, model, prompt} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// New picks the Redis cache when an address is configured and the store's
// response_cache table otherwise.
func New(ctx context.Context, cfg config.RedisConfig, st store.Store) (Cache, error) {
	if cfg.Addr == "" {
		return NewStoreCache(st), nil
	}
	rc, err := NewRedis(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "cache: connect redis")
	}
	return rc, nil
}

// StoreCache keeps responses in the store's response_cache table.
type StoreCache struct {
	st store.Store
}

// NewStoreCache wraps st.
func NewStoreCache(st store.Store) *StoreCache {
	return &StoreCache{st: st}
}

func (c *StoreCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.st.GetCachedResponse(ctx, key)
	if err != nil {
		return nil, false, eris.Wrap(err, "cache: store get")
	}
	return data, data != nil, nil
}

func (c *StoreCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return eris.Wrap(c.st.SetCachedResponse(ctx, key, data, ttl), "cache: store set")
}

// Clear drops expired rows. Live rows go with Store.ClearAll, which empties
// the whole table.
func (c *StoreCache) Clear(ctx context.Context) error {
	_, err := c.st.DeleteExpiredResponses(ctx)
	return eris.Wrap(err, "cache: store clear")
}

// RunCleanup deletes expired rows every interval until ctx is done.
func (c *StoreCache) RunCleanup(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Hour
	}
	log := zap.L().With(zap.String("component", "cache_cleanup"))
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.st.DeleteExpiredResponses(ctx)
			if err != nil {
				log.Warn("cache cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Debug("expired responses removed", zap.Int("count", n))
			}
		}
	}
}
