// Package payloadcache keeps fetched payloads in an in-process LRU in front of
// an optional shared store. Cache failures degrade to a miss; they never fail a load.
package payloadcache

import (
	"context"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"

	"github.com/mohammed-shakir/civic-choropleth/internal/core/observability"
)

// Store is the shared tier, normally a *redisstore.Client.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type entry struct {
	val     []byte
	expires time.Time
}

type Cache struct {
	local     *lru.Cache[string, entry]
	remote    Store
	ttl       time.Duration
	opTimeout time.Duration
	clock     clockwork.Clock
	log       *slog.Logger
}

type Option func(*Cache)

func WithClock(c clockwork.Clock) Option { return func(pc *Cache) { pc.clock = c } }

func WithOpTimeout(d time.Duration) Option { return func(pc *Cache) { pc.opTimeout = d } }

func WithLogger(l *slog.Logger) Option { return func(pc *Cache) { pc.log = l } }

// New builds a cache holding up to size entries locally. remote may be nil.
func New(size int, remote Store, ttl time.Duration, opts ...Option) (*Cache, error) {
	if size <= 0 {
		size = 16
	}
	local, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	c := &Cache{
		local:     local,
		remote:    remote,
		ttl:       ttl,
		opTimeout: 250 * time.Millisecond,
		clock:     clockwork.NewRealClock(),
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Get returns a cached payload. A shared-tier hit is promoted to the local tier.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if e, ok := c.local.Get(key); ok {
		if c.ttl <= 0 || c.clock.Now().Before(e.expires) {
			observability.IncCacheHit("local")
			return e.val, true
		}
		c.local.Remove(key)
	}
	observability.IncCacheMiss("local")

	if c.remote == nil {
		return nil, false
	}
	rctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	val, ok, err := c.remote.Get(rctx, key)
	if err != nil {
		observability.IncCacheMiss("remote")
		c.log.WarnContext(ctx, "payload cache read failed", "key", key, "err", err)
		return nil, false
	}
	if !ok {
		observability.IncCacheMiss("remote")
		return nil, false
	}
	observability.IncCacheHit("remote")
	c.addLocal(key, val)
	return val, true
}

// Put stores a payload in both tiers.
func (c *Cache) Put(ctx context.Context, key string, val []byte) {
	c.addLocal(key, val)
	if c.remote == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.remote.Set(rctx, key, val, c.ttl); err != nil {
		c.log.WarnContext(ctx, "payload cache write failed", "key", key, "err", err)
	}
}

// Invalidate drops key from both tiers, e.g. after a cached payload failed to
// decode.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	c.local.Remove(key)
	if c.remote == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.remote.Del(rctx, key); err != nil {
		c.log.WarnContext(ctx, "payload cache delete failed", "key", key, "err", err)
	}
}

func (c *Cache) addLocal(key string, val []byte) {
	c.local.Add(key, entry{val: val, expires: c.clock.Now().Add(c.ttl)})
}

func (c *Cache) Len() int { return c.local.Len() }
