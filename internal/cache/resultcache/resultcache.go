// Package resultcache memoizes ProcessingResults in a process-local LRU in
// front of an optional shared store. Cache failures never fail a request.
package resultcache

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mohammed-shakir/citygml-footprints/internal/cache"
	"github.com/mohammed-shakir/citygml-footprints/internal/citygml"
	"github.com/mohammed-shakir/citygml-footprints/internal/core/observability"
)

const (
	tierLocal  = "lru"
	tierRemote = "redis"
)

type Config struct {
	Size      int
	TTL       time.Duration
	OpTimeout time.Duration
}

type Cache struct {
	local  *expirable.LRU[string, citygml.ProcessingResult]
	remote cache.Store
	cfg    Config
	log    *slog.Logger
}

// New builds the cache; remote may be nil for a local-only cache.
func New(cfg Config, remote cache.Store, log *slog.Logger) *Cache {
	if cfg.Size <= 0 {
		cfg.Size = 32
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 250 * time.Millisecond
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cache{
		local:  expirable.NewLRU[string, citygml.ProcessingResult](cfg.Size, nil, cfg.TTL),
		remote: remote,
		cfg:    cfg,
		log:    log,
	}
}

func (c *Cache) Get(ctx context.Context, key string) (citygml.ProcessingResult, bool) {
	if res, ok := c.local.Get(key); ok {
		observability.IncCacheHit(tierLocal)
		return res, true
	}
	observability.IncCacheMiss(tierLocal)

	if c.remote == nil {
		return citygml.ProcessingResult{}, false
	}
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()

	raw, ok, err := c.remote.Get(opCtx, key)
	if err != nil {
		c.log.WarnContext(ctx, "result cache read failed", "key", key, "err", err)
		return citygml.ProcessingResult{}, false
	}
	if !ok {
		observability.IncCacheMiss(tierRemote)
		return citygml.ProcessingResult{}, false
	}

	var res citygml.ProcessingResult
	if err := json.Unmarshal(raw, &res); err != nil {
		c.log.WarnContext(ctx, "result cache entry undecodable", "key", key, "err", err)
		return citygml.ProcessingResult{}, false
	}
	observability.IncCacheHit(tierRemote)
	c.local.Add(key, res)
	return res, true
}

// Put stores successful results only; failures are cheap to recompute and
// may be transient.
func (c *Cache) Put(ctx context.Context, key string, res citygml.ProcessingResult) {
	if !res.Success {
		return
	}
	c.local.Add(key, res)
	if c.remote == nil {
		return
	}

	raw, err := json.Marshal(res)
	if err != nil {
		c.log.WarnContext(ctx, "result cache encode failed", "key", key, "err", err)
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()
	if err := c.remote.Set(opCtx, key, raw, c.cfg.TTL); err != nil {
		c.log.WarnContext(ctx, "result cache write failed", "key", key, "err", err)
	}
}

func (c *Cache) Len() int { return c.local.Len() }
