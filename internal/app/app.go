// Package app assembles the ingest service and its optional backends from
// configuration. Both binaries share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mohammed-shakir/citygml-footprints/internal/cache"
	"github.com/mohammed-shakir/citygml-footprints/internal/cache/redisstore"
	"github.com/mohammed-shakir/citygml-footprints/internal/cache/resultcache"
	"github.com/mohammed-shakir/citygml-footprints/internal/citygml"
	"github.com/mohammed-shakir/citygml-footprints/internal/core/config"
	"github.com/mohammed-shakir/citygml-footprints/internal/core/executor"
	"github.com/mohammed-shakir/citygml-footprints/internal/core/health"
	"github.com/mohammed-shakir/citygml-footprints/internal/core/httpclient"
	"github.com/mohammed-shakir/citygml-footprints/internal/core/ogc"
	"github.com/mohammed-shakir/citygml-footprints/internal/crs"
	"github.com/mohammed-shakir/citygml-footprints/internal/ingest"
	h3mapper "github.com/mohammed-shakir/citygml-footprints/internal/mapper/h3"
	"github.com/mohammed-shakir/citygml-footprints/internal/mapping"
	"github.com/mohammed-shakir/citygml-footprints/internal/sink"
	"github.com/mohammed-shakir/citygml-footprints/internal/sink/kafka"
	"github.com/mohammed-shakir/citygml-footprints/internal/sink/postgres"
)

type App struct {
	Service *ingest.Service
	Table   *mapping.Table
	Checks  map[string]health.Check

	closers []func() error
}

// Build connects every configured backend. Redis is optional at runtime: an
// unreachable cache is logged and the service runs with the local tier only.
// Kafka and Postgres failures are fatal because the operator asked for them.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	a := &App{Checks: map[string]health.Check{}}

	tbl, err := loadTable(cfg.MappingFile)
	if err != nil {
		return nil, err
	}
	a.Table = tbl
	parser := citygml.NewParser(tbl, crs.NewReprojector(nil, log), log)
	mapper := h3mapper.New()

	var remote cache.Store
	if cfg.RedisAddr != "" {
		rc, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn("redis unavailable, using local result cache only", "addr", cfg.RedisAddr, "err", err)
		} else {
			remote = rc
			a.Checks["redis"] = rc.Ping
			a.closers = append(a.closers, rc.Close)
		}
	}
	rcache := resultcache.New(resultcache.Config{
		Size:      cfg.ResultCacheSize,
		TTL:       cfg.ResultCacheTTL,
		OpTimeout: cfg.CacheOpTimeout,
	}, remote, log)

	opts := ingest.Options{
		Logger: log,
		Mapper: mapper,
		H3Res:  cfg.H3Res,
		Cache:  rcache,
	}

	if cfg.Kafka.Enabled {
		pub, err := kafka.New(kafka.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, mapper, log)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		opts.Sinks = append(opts.Sinks, pub)
		a.closers = append(a.closers, pub.Close)
	}

	if cfg.Store.DatabaseURL != "" {
		st, err := postgres.New(ctx, cfg.Store.DatabaseURL, cfg.Store.BatchSize, log)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, st.Close)
		if err := st.EnsureSchema(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
		opts.Sinks = append(opts.Sinks, sink.Sink(st))
		opts.Bounds = st
		a.Checks["postgres"] = st.Ping
	}

	if cfg.WFS.URL != "" {
		exec, err := executor.New(log, httpclient.NewOutbound(httpclient.Options{Timeout: cfg.WFS.Timeout}), ogc.OWSEndpoint(cfg.WFS.URL), cfg.MaxDocumentBytes)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("wfs executor: %w", err)
		}
		opts.WFS = exec
		opts.WFSCfg = ingest.WFSConfig{
			TypeName: cfg.WFS.TypeName,
			Version:  cfg.WFS.Version,
			SRSName:  cfg.WFS.SRSName,
			Count:    cfg.WFS.Count,
		}
	}

	a.Service = ingest.New(parser, opts)
	log.Info("ingest service ready",
		"mapping", mappingName(cfg.MappingFile),
		"sinks", len(opts.Sinks),
		"redis", remote != nil,
		"resync", opts.WFS != nil)
	return a, nil
}

// Close releases backends in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func loadTable(path string) (*mapping.Table, error) {
	if path == "" {
		return mapping.Default()
	}
	t, err := mapping.Load(path)
	if err != nil {
		return nil, fmt.Errorf("mapping file: %w", err)
	}
	return t, nil
}

func mappingName(path string) string {
	if path == "" {
		return "builtin"
	}
	return path
}
