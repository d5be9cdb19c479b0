package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammed-shakir/citygml-footprints/internal/app"
	"github.com/mohammed-shakir/citygml-footprints/internal/core/config"
	"github.com/mohammed-shakir/citygml-footprints/internal/core/server"
	"github.com/mohammed-shakir/citygml-footprints/internal/logger"
	"github.com/mohammed-shakir/citygml-footprints/internal/metrics"
	"github.com/mohammed-shakir/citygml-footprints/internal/resync"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "citygml-service",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	p := metrics.Init(metrics.Config{
		Enabled: cfg.MetricsEnabled,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLog.Info("starting citygml service",
		"addr", cfg.Addr,
		"version", Version,
		"redis", cfg.RedisAddr,
		"publish", cfg.Kafka.Enabled,
		"wfs", cfg.WFS.URL)

	a, err := app.Build(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("service setup failed", "err", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			appLog.Warn("backend close", "err", err)
		}
	}()

	if cfg.Resync.Enabled {
		if cfg.WFS.URL == "" {
			appLog.Warn("resync events enabled without WFS_URL; consumer not started")
		} else {
			c := resync.New(resync.Config{
				Brokers: cfg.Kafka.Brokers,
				Topic:   cfg.Resync.Topic,
				GroupID: cfg.Resync.GroupID,
			}, appLog, a.Service)
			go func() {
				if err := c.Start(ctx); err != nil {
					appLog.Error("resync consumer stopped", "err", err)
				}
			}()
		}
	}

	if err := server.Run(ctx, cfg, appLog, a.Service, server.Options{
		Metrics: p.Handler(),
		Checks:  a.Checks,
	}); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
