package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/mohammed-shakir/civic-choropleth/internal/atlas"
	"github.com/mohammed-shakir/civic-choropleth/internal/boundary"
	"github.com/mohammed-shakir/civic-choropleth/internal/cache/payloadcache"
	"github.com/mohammed-shakir/civic-choropleth/internal/cache/redisstore"
	"github.com/mohammed-shakir/civic-choropleth/internal/camera"
	"github.com/mohammed-shakir/civic-choropleth/internal/core/api"
	"github.com/mohammed-shakir/civic-choropleth/internal/core/config"
	"github.com/mohammed-shakir/civic-choropleth/internal/core/health"
	"github.com/mohammed-shakir/civic-choropleth/internal/core/httpclient"
	"github.com/mohammed-shakir/civic-choropleth/internal/core/observability"
	"github.com/mohammed-shakir/civic-choropleth/internal/core/server"
	"github.com/mohammed-shakir/civic-choropleth/internal/events"
	"github.com/mohammed-shakir/civic-choropleth/internal/loader"
	"github.com/mohammed-shakir/civic-choropleth/internal/logger"
	"github.com/mohammed-shakir/civic-choropleth/internal/metric"
	"github.com/mohammed-shakir/civic-choropleth/internal/metrics"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()
	_ = godotenv.Load(*envFile)

	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "civic-choropleth",
		Component: "choropleth",
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
	if err := observability.Init(p.Registerer()); err != nil {
		appLog.Error("metrics registration failed", "err", err)
		return 1
	}

	proj, err := camera.ParseProjector(cfg.Projection)
	if err != nil {
		appLog.Error("invalid projection", "projection", cfg.Projection, "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	a := atlas.New(ctx, atlas.Config{
		Metric:    metric.Options{Jitter: cfg.Jitter},
		Width:     cfg.ViewWidth,
		Height:    cfg.ViewHeight,
		Projector: proj,
		H3Res:     cfg.H3Res,
		Clock:     clock,
	}, appLog.With("component", "atlas"))
	defer a.Close()

	var deps []health.Dependency
	loaderOpts := []loader.Option{loader.WithClock(clock), loader.WithLogger(appLog.With("component", "loader"))}

	if cfg.Cache.Enabled {
		var remote payloadcache.Store
		if cfg.Cache.RedisAddr != "" {
			rc, err := redisstore.New(ctx, cfg.Cache.RedisAddr, "choropleth",
				redisstore.WithReadTimeout(cfg.Cache.OpTimeout),
				redisstore.WithWriteTimeout(cfg.Cache.OpTimeout))
			if err != nil {
				// local tier still works without redis
				appLog.Warn("redis unavailable, using local cache only", "addr", cfg.Cache.RedisAddr, "err", err)
			} else {
				defer func() { _ = rc.Close() }()
				remote = rc
				deps = append(deps, health.Dependency{Name: "redis", Ping: rc.Ping})
			}
		}
		pc, err := payloadcache.New(cfg.Cache.LRUSize, remote, cfg.Cache.TTL,
			payloadcache.WithClock(clock),
			payloadcache.WithOpTimeout(cfg.Cache.OpTimeout),
			payloadcache.WithLogger(appLog.With("component", "cache")))
		if err != nil {
			appLog.Error("cache setup failed", "err", err)
			return 1
		}
		loaderOpts = append(loaderOpts, loader.WithCache(pc))
	}

	if cfg.Events.Enabled {
		pub, err := events.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic, 0, appLog.With("component", "events"))
		if err != nil {
			appLog.Warn("view events disabled", "brokers", cfg.Events.Brokers, "err", err)
		} else {
			defer func() {
				if err := pub.Close(); err != nil {
					appLog.Warn("events close", "err", err)
				}
			}()
			a.OnTransition(pub.Listener(clock))
		}
	}

	ld := loader.New(loader.Config{
		Roster:         cfg.Sources.Roster,
		StateTopology:  cfg.Sources.StateTopology,
		CountyTopology: cfg.Sources.CountyTopology,
		Boundary:       boundary.Options{StateObject: cfg.Sources.StateObject, CountyObject: cfg.Sources.CountyObject},
		MetricURL:      cfg.Sources.MetricURL,
		Timeout:        cfg.Load.Timeout,
		Retries:        cfg.Load.Retries,
		Backoff:        cfg.Load.RetryBackoff,
	}, a, httpclient.NewOutbound(httpclient.Options{Timeout: cfg.Load.Timeout, UserAgent: "civic-choropleth/" + Version}), loaderOpts...)

	go func() {
		start := time.Now()
		if err := ld.Run(ctx); err != nil {
			appLog.Warn("initial load incomplete", "err", err, "took", time.Since(start))
			return
		}
		appLog.Info("initial load complete", "took", time.Since(start))
	}()

	r := server.NewRouter(appLog, p.Handler())
	r.Get("/readyz", health.Readiness(a, deps...))
	api.New(a, appLog, cfg.DebugExport).Routes(r)

	appLog.Info("starting choropleth",
		"addr", cfg.Addr,
		"version", Version,
		"metric_url", cfg.Sources.MetricURL,
		"cache", cfg.Cache.Enabled,
		"events", cfg.Events.Enabled)

	if err := server.Run(ctx, cfg.Addr, r, appLog); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
