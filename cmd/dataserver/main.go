package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/civic-choropleth/internal/core/config"
	"github.com/mohammed-shakir/civic-choropleth/internal/core/observability"
	"github.com/mohammed-shakir/civic-choropleth/internal/core/server"
	"github.com/mohammed-shakir/civic-choropleth/internal/dataservice"
	"github.com/mohammed-shakir/civic-choropleth/internal/logger"
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
		Service:   "civic-data-api",
		Component: "dataserver",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	p := metrics.Init(metrics.Config{Enabled: cfg.MetricsEnabled, Build: metrics.BuildInfo{Version: Version}})
	if err := observability.Init(p.Registerer()); err != nil {
		appLog.Error("metrics registration failed", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := server.NewRouter(appLog, p.Handler())
	dataservice.New(appLog).Routes(r)

	appLog.Info("starting civic data api stub", "addr", cfg.DataAddr, "version", Version)
	if err := server.Run(ctx, cfg.DataAddr, r, appLog); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	return 0
}
