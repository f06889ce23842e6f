// Command linbot runs the plugin runtime: it loads configuration, starts
// the plugin system and exposes Prometheus metrics until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linjianyan0229/linbot2/pkg/bot"
	"github.com/linjianyan0229/linbot2/pkg/config"
	"github.com/linjianyan0229/linbot2/pkg/logger"
	"github.com/linjianyan0229/linbot2/pkg/metrics"
	"github.com/linjianyan0229/linbot2/pkg/onebot"
)

func main() {
	var (
		configPath  = flag.String("config", "config/linbot.yaml", "path to the configuration file")
		apiURL      = flag.String("api", "http://127.0.0.1:3000", "OneBot HTTP API base URL")
		metricsAddr = flag.String("metrics", ":9090", "metrics listen address, empty to disable")
	)
	flag.Parse()

	if err := run(*configPath, *apiURL, *metricsAddr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, apiURL, metricsAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: "json"})
	defer log.Sync()

	m := metrics.New()
	caller := onebot.NewHTTPCaller(apiURL)

	b := bot.New(cfg, caller, log, m)

	ctx := context.Background()
	if err := b.Start(ctx); err != nil {
		return err
	}

	var metricsSrv *http.Server
	if metricsAddr != "" {
		if reg, ok := m.(interface{ Registry() *prometheus.Registry }); ok {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg.Registry(), promhttp.HandlerOpts{}))
			metricsSrv = &http.Server{Addr: metricsAddr, Handler: mux}
			go func() {
				if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("metrics server failed", logger.Error(err))
				}
			}()
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Performance.ShutdownTimeoutSec)*time.Second)
	defer cancel()

	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	b.Stop(shutdownCtx)
	return nil
}
