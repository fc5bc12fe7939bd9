// Package main boots the Price Batch Service HTTP server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fairyhunter13/price-batch-service/internal/batch"
	"github.com/fairyhunter13/price-batch-service/internal/config"
	httpapi "github.com/fairyhunter13/price-batch-service/internal/http"
	"github.com/fairyhunter13/price-batch-service/internal/obs"
)

func main() {
	cfg := config.Load()
	obs.InitLoggerLevel(cfg.LogLevel)
	obs.Logger.Info("service_starting", "model", cfg.Model, "runners", cfg.BatchRunners, "item_concurrency", cfg.ItemConcurrency)
	if err := cfg.Validate(); err != nil {
		obs.Logger.Error("config_invalid", "error", err)
		os.Exit(1)
	}
	if cfg.PriceAPIKey == "" || cfg.PriceAPIKey == config.Defaults().PriceAPIKey {
		obs.Logger.Warn("price_api_key_placeholder", "hint", "set PERPLEXITY_API_KEY")
	}

	w, res, err := batch.NewWorker(cfg)
	if err != nil {
		obs.Logger.Error("worker_init_error", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := res.Close(); err != nil {
			obs.Logger.Warn("cache_close_error", "error", err)
		}
	}()

	mgr := batch.New(cfg, w)
	mgr.OnSweep(res.PurgeCache)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)

	app := httpapi.NewApp(cfg, mgr)
	mux := httpapi.NewRouter(app)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		obs.Logger.Info("http_listen", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obs.Logger.Error("http_server_error", "error", err)
			os.Exit(1)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigc
	obs.Logger.Info("shutdown_signal", "signal", s.String())

	app.StartShutdown()
	obs.Logger.Info("shutdown_drain_begin", "backlog_size", mgr.BacklogSize(), "active_batches", mgr.ActiveCount())

	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelDrain()
	if drained := mgr.DrainUntil(ctxDrain); !drained {
		obs.Logger.Warn("shutdown_drain_timeout")
	} else {
		obs.Logger.Info("shutdown_drain_complete")
	}

	ctxSrv, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSrv()
	if err := srv.Shutdown(ctxSrv); err != nil {
		obs.Logger.Error("http_shutdown_error", "error", err)
	}
	mgr.Stop()
	obs.Logger.Info("service_stopped")
}
