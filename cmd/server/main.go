package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Glorc12/AirConditionerCompany/internal/cache"
	"github.com/Glorc12/AirConditionerCompany/internal/config"
	httpapi "github.com/Glorc12/AirConditionerCompany/internal/http"
	"github.com/Glorc12/AirConditionerCompany/internal/lifecycle"
	"github.com/Glorc12/AirConditionerCompany/internal/metrics"
	"github.com/Glorc12/AirConditionerCompany/internal/remote"
	"github.com/Glorc12/AirConditionerCompany/internal/session"
	"github.com/Glorc12/AirConditionerCompany/internal/syncer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "repair-desk").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := cache.OpenBackend(ctx, cfg.CacheBackend, cfg.CachePath, cfg.CacheURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.CacheBackend).Msg("failed to open cache")
	}
	store := cache.New(backend, logger, cfg.CacheWriteTimeout)
	defer store.Close()

	var client remote.Client
	if cfg.RemoteURL == "" {
		client = remote.NewMemory()
		logger.Info().Msg("using in-memory demo backend")
	} else {
		client = remote.NewHTTPClient(cfg.RemoteURL, cfg.RemoteTimeout, cfg.RemoteRatePerSec)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine := syncer.New(client, store, logger, syncer.Options{
		PageLimit:   cfg.PageLimit,
		Concurrency: cfg.PullConcurrency,
		Metrics:     metrics.NewSync(reg),
	})
	sessions := session.NewManager(client, store, engine, logger)
	if sess, ok := sessions.Restore(ctx); ok {
		logger.Info().Str("login", sess.Login).Str("role", string(sess.Role)).Msg("session restored")
	}
	if cfg.PullInterval > 0 {
		go engine.Run(ctx, cfg.PullInterval)
	}

	ctrl := lifecycle.New(sessions, engine, logger)
	router := httpapi.Router(cfg, sessions, ctrl, reg, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
