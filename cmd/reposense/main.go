package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"reposense/internal/api"
	"reposense/internal/config"
	"reposense/internal/gitexec"
	"reposense/internal/logging"
	"reposense/internal/query"
	"reposense/internal/ratelimit"
	"reposense/internal/resolve"
	"reposense/internal/scheduler"
	"reposense/internal/store"
	"reposense/internal/suggest"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.Env, os.Getenv("LOG_LEVEL"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatal().Err(err).Msg("migrations")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	limiter := ratelimit.NewTokenBucket(redisClient, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	executor := gitexec.NewOSExecutor(cfg.GitBin, cfg.GitTimeout)
	runner := gitexec.NewRunner(executor, log)
	resolver := resolve.New(executor, log)
	provider := suggest.NewStatusProvider(runner)

	sched := scheduler.New(cfg, st, runner, provider, log)
	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("scheduler start")
	}

	facade := query.New(st, cfg.HistoryDefaultLimit, cfg.HistoryMaxLimit)
	server := api.New(cfg, sched, facade, runner, resolver, provider, limiter, log)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.Info().Str("port", cfg.HTTPPort).Msg("reposense listening")
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	sched.Stop()
}
