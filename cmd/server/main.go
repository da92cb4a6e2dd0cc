package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gsarma/judgerun/internal/api"
	"github.com/gsarma/judgerun/internal/config"
	"github.com/gsarma/judgerun/internal/logger"
	"github.com/gsarma/judgerun/internal/ratelimit"
	"github.com/gsarma/judgerun/internal/secret"
	"github.com/gsarma/judgerun/internal/store"
	"github.com/gsarma/judgerun/internal/tenant"
	"github.com/gsarma/judgerun/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet.
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := store.Migrate(ctx, pool); err != nil {
		log.Fatal("failed to apply schema", zap.Error(err))
	}

	keys, err := secret.NewKeyring(cfg.RootEncryptionKey)
	if err != nil {
		log.Fatal("failed to initialize keyring", zap.Error(err))
	}

	var limiter *ratelimit.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		limiter = ratelimit.New(rdb, cfg.RateLimitPerMinute, time.Minute, log)
	} else {
		log.Info("REDIS_ADDR not set, rate limiting disabled")
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), logger.GinMiddleware(log))

	queries := store.New(pool)
	h := api.RegisterRoutes(router, api.Deps{
		Queries: queries,
		Tenants: tenant.NewService(queries, keys),
		Limiter: limiter,
		Judge0:  cfg.Judge0.ClientConfig(),
		Logger:  log,
	})

	w := worker.New(queries, h, cfg.WorkerConcurrency,
		worker.WithPollInterval(cfg.WorkerPollInterval),
		worker.WithLogger(log))

	switch cfg.Mode {
	case "worker":
		log.Info("starting in worker-only mode")
		w.Start(ctx) // blocks until ctx cancelled
	case "api":
		// API-only: no embedded worker goroutines; scale workers separately.
		log.Info("starting in api-only mode")
		serve(ctx, log, router, cfg.Port)
	default:
		// Default: run both API server and worker in the same process.
		workerDone := make(chan struct{})
		go func() {
			defer close(workerDone)
			w.Start(ctx)
		}()
		serve(ctx, log, router, cfg.Port)
		<-workerDone
	}
}

func serve(ctx context.Context, log *zap.Logger, handler http.Handler, port string) {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("server shutdown", zap.Error(err))
		}
	}()

	log.Info("listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", zap.Error(err))
	}
}
