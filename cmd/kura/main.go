package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/52poke/kura/internal/cache"
	"github.com/52poke/kura/internal/config"
	"github.com/52poke/kura/internal/control"
	"github.com/52poke/kura/internal/http"
	"github.com/52poke/kura/internal/lock"
	"github.com/52poke/kura/internal/metrics"
	"github.com/52poke/kura/internal/origin"
	"github.com/52poke/kura/internal/strategy"
	"github.com/52poke/kura/internal/worker"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jmgilman/go/errors"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to create cache store", "store", cfg.Store, "error", err)
		os.Exit(1)
	}
	if cfg.Debug {
		store = cache.NewDebug(store, logger)
	}

	var locker lock.Locker = lock.NewMemLocker()
	if cfg.RedisAddr != "" {
		redisClient := lock.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient)
	}

	originClient, err := origin.NewClient(cfg.OriginURL, cfg.FetchTimeout())
	if err != nil {
		logger.Error("invalid origin", "error", err)
		os.Exit(1)
	}

	pol := cfg.Policy()
	latency := metrics.NewLatencyTracker(0.01)
	dispatcher := strategy.New(strategy.Options{
		Policy:  pol,
		Store:   store,
		Fetcher: originClient,
		Logger:  logger,
		Locker:  locker,
		LockTTL: cfg.LockTTL(),
		Latency: latency,
	})
	sw := worker.New(pol, store, originClient, logger)
	channel := control.NewChannel(store, sw, logger)
	handler := httpx.NewHandler(pol, originClient, dispatcher, sw, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !sw.Controlling() {
			http.Error(w, sw.State().String(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/_kura/messages", &control.Handler{Channel: channel})
	mux.Handle("/_kura/stats", latency.Handler())
	mux.Handle("/", handler)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := sw.Run(ctx, cfg.InstallRetry()); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("worker failed to start", "state", sw.State().String(), "code", errors.GetCode(err), "error", err)
			stop()
			return
		}
		logger.Info("worker controlling traffic", "version", pol.Version)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	logger.Info("listening", "addr", cfg.ListenAddr, "origin", cfg.OriginURL, "store", cfg.Store, "version", pol.Version)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	dispatcher.Wait()
	logger.Info("stopped")
}

func newStore(ctx context.Context, cfg config.Config) (cache.Store, error) {
	switch cfg.Store {
	case config.StoreS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
		)
		if err != nil {
			return nil, err
		}
		s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = true
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		})
		return cache.NewS3Store(cfg.S3Bucket, s3Client), nil
	case config.StoreMinio:
		return cache.NewMinioStore(cache.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			Bucket:    cfg.MinioBucket,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
		})
	default:
		return cache.NewMemoryStore(), nil
	}
}
