package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentpool/herald/internal/api"
	"github.com/talentpool/herald/internal/circuitbreaker"
	"github.com/talentpool/herald/internal/config"
	"github.com/talentpool/herald/internal/db"
	"github.com/talentpool/herald/internal/directory"
	"github.com/talentpool/herald/internal/events"
	"github.com/talentpool/herald/internal/metrics"
	"github.com/talentpool/herald/internal/notify"
	"github.com/talentpool/herald/internal/observ"
	"github.com/talentpool/herald/internal/realtime"
	"github.com/talentpool/herald/internal/redis"
	"github.com/talentpool/herald/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting herald",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	ctx := context.Background()

	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	repo := db.NewRepository(database, logger)

	// Redis backs rate limiting and event dedup; herald keeps working
	// without it.
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, rate limiting and event dedup disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	var rateLimiter *redis.RateLimiter
	var deduper *redis.Deduper
	if redisClient != nil {
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  300,
			Window: 1 * time.Minute,
		})
		deduper = redis.NewDeduper(redisClient, logger)
		defer func() { _ = redisClient.Close() }()
	}

	var dir notify.Directory
	if cfg.DirectoryBaseURL != "" {
		dir = directory.NewClient(directory.Config{
			BaseURL: cfg.DirectoryBaseURL,
			Token:   cfg.DirectoryToken,
		}, logger)
	} else {
		logger.Warn("no directory configured, convenience notifications and escalation disabled")
	}

	service := notify.NewService(repo, dir, logger)

	// The hub is built after the service and injected late; every
	// publish path in the service tolerates its absence.
	hub := realtime.NewHub(channelAuth(cfg.ChannelSecret, logger), realtime.Config{}, logger)
	service.SetChannel(hub)

	// Escalation senders: real AWS backends when configured, log-only in
	// development.
	var sender worker.Sender
	if cfg.Env == "production" {
		sesSender, err := worker.NewSESSender(ctx, worker.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create SES sender: %w", err)
		}

		snsSender, err := worker.NewSNSSender(ctx, worker.SNSConfig{
			Region: cfg.SNSRegion,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create SNS sender: %w", err)
		}

		sender = worker.NewMultiSender(logger,
			circuitbreaker.NewProtectedSender(sesSender, circuitbreaker.New(circuitbreaker.DefaultConfig("email"), logger), logger),
			circuitbreaker.NewProtectedSender(snsSender, circuitbreaker.New(circuitbreaker.DefaultConfig("sms"), logger), logger),
		)
	} else {
		sender = worker.NewLogSender(logger)
	}

	w := worker.New(repo, sender, service, worker.Config{
		PollInterval:  5 * time.Second,
		BatchSize:     10,
		MaxRetries:    3,
		PurgeInterval: 24 * time.Hour,
		RetentionDays: cfg.RetentionDays,
	}, logger)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go w.Start(workerCtx)
	logger.Info("escalation worker started")

	if cfg.EventsQueueURL != "" {
		consumer, err := events.NewConsumer(ctx, events.Config{
			Region:   cfg.EventsRegion,
			QueueURL: cfg.EventsQueueURL,
		}, service, dedupOrNil(deduper), logger)
		if err != nil {
			logger.Warn("event consumer unavailable, platform events will not be consumed",
				zap.Error(err),
			)
		} else {
			go consumer.Run(workerCtx)
			logger.Info("event consumer started")
		}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	handler := api.NewHandler(service, logger, cfg.Env)

	r.Route("/v1", func(r chi.Router) {
		r.Use(api.IdentityMiddleware(logger))
		r.Use(api.RateLimitMiddleware(rateLimiter, logger))
		handler.Routes(r)
	})

	r.Get("/ws", hub.HandleWS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unreachable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}

// channelAuth verifies gateway-issued channel tokens: an HMAC-SHA256 of
// "kind:id" under the shared secret. With no secret configured (local
// development) every token is accepted.
func channelAuth(secret string, logger *zap.Logger) realtime.AuthFunc {
	if secret == "" {
		logger.Warn("no channel secret configured, websocket auth is open")
		return func(ctx context.Context, recipientID uuid.UUID, recipientKind, token string) error {
			return nil
		}
	}

	return func(ctx context.Context, recipientID uuid.UUID, recipientKind, token string) error {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(recipientKind + ":" + recipientID.String()))
		expected := hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(expected), []byte(token)) {
			return fmt.Errorf("invalid channel token")
		}
		return nil
	}
}

// dedupOrNil converts a possibly-nil concrete deduper into the consumer's
// interface without the nil-interface trap.
func dedupOrNil(d *redis.Deduper) events.Deduper {
	if d == nil {
		return nil
	}
	return d
}
