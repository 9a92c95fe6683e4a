package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/revaspay/mpesa-relay/internal/cache"
	"github.com/revaspay/mpesa-relay/internal/config"
	"github.com/revaspay/mpesa-relay/internal/database"
	"github.com/revaspay/mpesa-relay/internal/handlers"
	"github.com/revaspay/mpesa-relay/internal/jobs"
	"github.com/revaspay/mpesa-relay/internal/middleware"
	"github.com/revaspay/mpesa-relay/internal/mpesa"
	"github.com/revaspay/mpesa-relay/internal/queue"
	"github.com/revaspay/mpesa-relay/internal/routes"
)

func main() {
	// Initialize configuration
	cfg := config.LoadConfig()

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Transaction storage: Postgres when configured, memory otherwise
	var sink mpesa.TransactionSink
	if cfg.Database.URL != "" {
		db, err := database.InitDB(cfg.Database)
		if err != nil {
			logger.Error("failed to initialize database", "error", err)
			os.Exit(1)
		}
		sink = database.NewTransactionStore(db)
	} else {
		if cfg.IsProduction() {
			logger.Warn("DATABASE_URL not set, transactions are kept in memory")
		}
		sink = mpesa.NewMemorySink()
	}

	// Redis backs the idempotency cache and the merchant forward queue
	var redisQueue *queue.RedisQueue
	var forwardWorker *queue.Worker
	if cfg.Redis.URL != "" {
		redisClient, err := newRedisClient(cfg.Redis.URL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		if cfg.Merchant.CallbackURL != "" {
			redisQueue = queue.NewRedisQueue(redisClient)
			sink = jobs.NewForwardingSink(sink, redisQueue, logger)
			forwardWorker, err = jobs.StartMerchantForwarding(redisQueue, cfg.Merchant.CallbackURL,
				cfg.Merchant.SigningSecret, cfg.Merchant.Workers, cfg.Mpesa.RequestTimeout, logger)
			if err != nil {
				logger.Error("failed to start merchant forwarding", "error", err)
				os.Exit(1)
			}
		}
		sink = cache.NewIdempotentSink(sink, redisClient, cache.DefaultTransactionTTL, logger)
	}

	// Gateway access
	client := mpesa.NewClient(cfg.Mpesa.BaseURL, cfg.Mpesa.ConsumerKey, cfg.Mpesa.ConsumerSecret, cfg.Mpesa.RequestTimeout)
	tokens := mpesa.NewTokenManager(client, mpesa.NewTokenStore(),
		mpesa.WithExchangeTimeout(cfg.Mpesa.RequestTimeout),
		mpesa.WithLogger(logger),
	)
	registrar := mpesa.NewRegistrar(tokens, client, logger)
	processor := mpesa.NewWebhookProcessor(sink, logger)

	refreshJob := jobs.NewTokenRefreshJob(tokens, cfg.Mpesa.RefreshInterval, logger)
	if err := refreshJob.Start(); err != nil {
		logger.Error("failed to schedule token refresh", "error", err)
		os.Exit(1)
	}

	guard, err := middleware.NewWebhookGuard(cfg.IsProduction(), cfg.Mpesa.AllowedIPs, logger)
	if err != nil {
		logger.Error("invalid webhook allow-list", "error", err)
		os.Exit(1)
	}
	operatorLimiter := middleware.NewRateLimiter(cfg.Security.OperatorRateLimit, cfg.Security.OperatorRateBurst, cfg.Security.RateLimitCleanup)

	router, err := newRouter(cfg)
	if err != nil {
		logger.Error("failed to configure router", "error", err)
		os.Exit(1)
	}

	operatorCORS := cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})

	var stats handlers.QueueStats
	if redisQueue != nil {
		stats = redisQueue
	}
	routes.SetupRoutes(router, routes.Dependencies{
		Mpesa:        handlers.NewMpesaHandler(processor, registrar, cfg.Mpesa.ShortCode, cfg.Mpesa.CallbackBaseURL, logger),
		Health:       handlers.NewHealthHandler(cfg.Environment, stats),
		Guard:        guard,
		OperatorRate: operatorLimiter,
		OperatorKey:  cfg.Security.OperatorAPIKey,
		CORS:         operatorCORS,
	})

	srv := startServer(router, cfg.Server, logger)

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	refreshJob.Stop()
	operatorLimiter.Stop()
	if forwardWorker != nil {
		forwardWorker.Stop()
	}

	logger.Info("server exiting")
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func newRouter(cfg *config.Config) (*gin.Engine, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, err
	}

	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.SecureHeadersMiddleware(
		middleware.DefaultSecureHeadersConfig(cfg.Security.HSTSMaxAge, cfg.Security.CSPDirectives),
	))
	return router, nil
}

// startServer starts the HTTP server
func startServer(router *gin.Engine, serverConfig config.ServerConfig, logger *slog.Logger) *http.Server {
	srv := &http.Server{
		Addr:         ":" + serverConfig.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(serverConfig.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(serverConfig.WriteTimeout) * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("server started", "port", serverConfig.Port)
	return srv
}
