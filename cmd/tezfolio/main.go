package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"tezfolio/internal/aggregate"
	"tezfolio/internal/api"
	"tezfolio/internal/cache"
	"tezfolio/internal/config"
	"tezfolio/internal/fetch"
	"tezfolio/internal/metrics"
	"tezfolio/internal/ratelimit"
	"tezfolio/internal/store"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// logrus carries bootstrap logging until the zap logger is configured.
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize zap logger: %v", err)
	}
	defer zapLogger.Sync()

	slogHandler := zapslog.NewHandler(zapLogger.Core(), &zapslog.HandlerOptions{})
	slog.SetDefault(slog.New(slogHandler))

	// Load configuration. A missing file falls back to defaults so the binary
	// runs out of the box.
	cfgPath := getEnv("CONFIG_PATH", "config/config.yaml")
	var cfg *config.Config
	if _, statErr := os.Stat(cfgPath); statErr == nil {
		cfg, err = config.LoadConfig(cfgPath)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	} else {
		log.Infof("No config file at %s, using defaults", cfgPath)
		cfg = config.Default()
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Warnf("Invalid log level in config: %s. Defaulting to Info.", cfg.Logging.Level)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	zapLogger.Info("Configuration loaded", zap.String("path", cfgPath))

	metrics.MustRegisterMetrics()

	// One serialized queue per upstream provider.
	limiter := ratelimit.NewLimiter(map[ratelimit.Queue]time.Duration{
		ratelimit.QueueTzkt:      cfg.Tzkt.MinDelay(),
		ratelimit.QueueEtherlink: time.Duration(cfg.Etherlink.MinDelayMillis) * time.Millisecond,
		ratelimit.QueuePricing:   cfg.Pricing.MinDelay(),
	}, zapLogger)
	defer limiter.Close()

	tzktClient := fetch.NewTzktClient(cfg.Tzkt.BaseURL, cfg.Tzkt.Timeout(), limiter, zapLogger)
	zapLogger.Info("TzKT client initialized", zap.String("baseURL", cfg.Tzkt.BaseURL))

	etherlinkTimeout := time.Duration(cfg.Etherlink.RequestTimeoutMillis) * time.Millisecond
	etherlinkClient, err := fetch.NewEtherlinkClient(
		cfg.Etherlink.RPCURL,
		cfg.Etherlink.ExplorerURL,
		etherlinkTimeout,
		limiter,
		zapLogger,
	)
	if err != nil {
		zapLogger.Fatal("Failed to initialize Etherlink client", zap.Error(err))
	}
	defer etherlinkClient.Close()
	zapLogger.Info("Etherlink client initialized", zap.String("rpcURL", cfg.Etherlink.RPCURL))

	priceTTL := time.Duration(cfg.Pricing.CacheTTLMinutes) * time.Minute
	priceClient := fetch.NewPriceClient(cfg.Pricing.BaseURL, cfg.Pricing.Timeout(), priceTTL, limiter, zapLogger)
	zapLogger.Info("Price client initialized", zap.String("baseURL", cfg.Pricing.BaseURL))

	cacheStore := cache.NewStore(zapLogger, cache.WithSizeCap(cfg.Cache.SoftCap, cfg.Cache.TrimTo))
	cacheStore.StartSweeps()
	defer cacheStore.Close()

	fileStore, err := store.NewFileStore(cfg.Storage.DataDir, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to open data directory", zap.Error(err))
	}
	walletStore := store.NewWalletStore(fileStore, zapLogger)

	aggregator := aggregate.NewWalletAggregator(
		tzktClient, etherlinkClient, priceClient, cacheStore, walletStore, zapLogger,
	)
	zapLogger.Info("Wallet aggregator initialized")

	// Warm spot prices shortly after startup, then refresh anything stale.
	warmTimer := cacheStore.Warm(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		return aggregator.WarmPrices(ctx)
	})
	defer warmTimer.Stop()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := aggregator.RefreshStale(ctx); err != nil {
			zapLogger.Error("Initial stale refresh failed", zap.Error(err))
		} else {
			zapLogger.Info("Initial stale refresh completed")
		}
	}()

	router := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	router.Use(api.ZapLoggerMiddleware(zapLogger))
	router.Use(gin.Recovery())

	handler := api.NewHandler(aggregator, walletStore, cacheStore, cfg.Refresh.TopTokens, zapLogger)
	api.RegisterRoutes(router, handler)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	zapLogger.Info("Prometheus metrics endpoint enabled", zap.String("path", "/metrics"))

	pprofRouter := router.Group("/debug/pprof")
	{
		pprofRouter.GET("/", gin.WrapF(pprof.Index))
		pprofRouter.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		pprofRouter.GET("/profile", gin.WrapF(pprof.Profile))
		pprofRouter.POST("/symbol", gin.WrapF(pprof.Symbol))
		pprofRouter.GET("/symbol", gin.WrapF(pprof.Symbol))
		pprofRouter.GET("/trace", gin.WrapF(pprof.Trace))
		pprofRouter.GET("/allocs", gin.WrapH(pprof.Handler("allocs")))
		pprofRouter.GET("/block", gin.WrapH(pprof.Handler("block")))
		pprofRouter.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
		pprofRouter.GET("/heap", gin.WrapH(pprof.Handler("heap")))
		pprofRouter.GET("/mutex", gin.WrapH(pprof.Handler("mutex")))
		pprofRouter.GET("/threadcreate", gin.WrapH(pprof.Handler("threadcreate")))
	}
	zapLogger.Info("Pprof endpoints enabled under /debug/pprof")

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		zapLogger.Info(fmt.Sprintf("Server starting on %s", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		zapLogger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exiting")
}
