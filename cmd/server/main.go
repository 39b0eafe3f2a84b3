// Package main runs the check-in HTTP server with graceful shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/config"
	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/internal/checkin"
	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/internal/geocoding"
	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/internal/location"
	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/internal/metrics"
	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/internal/middleware"
	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/internal/notify"
	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/pkg/redis"
	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/pkg/response"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Redis is optional; without it positions and addresses are not cached.
	var (
		rdb          *redis.Client
		positions    location.PositionCache
		addressCache geocoding.AddressCache
	)
	if cfg.Redis.Enabled() {
		rdb, err = redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		positions = location.NewRedisPositionCache(rdb.Client, cfg.Location.PositionCacheTTL)
		addressCache = geocoding.NewRedisAddressCache(rdb.Client, cfg.Geocoding.CacheTTL)
	} else {
		logger.Info("redis disabled, caches off")
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	if cfg.Telegram.BotToken == "" {
		logger.Warn("telegram bot token is not set, check-ins will not be delivered")
	}
	dispatcher := notify.NewDispatcher(notify.Config{
		BotToken:     cfg.Telegram.BotToken,
		MemberChatID: cfg.Telegram.MemberGroupID,
		GuestChatID:  cfg.Telegram.GuestGroupID,
		APIURL:       cfg.Telegram.APIURL,
		Timeout:      cfg.HTTPClient.Timeout,
	}, m, logger)
	logger.Info("telegram configured",
		zap.String("token", notify.MaskToken(cfg.Telegram.BotToken)),
		zap.Bool("member_group", cfg.Telegram.MemberGroupID != ""),
		zap.Bool("guest_group", cfg.Telegram.GuestGroupID != ""),
	)

	geocoder := geocoding.NewClient(geocoding.Config{
		URL:      cfg.Geocoding.URL,
		Language: cfg.Geocoding.Language,
		Timeout:  cfg.HTTPClient.Timeout,
	}, addressCache, m, logger)

	zone, err := time.LoadLocation(cfg.Server.TimeZone)
	if err != nil {
		logger.Warn("unknown time zone, using UTC+7", zap.String("zone", cfg.Server.TimeZone), zap.Error(err))
		zone = nil
	}

	checkinHandler := checkin.NewHandler(dispatcher, geocoder, positions, m, zone, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/ready", func(c *gin.Context) {
		readyCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := rdb.Ready(readyCtx); err != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ready"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Check-in form
	router.POST("/checkins", checkinHandler.Create)
	router.GET("/geocode/reverse", checkinHandler.Reverse)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// newLogger builds the production logger. An unparsable level keeps the default (info).
func newLogger(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("zap build: %w", err)
	}
	return logger, nil
}
