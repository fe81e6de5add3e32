package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/kinexbt/coin-yaps/internal/auth"
	"github.com/kinexbt/coin-yaps/internal/comment"
	"github.com/kinexbt/coin-yaps/internal/config"
	"github.com/kinexbt/coin-yaps/internal/database"
	"github.com/kinexbt/coin-yaps/internal/logging"
	"github.com/kinexbt/coin-yaps/internal/marketdata"
	"github.com/kinexbt/coin-yaps/internal/metrics"
	"github.com/kinexbt/coin-yaps/internal/prediction"
	"github.com/kinexbt/coin-yaps/internal/realtime"
	"github.com/kinexbt/coin-yaps/internal/token"
	"github.com/kinexbt/coin-yaps/internal/user"
)

func main() {
	cfg := config.MustLoad()
	log := logging.New(cfg.Logging)

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Database connection
	db, err := database.Open(cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}

	// Redis connection
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("Failed to connect to Redis, rate limiting will fail open")
	}

	// Realtime hub
	hub := realtime.NewHub(log)
	go hub.Run()

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.RequestLogger(log))
	router.Use(metrics.Middleware())

	// Security middleware
	router.Use(auth.SecurityHeaders())
	router.Use(auth.SecureCORS(cfg.HTTP.AllowedOrigins))

	// Session and rate limiting middleware
	users := user.NewUserRepository(db)
	sessions := auth.NewSessions(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	authMiddleware := auth.NewAuthMiddleware(sessions, users, log)
	limiter := auth.NewRateLimiter(auth.NewRedisCounter(rdb), cfg.Redis.RateLimitPerMinute, time.Minute, log)
	guards := auth.NewGuards(authMiddleware, limiter)

	provider := marketdata.NewDexScreener(
		marketdata.WithBaseURL(cfg.MarketData.BaseURL),
		marketdata.WithTimeout(cfg.MarketData.Timeout),
		marketdata.WithMaxRetries(cfg.MarketData.MaxRetries),
		marketdata.WithLogger(log),
	)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
			"service":   "coinyaps-api",
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "pong"})
		})

		auth.NewProfileHandler(guards, log).RegisterRoutes(v1)

		// Token module initialization
		tokenRepo := token.NewTokenRepository(db)
		commentRepo := comment.NewCommentRepository(db)
		tokenService := token.NewService(tokenRepo, provider, commentRepo, hub, log)
		tokenHandler := token.NewHandler(tokenService, guards, log)
		tokenHandler.RegisterRoutes(v1)

		// Comment module initialization
		commentService := comment.NewService(commentRepo, tokenRepo, hub, log)
		commentHandler := comment.NewHandler(commentService, guards, log)
		commentHandler.RegisterRoutes(v1)

		// Prediction module initialization
		predictionRepo := prediction.NewPredictionRepository(db)
		predictionService := prediction.NewService(predictionRepo, tokenRepo, hub, log)
		predictionHandler := prediction.NewHandler(predictionService, guards, log)
		predictionHandler.RegisterRoutes(v1)

		// Realtime feed
		realtime.NewHandler(hub, cfg.HTTP.AllowedOrigins).RegisterRoutes(v1)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.WithField("port", cfg.HTTP.Port).Info("Starting CoinYaps API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	// websocket connections are hijacked and not closed by Shutdown
	hub.Stop()

	if err := database.Close(db); err != nil {
		log.WithError(err).Warn("Failed to close database")
	}
	if err := rdb.Close(); err != nil {
		log.WithError(err).Warn("Failed to close Redis")
	}

	log.Info("Server exited")
}
