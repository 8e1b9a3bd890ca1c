package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/benzdriver/thinkforward-ai-sub003/handlers"
	"github.com/benzdriver/thinkforward-ai-sub003/internal/config"
	"github.com/benzdriver/thinkforward-ai-sub003/internal/database"
	"github.com/benzdriver/thinkforward-ai-sub003/internal/directory"
	"github.com/benzdriver/thinkforward-ai-sub003/internal/runlock"
	syncsvc "github.com/benzdriver/thinkforward-ai-sub003/internal/sync"
	"github.com/benzdriver/thinkforward-ai-sub003/internal/users"
	"github.com/benzdriver/thinkforward-ai-sub003/pkg/logger"
	"github.com/benzdriver/thinkforward-ai-sub003/pkg/metrics"
	"github.com/benzdriver/thinkforward-ai-sub003/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: clerk=%v mongo=%v redis=%v", cfg.Clerk.APIURL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "")

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// Lightweight CORS middleware: the trigger may come from a dashboard origin.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Cron-Secret")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	// Connect to Redis early: used for the run lock and the optional limiter
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v — running without run lock", cfg.Redis.Host, cfg.Redis.Port, err)
			redisClient = nil
		} else {
			logger.Infof("Connected to Redis: %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	// Basic health endpoint
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	var syncHandler *handlers.SyncHandler

	// readiness endpoint — 200 only when the sync pipeline is wired
	r.GET("/ready", func(c *gin.Context) {
		deps := map[string]bool{
			"sync":  syncHandler != nil,
			"redis": cfg.Redis.Host == "" || redisClient != nil,
		}
		ready := deps["sync"] && deps["redis"]
		status := http.StatusOK
		state := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			state = "not_ready"
		}
		c.JSON(status, gin.H{"status": state, "deps": deps, "uptime": fmt.Sprintf("%s", time.Since(startTime))})
	})

	// Connect to MongoDB with retry/backoff to tolerate startup races
	ctx := context.Background()
	const maxAttempts = 5
	backoff := time.Second
	var client *mongo.Client
	var errConn error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		client, errConn = database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
		if errConn == nil {
			break
		}
		logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, errConn)
		if attempt < maxAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	if errConn != nil {
		// keep the endpoint up but answer every trigger with a setup failure,
		// distinct from a directory outage mid-run; /ready reports not_ready too
		logger.Warnf("could not connect to MongoDB after %d attempts: %v", maxAttempts, errConn)
		storeDown := func(c *gin.Context) {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "user store unavailable"})
		}
		g := r.Group("/api/sync")
		g.Use(middleware.CronSecretMiddleware(cfg.Sync.CronSecret))
		g.GET("/users", storeDown)
		g.POST("/users", storeDown)
	} else {
		defer func() { _ = client.Disconnect(ctx) }()
		usersCol := client.Database(cfg.MongoDB.Database).Collection("users")
		if err := database.EnsureUserIndexes(ctx, usersCol); err != nil {
			logger.Warnf("could not ensure user indexes: %v", err)
		}
		repo := users.NewMongoRepository(usersCol)

		dirClient := directory.NewClient(cfg.Clerk.APIURL, cfg.Clerk.SecretKey, cfg.Clerk.Timeout)
		pager := directory.NewPaginator(dirClient, cfg.Sync.PageSize)
		reconciler := syncsvc.NewReconciler(pager, repo)

		lock := runlock.New(redisClient, "lock:user-sync", cfg.Sync.LockTTL)
		syncHandler = handlers.NewSyncHandler(reconciler, lock, cfg.Sync.CronSecret)
		syncHandler.Register(r.Group("/"))
	}

	// Expose Prometheus metrics
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("Starting user sync service on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
