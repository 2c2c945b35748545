package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"nodue/internal/api"
	"nodue/internal/attendance"
	"nodue/internal/auth"
	"nodue/internal/cloudsync"
	"nodue/internal/config"
	"nodue/internal/httpmiddleware"
	"nodue/internal/queue"
	"nodue/internal/recognizer"
	"nodue/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local, err := store.OpenLocal(cfg.LocalDBPath)
	if err != nil {
		return err
	}
	defer local.Close()

	var db *store.DB
	if cfg.SyncEnabled() {
		db, err = store.NewDB(ctx, cfg.DatabaseURL)
		if err == nil {
			err = db.Migrate(ctx)
		}
		if err != nil {
			log.Printf("warning: remote db unavailable, sync disabled: %v", err)
			_ = db.Close()
			db = nil
		}
	} else {
		log.Println("DATABASE_URL not set, running local only")
	}
	defer db.Close()

	var redisClient *store.Redis
	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		q = queue.NewRedisQueue(redisClient.Client, "nodue:sync")
	} else {
		q = queue.NewInMemory(64)
	}

	var (
		notifier attendance.Notifier
		accounts api.AccountStore
		remote   api.Puller
	)
	if db != nil {
		bridge := cloudsync.NewBridge(db)
		notifier = cloudsync.NewPublisher(local, q)
		accounts = auth.NewAccounts(db)
		remote = bridge
		if redisClient == nil {
			// No separate worker process drains an in-memory queue.
			go func() {
				if err := cloudsync.NewWorker(q, bridge).Run(ctx); err != nil && ctx.Err() == nil {
					log.Printf("sync worker stopped: %v", err)
				}
			}()
		}
	}

	svc := attendance.NewService(local, notifier)
	if err := svc.Load(ctx); err != nil {
		return err
	}

	rec := recognizer.New(cfg.RecognizerURL, cfg.RecognizerSkip)
	if !cfg.RecognizerSkip {
		if err := rec.Health(ctx); err != nil {
			log.Printf("warning: recognition service not available: %v", err)
		}
	}

	tokens := api.TokenConfig{
		Issuer:     cfg.JWTIssuer,
		SigningKey: cfg.JWTSigningKey,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}
	handler := api.NewHandler(svc, rec, api.NewAccountHandler(svc, local, accounts, remote, tokens))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(securityHeaders())
	if cfg.RateLimitPerMin <= 0 {
		log.Printf("rate limiting disabled")
	}
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin, "/healthz", "/metrics").GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		hctx := c.Request.Context()
		localHealthy := local.Healthy(hctx)
		body := gin.H{"local": localHealthy, "sync": db != nil}
		healthy := localHealthy
		if db != nil {
			dbHealthy := db.Client.PingContext(hctx) == nil
			body["db"] = dbHealthy
			healthy = healthy && dbHealthy
		}
		if redisClient != nil {
			redisHealthy := redisClient.Healthy(hctx)
			body["redis"] = redisHealthy
			healthy = healthy && redisHealthy
		}
		status := http.StatusOK
		body["status"] = "ok"
		if !healthy {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
		c.JSON(status, body)
	})

	api.RegisterRoutes(r, handler)

	var scheduler *cron.Cron
	if cfg.SyncSchedule != "" && notifier != nil {
		scheduler = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
		_, err := scheduler.AddFunc(cfg.SyncSchedule, func() {
			if notices := svc.SyncAll(ctx); len(notices) > 0 {
				log.Printf("scheduled sync: %d collection(s) not queued", len(notices))
			}
		})
		if err != nil {
			return err
		}
		scheduler.Start()
		log.Printf("scheduled sync enabled: %s", cfg.SyncSchedule)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}

	log.Println("server exited")
	return nil
}

// securityHeaders sets the usual browser hardening headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
