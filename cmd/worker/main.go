package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"nodue/internal/cloudsync"
	"nodue/internal/config"
	"nodue/internal/queue"
	"nodue/internal/store"
)

// Worker drains sync jobs from the Redis queue into the remote database.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if !cfg.SyncEnabled() {
		log.Fatal("DATABASE_URL is required for the sync worker")
	}
	if cfg.QueueBackend != "redis" {
		log.Fatalf("queue backend %q is drained by the api process, run the worker with QUEUE_BACKEND=redis", cfg.QueueBackend)
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("warning: redis at %s not reachable yet, will keep polling", cfg.RedisAddr)
	}

	q := queue.NewRedisQueue(redisClient.Client, "nodue:sync")
	w := cloudsync.NewWorker(q, cloudsync.NewBridge(db))

	log.Println("worker started, waiting for sync jobs...")
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("worker failed: %v", err)
	}
	log.Println("worker stopped")
}
