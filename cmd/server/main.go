package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stratify/live-metrics/internal/api"
	"github.com/stratify/live-metrics/internal/auth"
	"github.com/stratify/live-metrics/internal/config"
	gwpostgres "github.com/stratify/live-metrics/internal/gateway/postgres"
	"github.com/stratify/live-metrics/internal/livesync"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	// PostgreSQL
	if cfg.Database.URL == "" {
		log.Fatal("database url is required (config database.url or DATABASE_URL)")
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Failed to connect to database: %v", err)
	}
	pingCancel()
	log.Println("Connected to PostgreSQL")

	// Redis for live-state broadcast and viewer presence
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	log.Printf("Connected to redis at %s", cfg.Redis.Addr)

	// Authentication
	baseURL := cfg.Server.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	}
	authManager := auth.NewManager(&cfg.Auth, baseURL)

	// Session registry: one live-sync controller per dashboard session
	gw := gwpostgres.New(db)
	registry := api.NewRegistry(
		gw,
		livesync.NewRedisBroadcaster(redisClient),
		livesync.NewRedisPresence(redisClient),
		authManager,
		cfg.Polling.Interval(),
		cfg.Polling.PresenceWindow(),
		cfg.Polling.FetchTimeout(),
	)
	registry.Start()

	server := api.NewServer(cfg.Server, registry, authManager)

	// Periodic session-store cleanup
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				authManager.CleanupExpiredSessions()
			}
		}
	}()

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	cleanupCancel()
	registry.Stop()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
