package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/berlin-traffic-map/roadkpi/internal/config"
	"github.com/berlin-traffic-map/roadkpi/internal/handlers"
	"github.com/berlin-traffic-map/roadkpi/internal/queue"
	"github.com/berlin-traffic-map/roadkpi/internal/repository"
	"github.com/berlin-traffic-map/roadkpi/internal/store"
	"github.com/berlin-traffic-map/roadkpi/web"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StoreBackend, err)
	}
	defer st.Close()
	log.Printf("Serving snapshots from %s store", cfg.StoreBackend)

	// Optional response cache
	var cache repository.Cache = repository.NoCache{}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Warning: Redis unavailable, serving without cache: %v", err)
		} else {
			cache = repository.NewRedisCache(redisClient, cfg.CacheTTL)
			log.Printf("Connected to Redis at %s (ttl %v)", cfg.RedisAddr, cfg.CacheTTL)
		}
	}

	repo := repository.NewSnapshotRepository(st, cache)
	snapshotHandler := handlers.NewSnapshotHandler(repo)
	healthHandler := handlers.NewHealthHandler(repo)

	// Snapshot events invalidate cached responses
	if len(cfg.KafkaBrokers) > 0 {
		consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaSnapshotTopic, cfg.KafkaGroupID)
		defer consumer.Close()

		go func() {
			err := consumer.Consume(ctx, func(ctx context.Context, e queue.SnapshotEvent) error {
				return repo.Invalidate(ctx, e.VehicleType, e.KPIType)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Snapshot event consumer stopped: %v", err)
			}
		}()
		log.Printf("Consuming snapshot events from %s", cfg.KafkaSnapshotTopic)
	}

	// Setup router
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", healthHandler.GetHealth)
	r.Get("/healthz", handlers.Healthz)
	r.Get("/api/ping", handlers.Ping)

	r.Get("/api/options", snapshotHandler.GetOptions)
	r.Get("/api/timestamps", snapshotHandler.GetTimestamps)
	r.Get("/api/snapshots", snapshotHandler.GetSnapshots)
	r.Get("/api/snapshots/{timestamp}", snapshotHandler.GetSnapshot)

	// Dashboard: STATIC_DIR wins over the embedded copy
	if cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	} else {
		static, err := fs.Sub(web.Static, "static")
		if err != nil {
			log.Fatalf("Failed to load embedded dashboard: %v", err)
		}
		r.Handle("/*", http.FileServer(http.FS(static)))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("API server starting on :%s", cfg.Port)
	log.Println("Snapshot endpoints:")
	log.Println("  GET /api/options")
	log.Println("  GET /api/timestamps?vehicle_type=&kpi_type=")
	log.Println("  GET /api/snapshots?vehicle_type=&kpi_type=&start=&end=")
	log.Println("  GET /api/snapshots/{timestamp}?vehicle_type=&kpi_type=")
	log.Println("Health:")
	log.Println("  GET /health (with store check)")

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed to start: %v", err)
	}
	log.Println("Goodbye!")
}
