package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"cabinair/internal/config"
	"cabinair/internal/notifier"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg, err := config.Load("./config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisCfg := config.GetRedisConfig()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Printf("WARNING: redis not reachable at %s: %v", redisCfg.Addr, err)
	}
	cancelPing()

	store := notifier.NewRedisStore(redisClient, redisCfg.SubscriptionsKey, redisCfg.Stream)
	svc := notifier.NewService(store, store, notifier.Options{
		Title:          cfg.Notifier.Title,
		Body:           cfg.Notifier.Body,
		VAPIDPublicKey: cfg.Notifier.VAPIDPublicKey,
	})

	app := notifier.NewApp(svc, logger.New())

	go func() {
		log.Printf("notifier: listening on %s", cfg.Notifier.Addr)
		if err := app.Listen(cfg.Notifier.Addr); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
