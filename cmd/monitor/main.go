package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cabinair/internal/api"
	"cabinair/internal/config"
	"cabinair/internal/database"
	"cabinair/internal/monitor"
	"cabinair/internal/server"

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

	telemetry := api.NewTelemetryClient(cfg.Telemetry.Endpoint, cfg.Telemetry.FetchTimeout, api.BreakerSettings{
		MaxFailures: cfg.Telemetry.BreakerMaxFailures,
		OpenTimeout: cfg.Telemetry.BreakerOpenTimeout,
	})
	notifier := api.NewNotificationClient(cfg.Alert.NotifyURL, cfg.Alert.DispatchTimeout)

	opts := monitor.Options{
		Horizons:        cfg.Forecast.HorizonsMinutes,
		AlertHorizon:    cfg.Forecast.AlertHorizonMinutes,
		MinSamples:      cfg.Forecast.MinSamples,
		Threshold:       cfg.Alert.ThresholdPPM,
		FetchTimeout:    cfg.Telemetry.FetchTimeout,
		DispatchTimeout: cfg.Alert.DispatchTimeout,
	}

	// Optional alert log
	var alerts server.AlertStore
	if cfg.AlertLog.Enabled {
		db, err := database.NewDB(config.GetDatabaseDSN())
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()
		opts.Recorder = db
		alerts = db
	}

	mon := monitor.New(telemetry, notifier, opts)

	sched := monitor.NewScheduler(mon, cfg.Telemetry.PollInterval)
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	httpServer := server.NewServer(mon, alerts)
	go func() {
		if err := httpServer.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("Shutting down")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}

	// let in-flight notifications and alert log writes finish
	mon.Wait()
}
