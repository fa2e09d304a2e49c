package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/api"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/config"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/logging"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/notification"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log)

	metrics := api.NewMetrics()

	// Follow extraction progress when NATS is enabled
	if cfg.NATS.Enabled {
		sub, err := notification.NewSubscriber(cfg.NATS, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to create progress subscriber.")
		}
		if err := sub.Start(metrics.ObserveProgress); err != nil {
			log.WithError(err).Fatal("Failed to subscribe to progress events.")
		}
		defer sub.Close()
	}

	// Initialize router
	r := api.NewRouter(api.NewHandler(cfg, metrics, log))

	// Start HTTP server
	server := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: r,
	}

	go func() {
		log.Infof("API server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatalf("Could not listen on %s", server.Addr)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("API server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown.")
		return
	}
	log.Info("API server exited.")
}
