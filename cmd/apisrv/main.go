package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ItsMariusBC/TrainStats/pkg/config"
	"github.com/ItsMariusBC/TrainStats/pkg/db"
	"github.com/ItsMariusBC/TrainStats/pkg/invitations"
	"github.com/ItsMariusBC/TrainStats/pkg/journeys"
	"github.com/ItsMariusBC/TrainStats/pkg/log"
	"github.com/ItsMariusBC/TrainStats/pkg/realtime"
	"github.com/ItsMariusBC/TrainStats/pkg/sweeper"
	"github.com/ItsMariusBC/TrainStats/pkg/webserver"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := log.Init(&cfg.Logging); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger := log.GetLogger()

	logger.Info("Starting TrainStats API Server")

	// Initialize database
	logger.Info("Connecting to database...")
	database, err := db.New(&cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.WithError(err).Error("Failed to close database connection")
		}
	}()

	// Run database migrations
	logger.Info("Running database migrations...")
	if err := database.Migrate(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	// Seed the bootstrap admin, if configured
	if err := database.SeedInitialData(&cfg.Seed, cfg.Security.BcryptCost); err != nil {
		logger.WithError(err).Fatal("Failed to seed initial data")
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the realtime hub
	hub := realtime.NewHub(logger)
	go hub.Run(ctx)

	// Wire the services
	repo := db.NewRepository(database)
	journeySvc := journeys.NewService(repo, hub, logger)
	invitationSvc := invitations.NewService(repo, logger, cfg.Security.BcryptCost)

	// A fresh install gets an active family code alongside the seed admin
	if err := invitationSvc.SeedFamilyCode(cfg.Seed.AdminEmail); err != nil {
		logger.WithError(err).Fatal("Failed to seed family code")
	}

	// Start the status sweeper
	sweepManager := sweeper.NewManager(cfg, journeySvc, logger)
	sweepManager.Start(ctx)

	// Initialize web server
	logger.Info("Initializing web server...")
	server, err := webserver.New(cfg, database, logger, hub, journeySvc, invitationSvc, sweepManager)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize web server")
	}

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	logger.WithField("address", cfg.Server.GetServerAddr()).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Cancel context to stop the hub and the sweeper
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.GracefulStop)*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	} else {
		logger.Info("Web server exited gracefully")
	}

	sweepManager.Stop()

	logger.Info("Application exited gracefully")
}
