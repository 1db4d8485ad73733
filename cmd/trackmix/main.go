package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"trackmix/internal/config"
	"trackmix/internal/database"
	"trackmix/internal/export"
	"trackmix/internal/media"
	"trackmix/internal/server"
	"trackmix/internal/tunnel"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the TOML configuration file")
	flag.Parse()

	// Initialize basic logger for startup
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.WithError(err).Warn("Could not load .env file")
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Error loading configuration")
	}

	logger, logFile, err := cfg.NewLogger()
	if err != nil {
		logrus.WithError(err).Fatal("Error configuring logging")
	}
	defer logFile.Close()

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path, cfg.Database.MaxConnections, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error initializing database")
	}
	defer db.Close()

	library, err := media.NewLibrary(media.Options{
		Root:             cfg.Media.Root,
		URLPrefix:        cfg.Media.URLPrefix,
		EffectsDir:       cfg.Media.EffectsDir,
		SupportedFormats: cfg.Media.SupportedFormats,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error initializing media library")
	}

	catalog := media.NewCatalog(library, logger)
	if err := catalog.Scan(); err != nil {
		logger.WithError(err).Warn("Could not scan effects directory")
	}

	exporter, enc, err := export.NewFromConfig(cfg, db, library, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error creating export pipeline")
	}
	defer exporter.Close()

	tunnelSvc, err := tunnel.NewService(&cfg.Tunnel, logger)
	if err != nil {
		logger.WithError(err).Warn("Ngrok tunnel not available")
		tunnelSvc = nil
	}

	mixServer, err := server.NewMixServer(cfg, server.Deps{
		DB:       db,
		Library:  library,
		Catalog:  catalog,
		Exporter: exporter,
		Encoder:  enc,
		Tunnel:   tunnelSvc,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error creating server")
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mixServer.Start(ctx); err != nil {
		logger.WithError(err).Error("Server stopped with error")
		return
	}
	logger.Info("Received shutdown signal")
}
