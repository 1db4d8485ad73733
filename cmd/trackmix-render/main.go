package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"trackmix/internal/config"
	"trackmix/internal/database"
	"trackmix/internal/export"
	"trackmix/internal/media"
	"trackmix/pkg/models"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// store satisfies export.ProjectStore for a render that never looks up
// stored projects.
type store struct{}

func (store) GetProject(id int) (*models.Project, error) {
	return nil, fmt.Errorf("project %d: %w", id, database.ErrNotFound)
}

func main() {
	in := flag.String("in", "", "project JSON file to render")
	out := flag.String("out", "", "output file (default: <title><ext> next to the input)")
	title := flag.String("title", "", "project title used for the default output name")
	configPath := flag.String("config", "./config.toml", "path to the TOML configuration file")
	flag.Parse()

	if *in == "" {
		fmt.Fprintln(os.Stderr, "usage: trackmix-render -in project.json [-out mix.mp3] [-title name] [-config config.toml]")
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Error loading configuration")
	}
	logger, logFile, err := cfg.NewLogger()
	if err != nil {
		logrus.WithError(err).Fatal("Error configuring logging")
	}
	defer logFile.Close()

	data, err := os.ReadFile(*in)
	if err != nil {
		logger.WithError(err).Fatal("Error reading project file")
	}

	library, err := media.NewLibrary(media.Options{
		Root:             cfg.Media.Root,
		URLPrefix:        cfg.Media.URLPrefix,
		EffectsDir:       cfg.Media.EffectsDir,
		SupportedFormats: cfg.Media.SupportedFormats,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error initializing media library")
	}

	cfg.Export.CacheTTLSeconds = 0
	exporter, _, err := export.NewFromConfig(cfg, store{}, library, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error creating export pipeline")
	}
	defer exporter.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	name := *title
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(*in), filepath.Ext(*in))
	}
	result, err := exporter.RenderTimeline(ctx, name, data)
	if err != nil {
		logger.WithError(err).Fatal("Render failed")
	}

	dest := *out
	if dest == "" {
		dest = filepath.Join(filepath.Dir(*in), result.Filename)
	}
	if err := os.WriteFile(dest, result.Data, 0644); err != nil {
		logger.WithError(err).Fatal("Error writing output")
	}

	for _, w := range result.Warnings {
		fmt.Println("warning:", w)
	}
	for _, o := range result.Report.Outcomes {
		fmt.Println(o)
	}
	fmt.Printf("wrote %s (%dms, %d bytes, %d skipped)\n", dest, result.DurationMs, len(result.Data), len(result.Report.Skipped()))
}
