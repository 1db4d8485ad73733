package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"trackmix/internal/config"
	"trackmix/internal/database"
	"trackmix/internal/encoder"
	"trackmix/internal/export"
	"trackmix/internal/media"
	"trackmix/internal/tunnel"

	"github.com/sirupsen/logrus"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	DB       *database.Database
	Library  *media.Library
	Catalog  *media.Catalog
	Exporter *export.Service
	Encoder  encoder.Encoder
	Tunnel   *tunnel.Service
}

// MixServer serves projects, uploads, effects and mixdown exports.
type MixServer struct {
	db       *database.Database
	config   *config.Config
	library  *media.Library
	catalog  *media.Catalog
	exporter *export.Service
	encoder  encoder.Encoder
	tunnel   *tunnel.Service
	logger   *logrus.Logger

	httpServer *http.Server
}

// NewMixServer creates a new server instance
func NewMixServer(cfg *config.Config, deps Deps, logger *logrus.Logger) (*MixServer, error) {
	if deps.DB == nil || deps.Library == nil || deps.Exporter == nil {
		return nil, errors.New("database, media library and exporter are required")
	}

	return &MixServer{
		db:       deps.DB,
		config:   cfg,
		library:  deps.Library,
		catalog:  deps.Catalog,
		exporter: deps.Exporter,
		encoder:  deps.Encoder,
		tunnel:   deps.Tunnel,
		logger:   logger,
	}, nil
}

// Handler returns the routed handler wrapped in the middleware chain.
func (ms *MixServer) Handler() http.Handler {
	mux := http.NewServeMux()
	ms.setupRoutes(mux)

	var h http.Handler = mux
	h = ms.corsMiddleware(h)
	h = ms.requestLoggingMiddleware(h)
	h = ms.ownerMiddleware(h)
	h = ms.panicRecoveryMiddleware(h)
	return h
}

func (ms *MixServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", ms.handleHealthCheck)

	// Projects
	mux.HandleFunc("GET /api/projects", ms.handleListProjects)
	mux.HandleFunc("POST /api/projects", ms.handleCreateProject)
	mux.HandleFunc("GET /api/projects/{id}", ms.handleGetProject)
	mux.HandleFunc("PUT /api/projects/{id}", ms.handleUpdateProject)
	mux.HandleFunc("DELETE /api/projects/{id}", ms.handleDeleteProject)

	// Mixdown
	mux.HandleFunc("GET /export/{id}", ms.handleExportProject)
	mux.HandleFunc("GET /export/{id}/report", ms.handleExportReport)

	// Media
	mux.HandleFunc("GET /api/effects", ms.handleListEffects)
	mux.HandleFunc("POST /api/media/upload", ms.handleUploadMedia)
	mux.HandleFunc("GET /api/media", ms.handleListMedia)
	mux.HandleFunc("DELETE /api/media/{id}", ms.handleDeleteMedia)
	mux.HandleFunc("GET "+ms.library.URLPrefix(), ms.handleServeMedia)

	mux.HandleFunc("OPTIONS /", ms.handlePreflight)
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (ms *MixServer) Start(ctx context.Context) error {
	ms.httpServer = &http.Server{
		Addr:              ms.config.GetAddress(),
		Handler:           ms.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(ms.config.Server.ReadTimeout) * time.Second,
	}

	if ms.catalog != nil && ms.config.Media.WatchEffects {
		if err := ms.catalog.Watch(); err != nil {
			ms.logger.WithError(err).Warn("Could not start effects watcher")
		} else {
			defer ms.catalog.Stop()
		}
	}

	projects, err := ms.db.ListProjects("")
	projectCount := 0
	if err == nil {
		projectCount = len(projects)
	}

	ms.logger.WithFields(logrus.Fields{
		"address":    fmt.Sprintf("http://%s", ms.config.GetAddress()),
		"media_root": ms.library.Root(),
		"projects":   projectCount,
		"format":     ms.config.Encoder.Format,
	}).Info("trackmix server starting")

	errCh := make(chan error, 1)
	go func() {
		if err := ms.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if ms.tunnel != nil {
		if err := ms.tunnel.StartTunnel(ctx, ms.config.LocalURL()); err != nil {
			ms.logger.WithError(err).Warn("Could not start ngrok tunnel")
		} else {
			defer ms.tunnel.Stop()
		}
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	return ms.Shutdown()
}

// Shutdown gracefully shuts down the server
func (ms *MixServer) Shutdown() error {
	ms.logger.Info("Shutting down trackmix server...")

	if ms.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := ms.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}

	ms.logger.Info("trackmix server shutdown complete")
	return nil
}
