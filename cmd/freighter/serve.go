package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/freighter-registry/freighter/pkg/auth"
	"github.com/freighter-registry/freighter/pkg/config"
	"github.com/freighter-registry/freighter/pkg/index"
	"github.com/freighter-registry/freighter/pkg/index/boltindex"
	"github.com/freighter-registry/freighter/pkg/index/fsindex"
	"github.com/freighter-registry/freighter/pkg/log"
	"github.com/freighter-registry/freighter/pkg/metrics"
	"github.com/freighter-registry/freighter/pkg/server"
	"github.com/freighter-registry/freighter/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the registry server",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func init() {
	serveCmd.Flags().String("config", "", "Path to the configuration file")
	_ = serveCmd.MarkFlagRequired("config")
}

func serve(cfg *config.Config) error {
	idx, err := buildIndex(cfg)
	if err != nil {
		return fmt.Errorf("failed to construct index client: %w", err)
	}
	store, err := buildStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to construct storage client: %w", err)
	}
	authn, err := buildAuth(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize auth client: %w", err)
	}

	state := server.NewState(cfg.Service, idx, store, authn)
	handler := server.Router(state)

	// Metrics exporter on its own address.
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{
		Addr:    cfg.Service.MetricsAddress,
		Handler: metricsMux,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithComponent("metrics").Error().Err(err).Msg("metrics server exited")
		}
	}()

	srv := &http.Server{
		Addr:         cfg.Service.Address,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithComponent("server").Info().
			Str("address", cfg.Service.Address).
			Str("index", cfg.Index.Backend).
			Str("auth", cfg.Auth.Backend).
			Msg("starting freighter instance")
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errCh:
		return fmt.Errorf("freighter server exited with error: %w", err)
	case sig := <-stop:
		log.WithComponent("server").Info().
			Str("signal", sig.String()).
			Msg("signal received, beginning graceful shutdown")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	_ = metricsServer.Shutdown(ctx)

	log.WithComponent("server").Info().Msg("completed graceful shutdown")
	return nil
}

func buildIndex(cfg *config.Config) (index.Provider, error) {
	switch cfg.Index.Backend {
	case config.IndexBackendFs:
		fs, err := storage.NewFsStorage(cfg.Index.Path)
		if err != nil {
			return nil, err
		}
		return fsindex.New(fs), nil
	case config.IndexBackendS3:
		s3, err := storage.NewS3Storage(cfg.Index.S3)
		if err != nil {
			return nil, err
		}
		return fsindex.New(s3), nil
	case config.IndexBackendBolt:
		return boltindex.New(cfg.Index.Path)
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}

func buildStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendFs:
		return storage.NewFsStorage(cfg.Storage.Path)
	case config.StorageBackendS3:
		return storage.NewS3Storage(cfg.Storage.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func buildAuth(cfg *config.Config) (auth.Provider, error) {
	switch cfg.Auth.Backend {
	case config.AuthBackendFs:
		pepper, err := cfg.Pepper()
		if err != nil {
			return nil, err
		}
		return auth.NewFsAuth(auth.FsAuthConfig{
			AuthPath: cfg.Auth.AuthPath,
			Pepper:   pepper,
		})
	case config.AuthBackendAccess:
		ids := make(map[string]struct{}, len(cfg.Auth.AuthPublishAccessIDs))
		for _, id := range cfg.Auth.AuthPublishAccessIDs {
			ids[id] = struct{}{}
		}
		return auth.NewAccessAuth(auth.AccessAuthConfig{
			TeamBaseURL:      cfg.Auth.AuthTeamBaseURL,
			Audience:         cfg.Auth.AuthAudience,
			PublishAccessIDs: ids,
		})
	case config.AuthBackendYes:
		return auth.NewYesAuth(), nil
	case config.AuthBackendNone:
		return auth.NewNoAuth(), nil
	default:
		return nil, fmt.Errorf("unknown auth backend %q", cfg.Auth.Backend)
	}
}
