package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lumen-browser/extengine/internal/domain/extension"
	"github.com/lumen-browser/extengine/internal/infrastructure/config"
	"github.com/lumen-browser/extengine/internal/infrastructure/server"
)

func main() {
	cfg := config.LoadOrDefault()

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}
	logger := srv.Logger()

	if cfg.Engine.ManifestDir != "" {
		loadManifests(srv.Manager(), cfg.Engine.ManifestDir, logger)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	case err := <-errChan:
		logger.Fatal("server error", zap.Error(err))
	}
}

// loadManifests installs every manifest found under dir. Extensions land
// in the disabled state; enabling is a deliberate act through the API.
// Both dir/manifest.json layouts are accepted: one manifest per
// subdirectory, or loose *.json files in dir itself.
func loadManifests(manager *extension.Manager, dir string, logger *zap.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("manifest directory unreadable", zap.String("dir", dir), zap.Error(err))
		return
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			paths = append(paths, filepath.Join(dir, entry.Name(), "manifest.json"))
		} else if filepath.Ext(entry.Name()) == ".json" {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}

	loaded := 0
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		ext, err := manager.Install(data)
		if err != nil {
			logger.Warn("manifest rejected", zap.String("path", path), zap.Error(err))
			continue
		}
		logger.Info("extension loaded",
			zap.String("path", path),
			zap.String("extension_id", ext.ID),
			zap.String("name", ext.Name),
		)
		loaded++
	}
	logger.Info("manifest scan complete", zap.String("dir", dir), zap.Int("loaded", loaded))
}
