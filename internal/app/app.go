// Package app assembles the adapters and services behind the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/layerforge/internal/adapters/driven/config/file"
	"github.com/custodia-labs/layerforge/internal/adapters/driven/host"
	"github.com/custodia-labs/layerforge/internal/adapters/driven/host/local"
	"github.com/custodia-labs/layerforge/internal/adapters/driven/relay"
	relayfile "github.com/custodia-labs/layerforge/internal/adapters/driven/relay/file"
	relays3 "github.com/custodia-labs/layerforge/internal/adapters/driven/relay/s3"
	"github.com/custodia-labs/layerforge/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/layerforge/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/layerforge/internal/adapters/driving/cli"
	"github.com/custodia-labs/layerforge/internal/core/domain"
	"github.com/custodia-labs/layerforge/internal/core/ports/driven"
	"github.com/custodia-labs/layerforge/internal/core/services"
	"github.com/custodia-labs/layerforge/internal/logger"
)

// Environment overrides applied on top of config.toml.
const (
	EnvS3AccessKey = "LAYERFORGE_S3_ACCESS_KEY"
	EnvS3SecretKey = "LAYERFORGE_S3_SECRET_KEY"
	EnvRelayDir    = "LAYERFORGE_RELAY_DIR"
)

// Wire builds the CLI services for a configuration directory.
func Wire(configDir string) (*cli.Services, error) {
	if configDir == "" {
		dir, err := file.DefaultConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolving config directory: %w", err)
		}
		configDir = dir
	}

	configStore, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}

	w := &wired{dataDir: filepath.Join(configDir, "data")}
	return &cli.Services{
		Settings:      &envSettings{SettingsService: services.NewSettingsService(configStore)},
		Sessions:      memory.NewSessionStore(),
		OpenRuntime:   w.OpenRuntime,
		OpenDocuments: w.OpenDocuments,
	}, nil
}

type wired struct {
	dataDir string
}

func (w *wired) documentPath(path string) string {
	if path == "" {
		return filepath.Join(w.dataDir, sqlite.DefaultFileName)
	}
	return path
}

// OpenDocuments opens the document database at path.
func (w *wired) OpenDocuments(path string) (driven.DocumentStore, func() error, error) {
	db, err := sqlite.NewStore(w.documentPath(path))
	if err != nil {
		return nil, nil, err
	}
	return db.DocumentStore(), db.Close, nil
}

// OpenRuntime assembles the batch pipeline over the local host.
func (w *wired) OpenRuntime(ctx context.Context, opts cli.RuntimeOptions) (*cli.Runtime, error) {
	db, err := sqlite.NewStore(w.documentPath(opts.DocumentPath))
	if err != nil {
		return nil, err
	}
	docs := db.DocumentStore()
	if _, err := docs.ActiveDocument(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", db.Path(), err)
	}

	s := opts.Settings
	h := local.New(docs)
	cmds := host.NewPacedFromSettings(h, s.Host)
	events := relay.NewDispatcher(RelaySink(s.Relay), s.Relay.Buffer)

	mutator := services.NewLayerMutator(h, cmds, events, s.Mutation, s.CSV.LineBreakToken)
	exporter := services.NewDocumentExporter(h, cmds)
	folders := services.NewFolderProvisioner(h, s.Export.Probe)
	batchOpts := []services.BatchOption{services.WithDocuments(h)}
	if opts.Progress != nil {
		batchOpts = append(batchOpts, services.WithProgress(opts.Progress))
	}
	ctrl := services.NewBatchController(mutator, exporter, folders, events, s, batchOpts...)

	logger.Debug("runtime opened on %s", db.Path())
	return &cli.Runtime{
		Documents:  docs,
		Host:       h,
		Controller: ctrl,
		Events:     events,
		Close: func() error {
			return errors.Join(events.Close(), db.Close())
		},
	}, nil
}

// RelaySink returns the folder sink, mirrored to S3 when configured.
// A mirror that cannot be built is logged and skipped.
func RelaySink(cfg domain.RelaySettings) driven.RelaySink {
	folder := relayfile.NewSink(cfg.Dir)
	if !cfg.S3.Enabled() {
		return folder
	}
	mirror, err := relays3.New(cfg.S3)
	if err != nil {
		logger.Warn("relay S3 mirror disabled: %v", err)
		return folder
	}
	return relay.Fanout{folder, mirror}
}

// envSettings applies environment overrides to the stored settings.
type envSettings struct {
	*services.SettingsService
}

// Get returns the stored settings with environment overrides applied.
func (e *envSettings) Get() (*domain.Settings, error) {
	s, err := e.SettingsService.Get()
	if err != nil {
		return nil, err
	}
	applyEnv(s)
	return s, nil
}

func applyEnv(s *domain.Settings) {
	if v := os.Getenv(EnvRelayDir); v != "" {
		s.Relay.Dir = v
	}
	if v := os.Getenv(EnvS3AccessKey); v != "" {
		s.Relay.S3.AccessKey = v
	}
	if v := os.Getenv(EnvS3SecretKey); v != "" {
		s.Relay.S3.SecretKey = v
	}
}
