package cli

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/layerforge/internal/adapters/driven/host"
	"github.com/custodia-labs/layerforge/internal/adapters/driven/host/local"
	"github.com/custodia-labs/layerforge/internal/adapters/driven/relay"
	relayfile "github.com/custodia-labs/layerforge/internal/adapters/driven/relay/file"
	"github.com/custodia-labs/layerforge/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/layerforge/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/layerforge/internal/core/domain"
	"github.com/custodia-labs/layerforge/internal/core/ports/driven"
	"github.com/custodia-labs/layerforge/internal/core/services"
)

// testEnv holds the paths used by services installed by setupTestServices.
type testEnv struct {
	configStore *memory.ConfigStore
	sessions    *memory.SessionStore
	dbPath      string
	relayDir    string
}

// setupTestServices installs real services over temp directories and
// restores the previous ones when the test ends.
func setupTestServices(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	env := &testEnv{
		configStore: memory.NewConfigStore(),
		sessions:    memory.NewSessionStore(),
		dbPath:      filepath.Join(dir, "documents.db"),
		relayDir:    filepath.Join(dir, "relay"),
	}
	require.NoError(t, env.configStore.Set("mutation.settle_delay", "0s"))
	require.NoError(t, env.configStore.Set("relay.dir", env.relayDir))

	prevSettings, prevSessions := settingsService, sessionStore
	prevRuntime, prevDocuments := openRuntime, openDocuments
	t.Cleanup(func() {
		settingsService, sessionStore = prevSettings, prevSessions
		openRuntime, openDocuments = prevRuntime, prevDocuments
	})

	SetServices(&Services{
		Settings:      services.NewSettingsService(env.configStore),
		Sessions:      env.sessions,
		OpenRuntime:   testRuntime(env),
		OpenDocuments: testDocuments(env),
	})
	return env
}

func testDocuments(env *testEnv) DocumentOpener {
	return func(path string) (driven.DocumentStore, func() error, error) {
		if path == "" {
			path = env.dbPath
		}
		db, err := sqlite.NewStore(path)
		if err != nil {
			return nil, nil, err
		}
		return db.DocumentStore(), db.Close, nil
	}
}

func testRuntime(env *testEnv) RuntimeOpener {
	return func(_ context.Context, opts RuntimeOptions) (*Runtime, error) {
		path := opts.DocumentPath
		if path == "" {
			path = env.dbPath
		}
		db, err := sqlite.NewStore(path)
		if err != nil {
			return nil, err
		}
		docs := db.DocumentStore()
		h := local.New(docs, local.WithTempDir(filepath.Join(filepath.Dir(path), "scratch")))
		cmds := host.NewPacedFromSettings(h, opts.Settings.Host)
		events := relay.NewDispatcher(relayfile.NewSink(opts.Settings.Relay.Dir), opts.Settings.Relay.Buffer)

		s := opts.Settings
		mutator := services.NewLayerMutator(h, cmds, events, s.Mutation, s.CSV.LineBreakToken)
		exporter := services.NewDocumentExporter(h, cmds)
		folders := services.NewFolderProvisioner(h, s.Export.Probe)
		batchOpts := []services.BatchOption{services.WithDocuments(h)}
		if opts.Progress != nil {
			batchOpts = append(batchOpts, services.WithProgress(opts.Progress))
		}
		ctrl := services.NewBatchController(mutator, exporter, folders, events, s, batchOpts...)

		return &Runtime{
			Documents:  docs,
			Host:       h,
			Controller: ctrl,
			Events:     events,
			Close: func() error {
				return errors.Join(events.Close(), db.Close())
			},
		}, nil
	}
}

// seedDocument creates a document with a background and the given text layers.
func seedDocument(t *testing.T, env *testEnv, name string, textLayers ...string) domain.DocumentRef {
	t.Helper()
	db, err := sqlite.NewStore(env.dbPath)
	require.NoError(t, err)
	defer db.Close()

	layers := []domain.Layer{{Name: "Background", Kind: domain.LayerPixel, Visible: true}}
	for _, l := range textLayers {
		layers = append(layers, domain.Layer{Name: l, Kind: domain.LayerText, Text: l, FontSize: 12, Visible: true})
	}
	doc, _, err := db.DocumentStore().CreateDocument(context.Background(),
		domain.DocumentRef{Name: name, Width: 80, Height: 40}, layers)
	require.NoError(t, err)
	return *doc
}

// execute runs the root command with args and returns its combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	err := rootCmd.Execute()
	return buf.String(), err
}
