// Package cli provides the command-line interface for layerforge.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/layerforge/internal/core/domain"
	"github.com/custodia-labs/layerforge/internal/core/ports/driven"
	"github.com/custodia-labs/layerforge/internal/core/ports/driving"
	"github.com/custodia-labs/layerforge/internal/logger"
)

// version is set at build time.
var version = "dev"

// Global flags.
var (
	configDir string
	verbose   bool
)

// Runtime is the batch pipeline bound to one document database.
type Runtime struct {
	Documents  driven.DocumentStore
	Host       driven.Host
	Controller driving.BatchController
	Events     driven.EventPublisher

	// Close flushes the relay and releases the database.
	Close func() error
}

// RuntimeOptions selects what a Runtime is opened on.
type RuntimeOptions struct {
	DocumentPath string
	Settings     domain.Settings
	Progress     driving.ProgressFunc
}

// RuntimeOpener builds a Runtime for one invocation.
type RuntimeOpener func(ctx context.Context, opts RuntimeOptions) (*Runtime, error)

// DocumentOpener opens a document database without the batch pipeline.
// The returned function closes it.
type DocumentOpener func(path string) (driven.DocumentStore, func() error, error)

// Services holds what the commands need.
type Services struct {
	Settings      driving.SettingsService
	Sessions      driven.SessionStore
	OpenRuntime   RuntimeOpener
	OpenDocuments DocumentOpener
}

// Wiring builds Services once the global flags are parsed.
type Wiring func(configDir string) (*Services, error)

// Services used by commands. Tests replace them directly.
var (
	settingsService driving.SettingsService
	sessionStore    driven.SessionStore
	openRuntime     RuntimeOpener
	openDocuments   DocumentOpener

	wiring Wiring
)

// errNotConfigured is returned by commands whose services are missing.
var errNotConfigured = errors.New("not configured")

var rootCmd = &cobra.Command{
	Use:   "layerforge",
	Short: "Batch-apply CSV rows to layered documents",
	Long: `layerforge drives a layered document editor from a CSV file.

Each row sets the content and size of numbered text layers, then the
document is exported as PNG and/or PSD into per-format folders. Status
events are written to a relay folder for external observers.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		if wiring == nil {
			return nil
		}
		services, err := wiring(configDir)
		if err != nil {
			return err
		}
		SetServices(services)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "",
		"configuration directory (default $LAYERFORGE_CONFIG_DIR or ~/.layerforge)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// SetServices installs the services used by commands.
func SetServices(s *Services) {
	if s == nil {
		return
	}
	settingsService = s.Settings
	sessionStore = s.Sessions
	openRuntime = s.OpenRuntime
	openDocuments = s.OpenDocuments
}

// SetWiring registers the builder invoked before any command runs.
func SetWiring(w Wiring) {
	wiring = w
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
