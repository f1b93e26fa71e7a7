package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	relayfile "github.com/custodia-labs/layerforge/internal/adapters/driven/relay/file"
	"github.com/custodia-labs/layerforge/internal/core/domain"
	"github.com/custodia-labs/layerforge/internal/logger"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Observe batch status events",
}

var relayWatchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Print relay events as they are written",
	Long: `Watches the relay folder and prints every status event a running batch
writes there. Defaults to the relay.dir setting. Press Ctrl+C to stop.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRelayWatch,
}

var relayWatchAll bool

func init() {
	relayWatchCmd.Flags().BoolVar(&relayWatchAll, "all", false, "print events already in the folder first")
	relayCmd.AddCommand(relayWatchCmd)
	rootCmd.AddCommand(relayCmd)
}

func runRelayWatch(cmd *cobra.Command, args []string) error {
	var dir string
	switch {
	case len(args) == 1:
		dir = args[0]
	case settingsService != nil:
		settings, err := settingsService.Get()
		if err != nil {
			return fmt.Errorf("failed to get settings: %w", err)
		}
		dir = settings.Relay.Dir
	default:
		return fmt.Errorf("settings service %w", errNotConfigured)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.Println(mutedStyle.Render("Watching " + dir))
	err := watchRelay(ctx, dir, cmd.OutOrStdout(), relayWatchAll)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchRelay prints events landing in dir until ctx is done. With replay
// set, events already present are printed first in name order.
func watchRelay(ctx context.Context, dir string, w io.Writer, replay bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create relay folder: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	seen := make(map[string]bool)
	existing, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to list relay folder: %w", err)
	}
	names := make([]string, 0, len(existing))
	for _, e := range existing {
		if relayfile.IsEventFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if !replay {
			seen[name] = true
			continue
		}
		printRelayFile(w, filepath.Join(dir, name), seen)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !relayfile.IsEventFile(event.Name) {
				continue
			}
			printRelayFile(w, event.Name, seen)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("relay watcher: %v", err)
		}
	}
}

// printRelayFile prints an event once. Files that do not decode yet are
// retried on their next write.
func printRelayFile(w io.Writer, path string, seen map[string]bool) {
	name := filepath.Base(path)
	if seen[name] {
		return
	}
	event, err := relayfile.ReadEvent(path)
	if err != nil {
		logger.Debug("skipping %s: %v", name, err)
		return
	}
	seen[name] = true
	fmt.Fprintln(w, formatRelayEvent(event))
}

func formatRelayEvent(e domain.RelayEvent) string {
	style := mutedStyle
	switch e.Type {
	case domain.EventError:
		style = errorStyle
	case domain.EventRowCompleted, domain.EventExported:
		style = successStyle
	}

	line := fmt.Sprintf("%s %s", e.Time.Local().Format(time.TimeOnly), style.Render(fmt.Sprintf("%-16s", e.Type)))
	if e.Row != nil {
		line += fmt.Sprintf(" row %d", *e.Row+1)
	}
	if e.Target != "" {
		line += " " + e.Target
	}
	if e.Message != "" {
		line += ": " + e.Message
	}
	return line
}
