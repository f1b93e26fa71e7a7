package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/layerforge/internal/core/domain"
	"github.com/custodia-labs/layerforge/internal/core/ports/driving"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Apply a CSV file to a document",
	Long: `Loads the CSV rows and applies them one by one to the active document
of the document database, exporting each result into <out>/<prefix>_PNG and
<out>/<prefix>_PSD.

Press Ctrl+C to stop after the current row. The summary tells which row to
resume from with --from.`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

var (
	runCSVPath string
	runDocPath string
	runOutDir  string
	runFrom    int
	runSingle  bool
	runFormats []string
	runSession string
)

func init() {
	runCmd.Flags().StringVar(&runCSVPath, "csv", "", "CSV file with content<N>/modifier<N> columns (required)")
	runCmd.Flags().StringVar(&runDocPath, "doc", "", "document database (default ~/.layerforge/data/documents.db)")
	runCmd.Flags().StringVar(&runOutDir, "out", "", "base output folder (required)")
	runCmd.Flags().IntVar(&runFrom, "from", 1, "first row to process, counting from 1")
	runCmd.Flags().BoolVar(&runSingle, "single", false, "process only one row")
	runCmd.Flags().StringSliceVar(&runFormats, "formats", nil, "export formats: png, psd (default from config)")
	runCmd.Flags().StringVar(&runSession, "session", "", "session ID used in relay events (default random)")
	_ = runCmd.MarkFlagRequired("csv")
	_ = runCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(runCmd)
}

func runBatch(cmd *cobra.Command, _ []string) error {
	if settingsService == nil || openRuntime == nil || sessionStore == nil {
		return fmt.Errorf("batch runtime %w", errNotConfigured)
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	if len(runFormats) > 0 {
		formats, unknown := domain.ParseFormats(runFormats)
		if len(unknown) > 0 {
			return fmt.Errorf("%w: unknown format(s) %s", domain.ErrInvalidInput, strings.Join(unknown, ", "))
		}
		settings.Export.Formats = formats
	}

	raw, err := os.ReadFile(runCSVPath)
	if err != nil {
		return fmt.Errorf("failed to read csv: %w", err)
	}

	out, err := filepath.Abs(runOutDir)
	if err != nil {
		return fmt.Errorf("invalid output folder: %w", err)
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	progress := newProgressPrinter(cmd.OutOrStdout())
	rt, err := openRuntime(ctx, RuntimeOptions{
		DocumentPath: runDocPath,
		Settings:     *settings,
		Progress:     progress.update,
	})
	if err != nil {
		return fmt.Errorf("failed to open document: %w", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			cmd.PrintErrf("warning: %v\n", err)
		}
	}()

	sessionID := runSession
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	state := domain.NewBatchState(sessionID)
	if err := sessionStore.Save(ctx, state); err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}
	defer func() { _ = sessionStore.Delete(context.Background(), sessionID) }()

	if err := rt.Controller.LoadRows(state, string(raw)); err != nil {
		return err
	}
	if runFrom < 1 || runFrom > len(state.Rows) {
		return fmt.Errorf("%w: --from must be between 1 and %d", domain.ErrInvalidInput, len(state.Rows))
	}
	state.ProcessedCount = runFrom - 1

	folder, err := rt.Host.Folder(ctx, out)
	if err != nil {
		return fmt.Errorf("failed to open output folder: %w", err)
	}
	state.OutputFolder = &folder

	release := stopOnSignal(cmd, rt.Controller, state)
	defer release()

	if runSingle {
		result, err := rt.Controller.Step(ctx, state)
		progress.done()
		if result != nil {
			printRowResult(cmd.OutOrStdout(), result)
		}
		return err
	}

	summary, err := rt.Controller.Run(ctx, state)
	progress.done()
	if summary == nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), summary, rt.Events.Diagnostics())
	if summary.State == domain.RunStopped && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// stopOnSignal requests a cooperative stop on SIGINT or SIGTERM until the
// returned release function is called.
func stopOnSignal(cmd *cobra.Command, ctrl driving.BatchController, state *domain.BatchState) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			ctrl.Stop(state)
			cmd.PrintErrln("\nStopping after the current row...")
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// progressPrinter rewrites one status line on a terminal and prints one
// line per update otherwise.
type progressPrinter struct {
	w    io.Writer
	tty  bool
	last string
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, tty: isTerminal(w)}
}

func (p *progressPrinter) update(status driving.BatchStatus) {
	if status.Message == p.last {
		return
	}
	p.last = status.Message
	if p.tty {
		fmt.Fprintf(p.w, "\r\033[K%s", status.Message)
		return
	}
	fmt.Fprintln(p.w, mutedStyle.Render(status.Message))
}

func (p *progressPrinter) done() {
	if p.tty && p.last != "" {
		fmt.Fprintln(p.w)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printSummary(w io.Writer, s *domain.RunSummary, diag domain.RelayDiagnostics) {
	title := successStyle
	switch s.State {
	case domain.RunStopped:
		title = warningStyle
	case domain.RunFailed:
		title = errorStyle
	}

	fmt.Fprintln(w, titleStyle.Render("Batch summary"))
	fmt.Fprintf(w, "%s%s\n", labelStyle.Render("State"), title.Render(string(s.State)))
	fmt.Fprintf(w, "%s%d of %d\n", labelStyle.Render("Cursor"), s.EndRow, s.Total)
	fmt.Fprintf(w, "%s%d\n", labelStyle.Render("Processed"), s.Processed)
	fmt.Fprintf(w, "%s%d\n", labelStyle.Render("Files saved"), s.FilesSaved)
	errs := fmt.Sprintf("%d", s.Errors)
	if s.Errors > 0 {
		errs = errorStyle.Render(errs)
	}
	fmt.Fprintf(w, "%s%s\n", labelStyle.Render("Errors"), errs)
	fmt.Fprintf(w, "%s%s\n", labelStyle.Render("Elapsed"), s.Elapsed.Round(time.Millisecond))
	if diag.Failed > 0 || diag.Dropped > 0 {
		fmt.Fprintf(w, "%s%s\n", labelStyle.Render("Relay"),
			warningStyle.Render(fmt.Sprintf("%d failed, %d dropped: %s", diag.Failed, diag.Dropped, diag.LastError)))
	}
	if s.State != domain.RunCompleted && s.EndRow < s.Total {
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("Resume with --from %d", s.EndRow+1)))
	}
}

func printRowResult(w io.Writer, r *domain.RowResult) {
	status := successStyle.Render("ok")
	if !r.Success {
		status = warningStyle.Render("incomplete")
	}
	fmt.Fprintf(w, "Row %d (line %d): %s, %d fields, %d files\n", r.Row+1, r.Line, status, r.FieldsMutated, len(r.Exported))
	for _, f := range r.Exported {
		fmt.Fprintf(w, "  %s %s %s\n", f.Format, f.Path, mutedStyle.Render("via "+f.Strategy))
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s %s: %s\n", errorStyle.Render(string(e.Kind)), e.Target, e.Message)
	}
}
