package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/layerforge/internal/core/domain"
	"github.com/custodia-labs/layerforge/internal/core/ports/driven"
	"github.com/custodia-labs/layerforge/internal/fallback"
	"github.com/custodia-labs/layerforge/internal/logger"
)

// Export strategy names, in default order.
const (
	StrategyExportAs    = "export-as"
	StrategySaveAs      = "save-as"
	StrategySaveMinimal = "save-minimal"
	StrategyTempCopy    = "temp-copy"
)

// ExportJob describes one requested export.
type ExportJob struct {
	Document domain.DocumentRef
	Folder   domain.FolderRef
	FileName string
	Format   domain.ExportFormat
}

// ExportStrategy is one way of getting the document into a file.
type ExportStrategy struct {
	Name string
	Run  func(ctx context.Context, job ExportJob) (domain.FileRef, error)
}

// ErrEmptyOutput indicates the command layer reported success but the file
// is missing or empty.
var ErrEmptyOutput = errors.New("output file missing or empty")

// commandExport writes the document into a granted file entry using cmd.
func commandExport(
	ctx context.Context,
	storage driven.Storage,
	cmds driven.CommandExecutor,
	job ExportJob,
	folder domain.FolderRef,
	name string,
	build func(token string) domain.Command,
) (domain.FileRef, error) {
	file, err := storage.CreateFile(ctx, folder, name)
	if err != nil {
		return domain.FileRef{}, fmt.Errorf("create file: %w", err)
	}
	token, err := storage.SessionToken(ctx, file)
	if err != nil {
		discard(ctx, storage, file)
		return domain.FileRef{}, fmt.Errorf("access grant: %w", err)
	}
	cmd := build(token)
	if _, err := cmds.Execute(ctx, cmd, domain.ExecOptions{Synchronous: true}); err != nil {
		discard(ctx, storage, file)
		return domain.FileRef{}, fmt.Errorf("%s command: %w", cmd.Name, err)
	}
	if err := verifyOutput(ctx, storage, file); err != nil {
		discard(ctx, storage, file)
		return domain.FileRef{}, err
	}
	return file, nil
}

// discard removes an entry a failed attempt created. It runs even after
// cancellation so no empty output is left behind.
func discard(ctx context.Context, storage driven.Storage, file domain.FileRef) {
	if err := storage.Remove(context.WithoutCancel(ctx), file); err != nil && !errors.Is(err, domain.ErrNotFound) {
		logger.Debug("export: leaving %s: %v", file.Path, err)
	}
}

func verifyOutput(ctx context.Context, storage driven.Storage, file domain.FileRef) error {
	size, err := storage.Stat(ctx, file)
	if err != nil {
		return fmt.Errorf("verify %s: %w", file.Name, err)
	}
	if size <= 0 {
		return fmt.Errorf("verify %s: %w", file.Name, ErrEmptyOutput)
	}
	return nil
}

func documentRef(doc domain.DocumentRef) domain.Reference {
	return domain.Reference{Form: domain.RefDocument, DocumentID: doc.ID, Name: doc.Name}
}

// ExportAsStrategy issues an export command at a granted destination entry.
func ExportAsStrategy(storage driven.Storage, cmds driven.CommandExecutor) ExportStrategy {
	return ExportStrategy{
		Name: StrategyExportAs,
		Run: func(ctx context.Context, job ExportJob) (domain.FileRef, error) {
			return commandExport(ctx, storage, cmds, job, job.Folder, job.FileName, func(token string) domain.Command {
				return domain.Command{
					Name:   domain.CmdExport,
					Target: documentRef(job.Document),
					Args: map[string]any{
						domain.ArgAs:   string(job.Format),
						domain.ArgIn:   token,
						domain.ArgCopy: true,
					},
				}
			})
		},
	}
}

// SaveAsStrategy issues a save command with a full format descriptor.
func SaveAsStrategy(storage driven.Storage, cmds driven.CommandExecutor) ExportStrategy {
	return ExportStrategy{
		Name: StrategySaveAs,
		Run: func(ctx context.Context, job ExportJob) (domain.FileRef, error) {
			return commandExport(ctx, storage, cmds, job, job.Folder, job.FileName, func(token string) domain.Command {
				return domain.Command{
					Name:   domain.CmdSave,
					Target: documentRef(job.Document),
					Args: map[string]any{
						domain.ArgAs: map[string]any{
							"format":                string(job.Format),
							"maximizeCompatibility": true,
						},
						domain.ArgIn:   token,
						domain.ArgCopy: true,
					},
				}
			})
		},
	}
}

// SaveMinimalStrategy issues a save command with only the required options.
func SaveMinimalStrategy(storage driven.Storage, cmds driven.CommandExecutor) ExportStrategy {
	return ExportStrategy{
		Name: StrategySaveMinimal,
		Run: func(ctx context.Context, job ExportJob) (domain.FileRef, error) {
			return commandExport(ctx, storage, cmds, job, job.Folder, job.FileName, func(token string) domain.Command {
				return domain.Command{
					Name:   domain.CmdSave,
					Target: documentRef(job.Document),
					Args: map[string]any{
						domain.ArgAs: string(job.Format),
						domain.ArgIn: token,
					},
				}
			})
		},
	}
}

// TempCopyStrategy saves into a host temp file, then copies the bytes into
// the destination through storage, bypassing the command layer for the
// transfer.
func TempCopyStrategy(storage driven.Storage, cmds driven.CommandExecutor) ExportStrategy {
	return ExportStrategy{
		Name: StrategyTempCopy,
		Run: func(ctx context.Context, job ExportJob) (domain.FileRef, error) {
			tmpDir, err := storage.TempFolder(ctx)
			if err != nil {
				return domain.FileRef{}, fmt.Errorf("temp folder: %w", err)
			}
			tmpName := ".layerforge-" + uuid.NewString() + job.Format.Extension()
			tmp, err := commandExport(ctx, storage, cmds, job, tmpDir, tmpName, func(token string) domain.Command {
				return domain.Command{
					Name:   domain.CmdSave,
					Target: documentRef(job.Document),
					Args: map[string]any{
						domain.ArgAs:   string(job.Format),
						domain.ArgIn:   token,
						domain.ArgCopy: true,
					},
				}
			})
			if err != nil {
				return domain.FileRef{}, err
			}
			defer func() {
				if err := storage.Remove(ctx, tmp); err != nil {
					logger.Debug("export: leaving temp file %s: %v", tmp.Path, err)
				}
			}()

			dst, err := storage.CreateFile(ctx, job.Folder, job.FileName)
			if err != nil {
				return domain.FileRef{}, fmt.Errorf("create file: %w", err)
			}
			if err := storage.Copy(ctx, tmp, dst); err != nil {
				discard(ctx, storage, dst)
				return domain.FileRef{}, fmt.Errorf("copy: %w", err)
			}
			if err := verifyOutput(ctx, storage, dst); err != nil {
				discard(ctx, storage, dst)
				return domain.FileRef{}, err
			}
			return dst, nil
		},
	}
}

// ExporterOption configures a DocumentExporter.
type ExporterOption func(*DocumentExporter)

// WithExportStrategies replaces the export strategy order.
func WithExportStrategies(strategies ...ExportStrategy) ExporterOption {
	return func(e *DocumentExporter) { e.strategies = strategies }
}

// DocumentExporter serialises the document into output files.
type DocumentExporter struct {
	storage    driven.Storage
	strategies []ExportStrategy
}

// NewDocumentExporter creates an export adapter with the default
// export-as, save-as, save-minimal, temp-copy order.
func NewDocumentExporter(storage driven.Storage, cmds driven.CommandExecutor, opts ...ExporterOption) *DocumentExporter {
	e := &DocumentExporter{
		storage: storage,
		strategies: []ExportStrategy{
			ExportAsStrategy(storage, cmds),
			SaveAsStrategy(storage, cmds),
			SaveMinimalStrategy(storage, cmds),
			TempCopyStrategy(storage, cmds),
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Strategies returns the configured strategy names in order.
func (e *DocumentExporter) Strategies() []string {
	names := make([]string, 0, len(e.strategies))
	for _, s := range e.strategies {
		names = append(names, s.Name)
	}
	return names
}

// Export writes doc to destPath in the given format and returns the path
// of the written file. Strategies run in order; the first one whose output
// verifies as a non-empty file wins. When all fail the returned
// *domain.ExportError lists every attempt.
func (e *DocumentExporter) Export(
	ctx context.Context,
	doc domain.DocumentRef,
	destPath string,
	format domain.ExportFormat,
) (string, error) {
	file, err := e.ExportFile(ctx, doc, destPath, format)
	if err != nil {
		return "", err
	}
	return file.Path, nil
}

// ExportFile is Export returning the written file and the winning strategy.
func (e *DocumentExporter) ExportFile(
	ctx context.Context,
	doc domain.DocumentRef,
	destPath string,
	format domain.ExportFormat,
) (*domain.ExportedFile, error) {
	if !format.IsValid() {
		return nil, fmt.Errorf("%w: unknown export format %q", domain.ErrInvalidInput, format)
	}

	dir, name := filepath.Split(destPath)
	if name == "" {
		return nil, fmt.Errorf("%w: export path %q has no file name", domain.ErrInvalidInput, destPath)
	}
	if !strings.EqualFold(filepath.Ext(name), format.Extension()) {
		name += format.Extension()
	}

	folder, err := e.storage.Folder(ctx, filepath.Clean(dir))
	if err != nil {
		return nil, &domain.ExportError{Path: destPath, Format: format, Err: fmt.Errorf("resolve folder: %w", err)}
	}

	job := ExportJob{Document: doc, Folder: folder, FileName: name, Format: format}
	chain := make([]fallback.Strategy[domain.FileRef], 0, len(e.strategies))
	for _, s := range e.strategies {
		s := s
		chain = append(chain, fallback.Strategy[domain.FileRef]{
			Name: s.Name,
			Run:  func(ctx context.Context) (domain.FileRef, error) { return s.Run(ctx, job) },
		})
	}

	file, attempts, err := fallback.FirstSuccess(ctx, chain, fallback.OnAttempt(func(a fallback.Attempt) {
		if a.Succeeded() {
			logger.Info("export %s as %s via %s ok (%s)", name, format, a.Strategy, a.Elapsed)
			return
		}
		logger.Debug("export %s as %s via %s failed: %v", name, format, a.Strategy, a.Err)
	}))
	if err != nil {
		e.discardEmpty(ctx, folder, name)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &domain.ExportError{
			Path:       destPath,
			Format:     format,
			Strategies: fallback.Names(attempts),
			Err:        err,
		}
	}

	last := attempts[len(attempts)-1]
	return &domain.ExportedFile{Format: format, Path: file.Path, Strategy: last.Strategy}, nil
}

// discardEmpty removes an empty destination entry left by a custom strategy
// after every attempt failed.
func (e *DocumentExporter) discardEmpty(ctx context.Context, folder domain.FolderRef, name string) {
	ctx = context.WithoutCancel(ctx)
	entry, err := e.storage.Entry(ctx, folder, name)
	if err != nil || entry == nil || entry.IsFolder || entry.Size > 0 {
		return
	}
	discard(ctx, e.storage, domain.FileRef{Path: entry.Path, Name: entry.Name})
}
