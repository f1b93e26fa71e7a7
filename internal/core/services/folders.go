package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/layerforge/internal/core/domain"
	"github.com/custodia-labs/layerforge/internal/core/ports/driven"
	"github.com/custodia-labs/layerforge/internal/logger"
)

// ProbeFileName is the marker written and removed to check a folder is writable.
const ProbeFileName = ".layerforge-probe"

// LayoutNames returns the per-format output folder names, keyed by format.
func LayoutNames(prefix string, formats []domain.ExportFormat) map[domain.ExportFormat]string {
	names := make(map[domain.ExportFormat]string, len(formats))
	for _, f := range formats {
		names[f] = prefix + "_" + f.FolderSuffix()
	}
	return names
}

// FolderProvisioner makes sure the output folder layout exists.
type FolderProvisioner struct {
	storage driven.Storage
	probe   bool
}

// NewFolderProvisioner creates a provisioner. When probe is true each
// folder it creates gets a write-then-delete check.
func NewFolderProvisioner(storage driven.Storage, probe bool) *FolderProvisioner {
	return &FolderProvisioner{storage: storage, probe: probe}
}

// EnsureLayout ensures a child folder exists under base for each name.
//
// Existing folders are reused and missing ones created, so calling it again
// with the same arguments changes nothing. A non-folder entry with one of the
// names fails with domain.ErrLayoutConflict; any other storage failure
// wraps domain.ErrFolderSetup.
func (p *FolderProvisioner) EnsureLayout(
	ctx context.Context,
	base domain.FolderRef,
	names []string,
) (map[string]domain.FolderRef, error) {
	out := make(map[string]domain.FolderRef, len(names))
	for _, name := range names {
		if _, ok := out[name]; ok {
			continue
		}
		folder, created, err := p.ensure(ctx, base, name)
		if err != nil {
			return nil, err
		}
		out[name] = folder

		if created && p.probe {
			if err := p.probeFolder(ctx, folder); err != nil {
				logger.Warn("output folder %s may not be writable: %v", folder.Path, err)
			}
		}
	}
	return out, nil
}

// ensure returns the named child folder and whether it had to be created.
func (p *FolderProvisioner) ensure(ctx context.Context, base domain.FolderRef, name string) (domain.FolderRef, bool, error) {
	entry, err := p.storage.Entry(ctx, base, name)
	switch {
	case err == nil:
		if !entry.IsFolder {
			return domain.FolderRef{}, false, fmt.Errorf("%w: %s exists and is not a folder", domain.ErrLayoutConflict, entry.Path)
		}
		logger.Debug("reusing output folder %s", entry.Path)
		return entry.Folder(), false, nil
	case errors.Is(err, domain.ErrNotFound):
		folder, err := p.storage.CreateFolder(ctx, base, name)
		if err != nil {
			return domain.FolderRef{}, false, fmt.Errorf("%w: create %s: %w", domain.ErrFolderSetup, name, err)
		}
		logger.Info("created output folder %s", folder.Path)
		return folder, true, nil
	default:
		return domain.FolderRef{}, false, fmt.Errorf("%w: look up %s: %w", domain.ErrFolderSetup, name, err)
	}
}

func (p *FolderProvisioner) probeFolder(ctx context.Context, folder domain.FolderRef) error {
	file, err := p.storage.CreateFile(ctx, folder, ProbeFileName)
	if err != nil {
		return fmt.Errorf("create probe: %w", err)
	}
	if err := p.storage.WriteFile(ctx, file, []byte("ok")); err != nil {
		_ = p.storage.Remove(ctx, file)
		return fmt.Errorf("write probe: %w", err)
	}
	if err := p.storage.Remove(ctx, file); err != nil {
		return fmt.Errorf("remove probe: %w", err)
	}
	return nil
}
