package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/layerforge/internal/core/domain"
)

// Folder resolves an existing folder by path.
func (h *Host) Folder(_ context.Context, path string) (domain.FolderRef, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return domain.FolderRef{}, fmt.Errorf("folder %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return domain.FolderRef{}, fmt.Errorf("folder %s: %w", path, notFound(err))
	}
	if !info.IsDir() {
		return domain.FolderRef{}, fmt.Errorf("%w: %s is not a folder", domain.ErrInvalidInput, path)
	}
	return domain.FolderRef{Path: abs, Name: filepath.Base(abs)}, nil
}

// Entry looks up a child of parent.
func (h *Host) Entry(_ context.Context, parent domain.FolderRef, name string) (*domain.Entry, error) {
	p, err := child(parent, name)
	if err != nil {
		return nil, err
	}
	info, err := os.Lstat(p)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", name, notFound(err))
	}
	return &domain.Entry{Name: name, Path: p, IsFolder: info.IsDir(), Size: info.Size()}, nil
}

// CreateFolder creates a child folder. An existing folder is returned as is.
func (h *Host) CreateFolder(_ context.Context, parent domain.FolderRef, name string) (domain.FolderRef, error) {
	p, err := child(parent, name)
	if err != nil {
		return domain.FolderRef{}, err
	}
	if err := os.Mkdir(p, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return domain.FolderRef{}, fmt.Errorf("create folder %s: %w", name, notFound(err))
	}
	return domain.FolderRef{Path: p, Name: name}, nil
}

// CreateFile creates or truncates a file in parent.
func (h *Host) CreateFile(_ context.Context, parent domain.FolderRef, name string) (domain.FileRef, error) {
	p, err := child(parent, name)
	if err != nil {
		return domain.FileRef{}, err
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return domain.FileRef{}, fmt.Errorf("create file %s: %w", name, notFound(err))
	}
	if err := f.Close(); err != nil {
		return domain.FileRef{}, fmt.Errorf("create file %s: %w", name, err)
	}
	return domain.FileRef{Path: p, Name: name}, nil
}

// WriteFile replaces the content of a file.
func (h *Host) WriteFile(_ context.Context, file domain.FileRef, data []byte) error {
	if err := os.WriteFile(file.Path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", file.Name, notFound(err))
	}
	return nil
}

// Remove deletes a file and revokes its grants.
func (h *Host) Remove(_ context.Context, file domain.FileRef) error {
	if err := os.Remove(file.Path); err != nil {
		return fmt.Errorf("remove %s: %w", file.Name, notFound(err))
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for token, path := range h.grants {
		if path == file.Path {
			delete(h.grants, token)
		}
	}
	return nil
}

// Stat returns the file size.
func (h *Host) Stat(_ context.Context, file domain.FileRef) (int64, error) {
	info, err := os.Stat(file.Path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", file.Name, notFound(err))
	}
	return info.Size(), nil
}

// Copy copies the bytes of src into dst.
func (h *Host) Copy(_ context.Context, src, dst domain.FileRef) error {
	in, err := os.Open(src.Path)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src.Name, notFound(err))
	}
	defer in.Close()

	out, err := os.OpenFile(dst.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("copy to %s: %w", dst.Name, notFound(err))
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dst.Name, err)
	}
	return out.Close()
}

// TempFolder returns the scratch folder, creating it when needed.
func (h *Host) TempFolder(_ context.Context) (domain.FolderRef, error) {
	if err := os.MkdirAll(h.tempDir, 0o755); err != nil {
		return domain.FolderRef{}, fmt.Errorf("temp folder: %w", err)
	}
	return domain.FolderRef{Path: h.tempDir, Name: filepath.Base(h.tempDir)}, nil
}

// SessionToken grants the command layer access to file.
func (h *Host) SessionToken(_ context.Context, file domain.FileRef) (string, error) {
	if file.Path == "" {
		return "", fmt.Errorf("%w: file has no path", domain.ErrInvalidInput)
	}
	token := uuid.NewString()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.grants[token] = file.Path
	return token, nil
}

// resolveGrant maps a grant token back to its file path.
func (h *Host) resolveGrant(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing %q grant token", domain.ErrInvalidInput, domain.ArgIn)
	}
	if strings.ContainsAny(token, `/\`) {
		return "", ErrRawPath
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	path, ok := h.grants[token]
	if !ok {
		return "", fmt.Errorf("grant %s: %w", token, domain.ErrNotFound)
	}
	return path, nil
}

// child joins name onto parent, rejecting names that escape it.
func child(parent domain.FolderRef, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: invalid entry name %q", domain.ErrInvalidInput, name)
	}
	return filepath.Join(parent.Path, name), nil
}

// notFound maps missing-file errors onto domain.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	}
	return err
}
