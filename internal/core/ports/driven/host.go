package driven

import (
	"context"

	"github.com/custodia-labs/layerforge/internal/core/domain"
)

// DocumentAPI queries and mutates the host document object model.
type DocumentAPI interface {
	// ActiveDocument returns the document currently open in the host.
	// Returns domain.ErrNoDocument when nothing is open.
	ActiveDocument(ctx context.Context) (*domain.DocumentRef, error)

	// Layers lists the layers of a document in stacking order.
	Layers(ctx context.Context, doc domain.DocumentRef) ([]domain.Layer, error)

	// Layer reads one layer by ID. Returns domain.ErrNotFound if missing.
	Layer(ctx context.Context, doc domain.DocumentRef, id int64) (*domain.Layer, error)

	// SetFontSize writes the font size directly on the layer handle.
	SetFontSize(ctx context.Context, doc domain.DocumentRef, id int64, size float64) error
}

// CommandExecutor runs declarative host commands.
// Hosts may silently ignore a command, so callers verify effects separately.
type CommandExecutor interface {
	Execute(ctx context.Context, cmd domain.Command, opts domain.ExecOptions) (domain.CommandResult, error)
}

// Storage is the host file system API.
//
// The command layer never accepts raw paths: a file must be turned into an
// access grant token with SessionToken before a command can write to it.
type Storage interface {
	// Folder resolves an existing folder by path.
	Folder(ctx context.Context, path string) (domain.FolderRef, error)

	// Entry looks up a child of parent. Returns domain.ErrNotFound if absent.
	Entry(ctx context.Context, parent domain.FolderRef, name string) (*domain.Entry, error)

	// CreateFolder creates a child folder of parent.
	CreateFolder(ctx context.Context, parent domain.FolderRef, name string) (domain.FolderRef, error)

	// CreateFile creates or truncates a file in parent.
	CreateFile(ctx context.Context, parent domain.FolderRef, name string) (domain.FileRef, error)

	// WriteFile replaces the content of a file.
	WriteFile(ctx context.Context, file domain.FileRef, data []byte) error

	// Remove deletes a file.
	Remove(ctx context.Context, file domain.FileRef) error

	// Stat returns the file size. Returns domain.ErrNotFound if absent.
	Stat(ctx context.Context, file domain.FileRef) (int64, error)

	// Copy copies the bytes of src into dst.
	Copy(ctx context.Context, src, dst domain.FileRef) error

	// TempFolder returns a scratch folder owned by the host.
	TempFolder(ctx context.Context) (domain.FolderRef, error)

	// SessionToken grants the command layer access to file.
	SessionToken(ctx context.Context, file domain.FileRef) (string, error)
}

// Host bundles the three host collaborators.
type Host interface {
	DocumentAPI
	CommandExecutor
	Storage
}
