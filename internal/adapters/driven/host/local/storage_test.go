package local

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/layerforge/internal/core/domain"
)

func TestHost_Folder(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()

	_, err := h.Folder(ctx, filepath.Join(h.out.Path, "missing"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	file := filepath.Join(h.out.Path, "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, err = h.Folder(ctx, file)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestHost_EntriesAndFolders(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()

	_, err := h.Entry(ctx, h.out, "Export_PNG")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	folder, err := h.CreateFolder(ctx, h.out, "Export_PNG")
	require.NoError(t, err)
	again, err := h.CreateFolder(ctx, h.out, "Export_PNG")
	require.NoError(t, err)
	assert.Equal(t, folder, again)

	entry, err := h.Entry(ctx, h.out, "Export_PNG")
	require.NoError(t, err)
	assert.True(t, entry.IsFolder)
	assert.Equal(t, folder, entry.Folder())

	_, err = h.Entry(ctx, h.out, "../escape")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestHost_FileLifecycle(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()

	file, err := h.CreateFile(ctx, h.out, "a.bin")
	require.NoError(t, err)
	size, err := h.Stat(ctx, file)
	require.NoError(t, err)
	assert.Zero(t, size)

	require.NoError(t, h.WriteFile(ctx, file, []byte("hello")))
	size, err = h.Stat(ctx, file)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	dst := domain.FileRef{Path: filepath.Join(h.out.Path, "b.bin"), Name: "b.bin"}
	require.NoError(t, h.Copy(ctx, file, dst))
	data, err := os.ReadFile(dst.Path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, h.Remove(ctx, file))
	_, err = h.Stat(ctx, file)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, h.Remove(ctx, file), domain.ErrNotFound)

	_, err = h.CreateFile(ctx, domain.FolderRef{Path: filepath.Join(h.out.Path, "nope"), Name: "nope"}, "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHost_TempFolder(t *testing.T) {
	h := newTestHost(t)

	folder, err := h.TempFolder(context.Background())

	require.NoError(t, err)
	info, err := os.Stat(folder.Path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "scratch", folder.Name)
}

func exportCommand(doc *domain.DocumentRef, as any, token string) domain.Command {
	return domain.Command{
		Name:   domain.CmdExport,
		Target: domain.Reference{Form: domain.RefDocument, DocumentID: doc.ID},
		Args:   map[string]any{domain.ArgAs: as, domain.ArgIn: token, domain.ArgCopy: true},
	}
}

func TestHost_Export_RequiresGrant(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	file, err := h.CreateFile(ctx, h.out, "card.png")
	require.NoError(t, err)

	_, err = h.Execute(ctx, exportCommand(h.doc, "png", file.Path), domain.ExecOptions{})
	assert.ErrorIs(t, err, ErrRawPath)

	_, err = h.Execute(ctx, exportCommand(h.doc, "png", "not-a-token"), domain.ExecOptions{})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.Execute(ctx, exportCommand(h.doc, "png", ""), domain.ExecOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	size, err := h.Stat(ctx, file)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestHost_Export_WritesPNG(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	file, err := h.CreateFile(ctx, h.out, "card.png")
	require.NoError(t, err)
	token, err := h.SessionToken(ctx, file)
	require.NoError(t, err)

	_, err = h.Execute(ctx, exportCommand(h.doc, "png", token), domain.ExecOptions{Synchronous: true})
	require.NoError(t, err)

	data, err := os.ReadFile(file.Path)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 120, img.Bounds().Dx())
	assert.Equal(t, 60, img.Bounds().Dy())
}

func TestHost_Save_DescriptorFormat(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	file, err := h.CreateFile(ctx, h.out, "card.psd")
	require.NoError(t, err)
	token, err := h.SessionToken(ctx, file)
	require.NoError(t, err)

	cmd := exportCommand(h.doc, map[string]any{"format": "psd", "maximizeCompatibility": true}, token)
	cmd.Name = domain.CmdSave
	_, err = h.Execute(ctx, cmd, domain.ExecOptions{})
	require.NoError(t, err)

	data, err := os.ReadFile(file.Path)
	require.NoError(t, err)
	assert.Equal(t, "8BPS", string(data[:4]))
}

func TestHost_Export_BadFormatAndTarget(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	file, err := h.CreateFile(ctx, h.out, "card.gif")
	require.NoError(t, err)
	token, err := h.SessionToken(ctx, file)
	require.NoError(t, err)

	_, err = h.Execute(ctx, exportCommand(h.doc, "gif", token), domain.ExecOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	cmd := exportCommand(h.doc, "png", token)
	cmd.Target = domain.Reference{Form: domain.RefByID, LayerID: h.layers[1].ID}
	_, err = h.Execute(ctx, cmd, domain.ExecOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestHost_RemoveRevokesGrant(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	file, err := h.CreateFile(ctx, h.out, "card.png")
	require.NoError(t, err)
	token, err := h.SessionToken(ctx, file)
	require.NoError(t, err)

	require.NoError(t, h.Remove(ctx, file))

	_, err = h.resolveGrant(token)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
