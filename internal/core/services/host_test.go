package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/layerforge/internal/core/domain"
)

// --- In-memory host used by the mutation, export, folder and batch tests ---

type fakeHost struct {
	mu sync.Mutex

	doc    domain.DocumentRef
	layers []*domain.Layer

	// ignoreDirect makes SetFontSize a silent no-op.
	ignoreDirect bool

	// staleReads makes Layer() report the size from before any write.
	staleReads map[int64]float64

	// failCmd returns an error for a command before it runs.
	failCmd func(cmd domain.Command) error

	// emptyOutput makes export/save commands succeed without writing.
	emptyOutput bool

	folders map[string]bool
	files   map[string][]byte
	tokens  map[string]string
	nextTok int

	failWrite bool
	failEntry error

	createdFiles []string

	commands []domain.Command
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		doc: domain.DocumentRef{ID: 1, Name: "card.psd", Width: 64, Height: 32},
		layers: []*domain.Layer{
			{ID: 10, Name: "content1", Kind: domain.LayerText, Text: "old", FontSize: 12, Visible: true},
			{ID: 11, Name: "Title 2", Kind: domain.LayerText, Text: "old", FontSize: 12, Visible: true},
			{ID: 12, Name: "Background", Kind: domain.LayerPixel, Visible: true},
			{ID: 13, Name: "logo3", Kind: domain.LayerSmart, Visible: true},
		},
		folders: map[string]bool{"/out": true, "/tmp": true},
		files:   make(map[string][]byte),
		tokens:  make(map[string]string),
	}
}

func (h *fakeHost) layer(id int64) *domain.Layer {
	for _, l := range h.layers {
		if l.ID == id {
			return l
		}
	}
	return nil
}

func (h *fakeHost) layerByName(name string) *domain.Layer {
	for _, l := range h.layers {
		if l.Name == name {
			return l
		}
	}
	return nil
}

func (h *fakeHost) commandNames() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, len(h.commands))
	for i, c := range h.commands {
		names[i] = c.Name
	}
	return names
}

func (h *fakeHost) filesIn(dir string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for p := range h.files {
		if filepath.Dir(p) == dir {
			out = append(out, filepath.Base(p))
		}
	}
	sort.Strings(out)
	return out
}

// DocumentAPI

func (h *fakeHost) ActiveDocument(_ context.Context) (*domain.DocumentRef, error) {
	doc := h.doc
	return &doc, nil
}

func (h *fakeHost) Layers(_ context.Context, _ domain.DocumentRef) ([]domain.Layer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.Layer, len(h.layers))
	for i, l := range h.layers {
		out[i] = *l
	}
	return out, nil
}

func (h *fakeHost) Layer(_ context.Context, _ domain.DocumentRef, id int64) (*domain.Layer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	l := h.layer(id)
	if l == nil {
		return nil, domain.ErrNotFound
	}
	out := *l
	if size, ok := h.staleReads[id]; ok {
		out.FontSize = size
	}
	return &out, nil
}

func (h *fakeHost) SetFontSize(_ context.Context, _ domain.DocumentRef, id int64, size float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	l := h.layer(id)
	if l == nil {
		return domain.ErrNotFound
	}
	if !h.ignoreDirect {
		l.FontSize = size
	}
	return nil
}

// CommandExecutor

func (h *fakeHost) Execute(_ context.Context, cmd domain.Command, _ domain.ExecOptions) (domain.CommandResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, cmd)
	if h.failCmd != nil {
		if err := h.failCmd(cmd); err != nil {
			return nil, err
		}
	}

	target := h.layer(cmd.Target.LayerID)
	if cmd.Target.Form == domain.RefByProperty {
		target = h.layerByName(cmd.Target.Name)
	}

	switch cmd.Name {
	case domain.CmdSelect:
		if target == nil {
			return nil, domain.ErrNotFound
		}
		return domain.CommandResult{}, nil
	case domain.CmdSetText:
		if target == nil {
			return nil, domain.ErrNotFound
		}
		target.Text, _ = cmd.Args[domain.ArgText].(string)
		return domain.CommandResult{}, nil
	case domain.CmdSetTextStyle:
		if target == nil {
			return nil, domain.ErrNotFound
		}
		target.FontSize, _ = cmd.Args[domain.ArgSize].(float64)
		return domain.CommandResult{}, nil
	case domain.CmdGet:
		if target == nil {
			return nil, domain.ErrNotFound
		}
		return domain.CommandResult{domain.PropFontSize: target.FontSize, domain.PropText: target.Text}, nil
	case domain.CmdExport, domain.CmdSave:
		token, _ := cmd.Args[domain.ArgIn].(string)
		path, ok := h.tokens[token]
		if !ok {
			return nil, fmt.Errorf("unknown grant token %q", token)
		}
		if !h.emptyOutput {
			h.files[path] = []byte(h.render())
		}
		return domain.CommandResult{}, nil
	default:
		return nil, fmt.Errorf("unsupported command %s", cmd.Name)
	}
}

func (h *fakeHost) render() string {
	var b strings.Builder
	for _, l := range h.layers {
		if l.IsText() {
			fmt.Fprintf(&b, "%s=%s@%.1f;", l.Name, l.Text, l.FontSize)
		}
	}
	return b.String()
}

// Storage

func (h *fakeHost) Folder(_ context.Context, path string) (domain.FolderRef, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.folders[path] {
		return domain.FolderRef{}, fmt.Errorf("folder %s: %w", path, domain.ErrNotFound)
	}
	return domain.FolderRef{Path: path, Name: filepath.Base(path)}, nil
}

func (h *fakeHost) Entry(_ context.Context, parent domain.FolderRef, name string) (*domain.Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failEntry != nil {
		return nil, h.failEntry
	}
	p := filepath.Join(parent.Path, name)
	if h.folders[p] {
		return &domain.Entry{Name: name, Path: p, IsFolder: true}, nil
	}
	if data, ok := h.files[p]; ok {
		return &domain.Entry{Name: name, Path: p, Size: int64(len(data))}, nil
	}
	return nil, domain.ErrNotFound
}

func (h *fakeHost) CreateFolder(_ context.Context, parent domain.FolderRef, name string) (domain.FolderRef, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := filepath.Join(parent.Path, name)
	h.folders[p] = true
	return domain.FolderRef{Path: p, Name: name}, nil
}

func (h *fakeHost) CreateFile(_ context.Context, parent domain.FolderRef, name string) (domain.FileRef, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.folders[parent.Path] {
		return domain.FileRef{}, domain.ErrNotFound
	}
	p := filepath.Join(parent.Path, name)
	h.files[p] = nil
	h.createdFiles = append(h.createdFiles, p)
	return domain.FileRef{Path: p, Name: name}, nil
}

func (h *fakeHost) WriteFile(_ context.Context, file domain.FileRef, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failWrite {
		return fmt.Errorf("read-only volume")
	}
	h.files[file.Path] = append([]byte(nil), data...)
	return nil
}

func (h *fakeHost) Remove(_ context.Context, file domain.FileRef) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.files, file.Path)
	return nil
}

func (h *fakeHost) Stat(_ context.Context, file domain.FileRef) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	data, ok := h.files[file.Path]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return int64(len(data)), nil
}

func (h *fakeHost) Copy(_ context.Context, src, dst domain.FileRef) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	data, ok := h.files[src.Path]
	if !ok {
		return domain.ErrNotFound
	}
	h.files[dst.Path] = append([]byte(nil), data...)
	return nil
}

func (h *fakeHost) TempFolder(_ context.Context) (domain.FolderRef, error) {
	return domain.FolderRef{Path: "/tmp", Name: "tmp"}, nil
}

func (h *fakeHost) SessionToken(_ context.Context, file domain.FileRef) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextTok++
	token := fmt.Sprintf("tok-%d", h.nextTok)
	h.tokens[token] = file.Path
	return token, nil
}

// --- Event recorder ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.RelayEvent
}

func (p *recordingPublisher) Publish(event domain.RelayEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Diagnostics() domain.RelayDiagnostics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return domain.RelayDiagnostics{Emitted: int64(len(p.events))}
}

func (p *recordingPublisher) ofType(t string) []domain.RelayEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.RelayEvent
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func testMutationSettings() domain.MutationSettings {
	return domain.MutationSettings{Tolerance: 0.1, ContentAttempts: 2}
}

func noSleep(context.Context, time.Duration) error { return nil }
