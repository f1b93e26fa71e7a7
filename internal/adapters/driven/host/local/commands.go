package local

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/custodia-labs/layerforge/internal/core/domain"
)

// ErrRawPath indicates a command was handed a file path instead of a grant token.
var ErrRawPath = errors.New("raw paths are not accepted, request a grant token")

// Execute runs a declarative command against the document model.
func (h *Host) Execute(ctx context.Context, cmd domain.Command, opts domain.ExecOptions) (domain.CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Interactive {
		return nil, fmt.Errorf("%s: interactive dialogs are not supported", cmd.Name)
	}
	if h.filter != nil {
		if err := h.filter(cmd); err != nil {
			return nil, err
		}
	}

	switch cmd.Name {
	case domain.CmdSelect:
		doc, layer, err := h.resolveLayer(ctx, cmd.Target)
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.selected = layer.ID
		h.mu.Unlock()
		return domain.CommandResult{"document": doc.ID, "layer": layer.ID}, nil

	case domain.CmdSetText:
		text, ok := cmd.Args[domain.ArgText].(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a %q string", domain.ErrInvalidInput, cmd.Name, domain.ArgText)
		}
		return h.updateText(ctx, cmd.Target, func(l *domain.Layer) { l.Text = text })

	case domain.CmdSetTextStyle:
		size, ok := domain.CommandResult(cmd.Args).Float(domain.ArgSize)
		if !ok || size <= 0 {
			return nil, fmt.Errorf("%w: %s needs a positive %q", domain.ErrInvalidInput, cmd.Name, domain.ArgSize)
		}
		return h.updateText(ctx, cmd.Target, func(l *domain.Layer) { l.FontSize = size })

	case domain.CmdGet:
		return h.get(ctx, cmd)

	case domain.CmdExport, domain.CmdSave:
		return h.writeDocument(ctx, cmd)

	default:
		return nil, fmt.Errorf("%w: unsupported command %q", domain.ErrInvalidInput, cmd.Name)
	}
}

// resolveLayer finds the layer a reference points at.
// Layer references without a document ID address the active document.
func (h *Host) resolveLayer(ctx context.Context, ref domain.Reference) (*domain.DocumentRef, *domain.Layer, error) {
	doc, err := h.referencedDocument(ctx, ref.DocumentID)
	if err != nil {
		return nil, nil, err
	}

	switch ref.Form {
	case domain.RefByID:
		layer, err := h.docs.GetLayer(ctx, doc.ID, ref.LayerID)
		if err != nil {
			return nil, nil, fmt.Errorf("layer %d: %w", ref.LayerID, err)
		}
		return doc, layer, nil

	case domain.RefByName, domain.RefByProperty:
		layers, err := h.docs.GetLayers(ctx, doc.ID)
		if err != nil {
			return nil, nil, err
		}
		for i := range layers {
			if layers[i].Name == ref.Name {
				return doc, &layers[i], nil
			}
		}
		return nil, nil, fmt.Errorf("layer %q: %w", ref.Name, domain.ErrNotFound)

	default:
		return nil, nil, fmt.Errorf("%w: %q does not address a layer", domain.ErrInvalidInput, ref.Form)
	}
}

func (h *Host) referencedDocument(ctx context.Context, id int64) (*domain.DocumentRef, error) {
	if id == 0 {
		return h.docs.ActiveDocument(ctx)
	}
	return h.docs.GetDocument(ctx, id)
}

func (h *Host) updateText(ctx context.Context, ref domain.Reference, apply func(*domain.Layer)) (domain.CommandResult, error) {
	doc, layer, err := h.resolveLayer(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !layer.IsText() {
		return nil, fmt.Errorf("%w: layer %q is not a text layer", domain.ErrInvalidTarget, layer.Name)
	}
	apply(layer)
	if err := h.docs.SaveLayer(ctx, doc.ID, *layer); err != nil {
		return nil, err
	}
	return domain.CommandResult{"layer": layer.ID}, nil
}

// get reads layer properties. The property comes from the reference or the
// "property" argument; without one every property is returned.
func (h *Host) get(ctx context.Context, cmd domain.Command) (domain.CommandResult, error) {
	_, layer, err := h.resolveLayer(ctx, cmd.Target)
	if err != nil {
		return nil, err
	}

	all := domain.CommandResult{
		"name":              layer.Name,
		"kind":              string(layer.Kind),
		"visible":           layer.Visible,
		domain.PropText:     layer.Text,
		domain.PropFontSize: layer.FontSize,
	}

	property := cmd.Target.Property
	if p, ok := cmd.Args[domain.ArgProperty].(string); ok && p != "" {
		property = p
	}
	if property == "" {
		return all, nil
	}
	v, ok := all[property]
	if !ok {
		return nil, fmt.Errorf("%w: unknown property %q", domain.ErrInvalidInput, property)
	}
	return domain.CommandResult{property: v}, nil
}

// writeDocument renders the document into the file behind a grant token.
func (h *Host) writeDocument(ctx context.Context, cmd domain.Command) (domain.CommandResult, error) {
	if cmd.Target.Form != domain.RefDocument {
		return nil, fmt.Errorf("%w: %s targets a document", domain.ErrInvalidInput, cmd.Name)
	}
	doc, err := h.referencedDocument(ctx, cmd.Target.DocumentID)
	if err != nil {
		return nil, err
	}

	token, _ := cmd.Args[domain.ArgIn].(string)
	path, err := h.resolveGrant(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Name, err)
	}

	format, err := formatArg(cmd.Args[domain.ArgAs])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Name, err)
	}

	layers, err := h.docs.GetLayers(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	data, err := Encode(format, *doc, layers)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Name, err)
	}
	return domain.CommandResult{"format": string(format), "bytes": len(data)}, nil
}

// formatArg accepts a bare format name or a save descriptor with a
// "format" key.
func formatArg(v any) (domain.ExportFormat, error) {
	var name string
	switch as := v.(type) {
	case string:
		name = as
	case domain.ExportFormat:
		name = string(as)
	case map[string]any:
		name, _ = as["format"].(string)
	}
	format := domain.ExportFormat(name)
	if !format.IsValid() {
		return "", fmt.Errorf("%w: unsupported format %v", domain.ErrInvalidInput, v)
	}
	return format, nil
}
