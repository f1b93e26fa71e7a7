package domain

import "strings"

// LayerKind classifies a host layer.
type LayerKind string

// Layer kinds. Only text layers can be batch targets.
const (
	LayerText   LayerKind = "text"
	LayerPixel  LayerKind = "pixel"
	LayerGroup  LayerKind = "group"
	LayerShape  LayerKind = "shape"
	LayerSmart  LayerKind = "smart_object"
	LayerOther  LayerKind = "other"
)

// Layer is a snapshot of a host layer handle.
type Layer struct {
	ID       int64
	Name     string
	Kind     LayerKind
	Text     string
	FontSize float64
	Visible  bool
}

// IsText reports whether the layer carries editable text.
func (l Layer) IsText() bool { return l.Kind == LayerText }

// DocumentRef identifies an open host document.
type DocumentRef struct {
	ID     int64
	Name   string
	Width  int
	Height int
}

// BaseName returns the document name without its extension.
func (d DocumentRef) BaseName() string {
	if i := strings.LastIndexByte(d.Name, '.'); i > 0 {
		return d.Name[:i]
	}
	return d.Name
}

// TargetRef addresses the layer a target field maps to.
type TargetRef struct {
	// Document is the document the layer lives in.
	Document DocumentRef

	// Index is the number embedded in the layer name.
	Index int
}

// ExportFormat is an output container format.
type ExportFormat string

// Supported export formats.
const (
	FormatPNG ExportFormat = "png"
	FormatPSD ExportFormat = "psd"
)

// Extension returns the file extension including the dot.
func (f ExportFormat) Extension() string { return "." + string(f) }

// FolderSuffix returns the suffix used for the format's output folder.
func (f ExportFormat) FolderSuffix() string { return strings.ToUpper(string(f)) }

// IsValid returns true if the format is recognised.
func (f ExportFormat) IsValid() bool {
	return f == FormatPNG || f == FormatPSD
}

// ParseFormats converts names like "png,psd" into formats.
// Unknown names are returned as the second value.
func ParseFormats(names []string) ([]ExportFormat, []string) {
	var formats []ExportFormat
	var unknown []string
	seen := make(map[ExportFormat]bool)
	for _, n := range names {
		f := ExportFormat(strings.ToLower(strings.TrimSpace(n)))
		if f == "" {
			continue
		}
		if !f.IsValid() {
			unknown = append(unknown, n)
			continue
		}
		if !seen[f] {
			seen[f] = true
			formats = append(formats, f)
		}
	}
	return formats, unknown
}

// RefForm is how a command addresses its target.
type RefForm string

// Reference forms understood by command executors.
const (
	RefByID       RefForm = "id"
	RefByName     RefForm = "name"
	RefByProperty RefForm = "property"
	RefDocument   RefForm = "document"
)

// Reference is the target of a declarative command.
type Reference struct {
	Form       RefForm
	DocumentID int64
	LayerID    int64
	Name       string
	Property   string
}

// Command is a declarative host command descriptor.
type Command struct {
	// Name is the command verb, e.g. "setText" or "export".
	Name string

	// Target addresses what the command acts on.
	Target Reference

	// Args carries command-specific arguments.
	Args map[string]any
}

// ExecOptions controls how a command runs.
type ExecOptions struct {
	// Synchronous asks the host to finish before returning.
	Synchronous bool

	// Interactive allows the host to show dialogs.
	Interactive bool
}

// CommandResult is the structured result of a command.
type CommandResult map[string]any

// Float reads a numeric result field.
func (r CommandResult) Float(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// String reads a string result field.
func (r CommandResult) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Command names shared by the adapters and host implementations.
const (
	CmdSelect       = "select"
	CmdSetText      = "setText"
	CmdSetTextStyle = "setTextStyle"
	CmdGet          = "get"
	CmdExport       = "export"
	CmdSave         = "save"
)

// Command argument keys.
const (
	ArgText     = "text"
	ArgSize     = "size"
	ArgAs       = "as"
	ArgIn       = "in"
	ArgCopy     = "copy"
	ArgProperty = "property"
)

// Property names readable through CmdGet.
const (
	PropFontSize = "fontSize"
	PropText     = "textKey"
)

// FolderRef is a storage folder handle.
type FolderRef struct {
	Path string
	Name string
}

// FileRef is a storage file handle.
type FileRef struct {
	Path string
	Name string
}

// Entry is a storage directory entry.
type Entry struct {
	Name     string
	Path     string
	IsFolder bool
	Size     int64
}

// Folder converts a folder entry into a folder handle.
func (e Entry) Folder() FolderRef { return FolderRef{Path: e.Path, Name: e.Name} }

// File converts a file entry into a file handle.
func (e Entry) File() FileRef { return FileRef{Path: e.Path, Name: e.Name} }
