package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/layerforge/internal/core/domain"
)

var documentCmd = &cobra.Command{
	Use:     "doc",
	Aliases: []string{"document"},
	Short:   "Manage local documents",
	Long: `Create and inspect documents in a local document database.

A database can hold several documents; batches run against the one opened
most recently.`,
}

var documentInitCmd = &cobra.Command{
	Use:   "init <database>",
	Short: "Create a document with text layers",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentInit,
}

var documentLayersCmd = &cobra.Command{
	Use:   "layers <database>",
	Short: "List the layers of the active document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentLayers,
}

var documentListCmd = &cobra.Command{
	Use:   "list <database>",
	Short: "List documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentList,
}

var documentOpenCmd = &cobra.Command{
	Use:   "open <database> <document-id>",
	Short: "Make a document the active one",
	Args:  cobra.ExactArgs(2),
	RunE:  runDocumentOpen,
}

var (
	docName       string
	docTextLayers []string
	docWidth      int
	docHeight     int
	docFontSize   float64
)

func init() {
	documentInitCmd.Flags().StringVar(&docName, "name", "document.psd", "document name; its base names output files")
	documentInitCmd.Flags().StringSliceVar(&docTextLayers, "text-layers", []string{"content1"}, "text layer names")
	documentInitCmd.Flags().IntVar(&docWidth, "width", 800, "canvas width in pixels")
	documentInitCmd.Flags().IntVar(&docHeight, "height", 600, "canvas height in pixels")
	documentInitCmd.Flags().Float64Var(&docFontSize, "font-size", 24, "initial font size of text layers")

	documentCmd.AddCommand(documentInitCmd)
	documentCmd.AddCommand(documentLayersCmd)
	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentOpenCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentInit(cmd *cobra.Command, args []string) error {
	if openDocuments == nil {
		return fmt.Errorf("document store %w", errNotConfigured)
	}
	docs, closeDocs, err := openDocuments(args[0])
	if err != nil {
		return fmt.Errorf("failed to open document database: %w", err)
	}
	defer closeDocs()

	layers := []domain.Layer{{Name: "Background", Kind: domain.LayerPixel, Visible: true}}
	for _, name := range docTextLayers {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		layers = append(layers, domain.Layer{
			Name:     name,
			Kind:     domain.LayerText,
			Text:     name,
			FontSize: docFontSize,
			Visible:  true,
		})
	}

	doc, saved, err := docs.CreateDocument(cmd.Context(),
		domain.DocumentRef{Name: docName, Width: docWidth, Height: docHeight}, layers)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	cmd.Printf("Created %s (id %d, %dx%d) with %d layers\n", doc.Name, doc.ID, doc.Width, doc.Height, len(saved))
	return nil
}

func runDocumentLayers(cmd *cobra.Command, args []string) error {
	if openDocuments == nil {
		return fmt.Errorf("document store %w", errNotConfigured)
	}
	docs, closeDocs, err := openDocuments(args[0])
	if err != nil {
		return fmt.Errorf("failed to open document database: %w", err)
	}
	defer closeDocs()

	doc, err := docs.ActiveDocument(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get active document: %w", err)
	}
	layers, err := docs.GetLayers(cmd.Context(), doc.ID)
	if err != nil {
		return fmt.Errorf("failed to list layers: %w", err)
	}

	cmd.Println(titleStyle.Render(fmt.Sprintf("%s (id %d)", doc.Name, doc.ID)))
	for _, l := range layers {
		line := fmt.Sprintf("  %-4d %-13s %-16s", l.ID, l.Kind, l.Name)
		if l.IsText() {
			text := strings.ReplaceAll(l.Text, domain.LineBreak, " / ")
			line += fmt.Sprintf(" %5.1fpt  %q", l.FontSize, text)
		}
		if !l.Visible {
			line += mutedStyle.Render("  (hidden)")
		}
		cmd.Println(line)
	}
	return nil
}

func runDocumentList(cmd *cobra.Command, args []string) error {
	if openDocuments == nil {
		return fmt.Errorf("document store %w", errNotConfigured)
	}
	docs, closeDocs, err := openDocuments(args[0])
	if err != nil {
		return fmt.Errorf("failed to open document database: %w", err)
	}
	defer closeDocs()

	list, err := docs.ListDocuments(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if len(list) == 0 {
		cmd.Println("No documents. Create one with 'layerforge doc init'.")
		return nil
	}

	var activeID int64
	if active, err := docs.ActiveDocument(cmd.Context()); err == nil {
		activeID = active.ID
	}
	for _, d := range list {
		marker := " "
		if d.ID == activeID {
			marker = "*"
		}
		cmd.Printf("%s %-4d %s (%dx%d)\n", marker, d.ID, d.Name, d.Width, d.Height)
	}
	return nil
}

func runDocumentOpen(cmd *cobra.Command, args []string) error {
	if openDocuments == nil {
		return fmt.Errorf("document store %w", errNotConfigured)
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: document id %q", domain.ErrInvalidInput, args[1])
	}
	docs, closeDocs, err := openDocuments(args[0])
	if err != nil {
		return fmt.Errorf("failed to open document database: %w", err)
	}
	defer closeDocs()

	if err := docs.OpenDocument(cmd.Context(), id); err != nil {
		return fmt.Errorf("failed to open document: %w", err)
	}
	cmd.Printf("Document %d is now active\n", id)
	return nil
}
