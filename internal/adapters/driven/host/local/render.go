package local

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"strings"

	"github.com/custodia-labs/layerforge/internal/core/domain"
)

// Glyph cells are approximated as blocks: width is this share of the font size.
const glyphAspect = 0.6

// Encode renders the document and serialises it in the given format.
func Encode(format domain.ExportFormat, doc domain.DocumentRef, layers []domain.Layer) ([]byte, error) {
	img := Render(doc, layers)
	var buf bytes.Buffer
	var err error
	switch format {
	case domain.FormatPNG:
		err = png.Encode(&buf, img)
	case domain.FormatPSD:
		err = EncodePSD(&buf, img)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", domain.ErrInvalidInput, format)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// Render flattens visible layers bottom to top onto a white canvas.
// Text is drawn as one block per glyph so that content and size changes
// show up in the output.
func Render(doc domain.DocumentRef, layers []domain.Layer) *image.RGBA {
	bounds := image.Rect(0, 0, doc.Width, doc.Height)
	img := image.NewRGBA(bounds)
	draw.Draw(img, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)

	cursor := 0
	for _, layer := range layers {
		if !layer.Visible {
			continue
		}
		fill := image.NewUniform(layerColor(layer.ID))
		switch layer.Kind {
		case domain.LayerPixel:
			draw.Draw(img, bounds, image.NewUniform(color.RGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}), image.Point{}, draw.Src)
		case domain.LayerShape, domain.LayerSmart:
			frame := bounds.Inset(bounds.Dx() / 8)
			drawFrame(img, frame, fill)
		case domain.LayerText:
			cursor = drawText(img, layer, fill, cursor)
		}
	}
	return img
}

// drawText lays out lines of glyph blocks starting at row y and returns the
// row below the last line.
func drawText(img *image.RGBA, layer domain.Layer, fill image.Image, y int) int {
	size := int(layer.FontSize + 0.5)
	if size < 1 {
		size = 1
	}
	glyph := int(float64(size)*glyphAspect + 0.5)
	if glyph < 1 {
		glyph = 1
	}
	lines := strings.FieldsFunc(layer.Text, func(r rune) bool { return r == '\r' || r == '\n' })
	for _, line := range lines {
		x := 0
		for _, r := range line {
			if r != ' ' {
				cell := image.Rect(x, y+size/5, x+glyph-1, y+size)
				draw.Draw(img, cell.Intersect(img.Bounds()), fill, image.Point{}, draw.Over)
			}
			x += glyph
		}
		y += size + size/4
	}
	return y
}

func drawFrame(img *image.RGBA, r image.Rectangle, fill image.Image) {
	edges := []image.Rectangle{
		{Min: r.Min, Max: image.Pt(r.Max.X, r.Min.Y+1)},
		{Min: image.Pt(r.Min.X, r.Max.Y-1), Max: r.Max},
		{Min: r.Min, Max: image.Pt(r.Min.X+1, r.Max.Y)},
		{Min: image.Pt(r.Max.X-1, r.Min.Y), Max: r.Max},
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(img.Bounds()), fill, image.Point{}, draw.Src)
	}
}

// layerColor picks a stable dark colour per layer.
func layerColor(id int64) color.RGBA {
	h := uint32(id) * 2654435761
	return color.RGBA{R: uint8(h>>24) / 2, G: uint8(h>>16) / 2, B: uint8(h>>8) / 2, A: 0xff}
}

// psdHeader is the fixed part of a version 1 Photoshop file.
type psdHeader struct {
	Signature [4]byte
	Version   uint16
	Reserved  [6]byte
	Channels  uint16
	Height    uint32
	Width     uint32
	Depth     uint16
	ColorMode uint16
}

const (
	psdColorModeRGB = 3
	psdRawData      = 0
)

// EncodePSD writes img as a flattened 8-bit RGB PSD without layer records.
func EncodePSD(w io.Writer, img *image.RGBA) error {
	b := img.Bounds()
	header := psdHeader{
		Signature: [4]byte{'8', 'B', 'P', 'S'},
		Version:   1,
		Channels:  3,
		Height:    uint32(b.Dy()),
		Width:     uint32(b.Dx()),
		Depth:     8,
		ColorMode: psdColorModeRGB,
	}
	if err := binary.Write(w, binary.BigEndian, header); err != nil {
		return err
	}

	// Color mode data, image resources, layer and mask info: all empty.
	sections := []uint32{0, 0, 0}
	if err := binary.Write(w, binary.BigEndian, sections); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint16(psdRawData)); err != nil {
		return err
	}

	// Planar image data: every R, then every G, then every B.
	plane := make([]byte, b.Dx()*b.Dy())
	for channel := 0; channel < 3; channel++ {
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := img.Pix[img.PixOffset(b.Min.X, y):]
			for x := 0; x < b.Dx(); x++ {
				plane[i] = row[x*4+channel]
				i++
			}
		}
		if _, err := w.Write(plane); err != nil {
			return err
		}
	}
	return nil
}
