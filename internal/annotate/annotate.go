// Package annotate draws detection boxes and labels onto video frames.
package annotate

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/ai"
)

// Green is the box and label color
var Green = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// textOffset is how far above the box's top edge the label baseline sits
const textOffset = 10

// Options configures drawing and encoding
type Options struct {
	Thickness   int
	FontSize    float64
	JPEGQuality int
	Color       color.RGBA
}

// Annotator draws boxes with a label. Safe for concurrent use.
type Annotator struct {
	opts Options
	font *opentype.Font
}

// New creates an annotator with the Go Regular face
func New(opts Options) (*Annotator, error) {
	if opts.Thickness <= 0 {
		opts.Thickness = 2
	}
	if opts.FontSize <= 0 {
		opts.FontSize = 32
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 95
	}
	if opts.Color == (color.RGBA{}) {
		opts.Color = Green
	}

	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	return &Annotator{opts: opts, font: f}, nil
}

// Annotate returns an RGBA copy of img with every box outlined and labelled
func (a *Annotator) Annotate(img image.Image, boxes []ai.Box, label string) (*image.RGBA, error) {
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)

	// opentype faces keep a glyph cache and are not goroutine safe
	face, err := opentype.NewFace(a.font, &opentype.FaceOptions{
		Size:    a.opts.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	defer face.Close()

	src := image.NewUniform(a.opts.Color)
	drawer := &font.Drawer{Dst: out, Src: src, Face: face}

	for _, box := range boxes {
		r := image.Rect(int(box.X1), int(box.Y1), int(box.X2), int(box.Y2)).Add(b.Min)
		a.rectangle(out, r, src)

		if label != "" {
			drawer.Dot = fixed.P(r.Min.X, r.Min.Y-textOffset)
			drawer.DrawString(label)
		}
	}

	return out, nil
}

// rectangle strokes r with the configured thickness, centered on its edges
func (a *Annotator) rectangle(dst draw.Image, r image.Rectangle, src image.Image) {
	lo := a.opts.Thickness / 2
	hi := a.opts.Thickness - lo

	edges := []image.Rectangle{
		image.Rect(r.Min.X-lo, r.Min.Y-lo, r.Max.X+hi, r.Min.Y+hi), // top
		image.Rect(r.Min.X-lo, r.Max.Y-lo, r.Max.X+hi, r.Max.Y+hi), // bottom
		image.Rect(r.Min.X-lo, r.Min.Y-lo, r.Min.X+hi, r.Max.Y+hi), // left
		image.Rect(r.Max.X-lo, r.Min.Y-lo, r.Max.X+hi, r.Max.Y+hi), // right
	}
	for _, e := range edges {
		draw.Draw(dst, e, src, image.Point{}, draw.Src)
	}
}

// Encode writes img as JPEG
func (a *Annotator) Encode(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: a.opts.JPEGQuality})
}

// WriteFile encodes img to path
func (a *Annotator) WriteFile(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	bw := bufio.NewWriter(f)
	if err := a.Encode(bw, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
