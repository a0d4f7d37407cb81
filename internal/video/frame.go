package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
)

// Frame represents a single decoded video frame
type Frame struct {
	Index  int    // 1-based position in the video
	Data   []byte // JPEG-encoded frame data
	Width  int
	Height int

	img image.Image
}

// NewFrame wraps an already decoded image
func NewFrame(index int, data []byte, img image.Image) *Frame {
	f := &Frame{Index: index, Data: data, img: img}
	if img != nil {
		b := img.Bounds()
		f.Width, f.Height = b.Dx(), b.Dy()
	}
	return f
}

// Image returns the decoded frame, decoding Data on first use
func (f *Frame) Image() (image.Image, error) {
	if f.img != nil {
		return f.img, nil
	}
	img, err := jpeg.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %d: %w", f.Index, err)
	}
	b := img.Bounds()
	f.img, f.Width, f.Height = img, b.Dx(), b.Dy()
	return img, nil
}

// Info is metadata about a video, all fields best-effort
type Info struct {
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	FPS             float64 `json:"fps,omitempty"`
	FrameCount      int     `json:"frame_count,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Codec           string  `json:"codec,omitempty"`
}

// FrameSource yields frames sequentially. Next returns io.EOF after the last frame.
type FrameSource interface {
	Next(ctx context.Context) (*Frame, error)
	Info() Info
	Close() error
}

// Decoder opens frame sources for video files
type Decoder interface {
	Open(ctx context.Context, path string) (FrameSource, error)
	Name() string
}

// ErrGoCVUnavailable is returned by OpenCV backed components in builds without the gocv tag
var ErrGoCVUnavailable = errors.New("OpenCV support not compiled in (build with -tags gocv)")
