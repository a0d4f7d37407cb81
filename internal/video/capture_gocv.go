//go:build gocv

package video

import (
	"context"
	"fmt"
	"io"

	"gocv.io/x/gocv"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
)

// CaptureDecoder decodes video files with OpenCV's VideoCapture
type CaptureDecoder struct {
	logger *logger.Logger
}

// NewCaptureDecoder creates an OpenCV backed decoder
func NewCaptureDecoder(log *logger.Logger) (*CaptureDecoder, error) {
	return &CaptureDecoder{logger: log}, nil
}

func (d *CaptureDecoder) Name() string {
	return "gocv"
}

// Open opens path with VideoCapture
func (d *CaptureDecoder) Open(ctx context.Context, path string) (FrameSource, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video: %w", err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("failed to open video: %s", path)
	}

	info := Info{
		Width:      int(capture.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(capture.Get(gocv.VideoCaptureFrameHeight)),
		FPS:        capture.Get(gocv.VideoCaptureFPS),
		FrameCount: int(capture.Get(gocv.VideoCaptureFrameCount)),
	}
	if info.FPS > 0 && info.FrameCount > 0 {
		info.DurationSeconds = float64(info.FrameCount) / info.FPS
	}

	d.logger.Debug("Capture opened", "path", path, "frames", info.FrameCount, "fps", info.FPS)

	return &captureSource{capture: capture, mat: gocv.NewMat(), info: info}, nil
}

type captureSource struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
	info    Info
	index   int
}

func (s *captureSource) Info() Info {
	return s.info
}

func (s *captureSource) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, io.EOF
	}
	s.index++

	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame %d: %w", s.index, err)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, s.mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame %d: %w", s.index, err)
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	return NewFrame(s.index, data, img), nil
}

func (s *captureSource) Close() error {
	s.mat.Close()
	return s.capture.Close()
}
