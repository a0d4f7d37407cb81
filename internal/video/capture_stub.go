//go:build !gocv

package video

import (
	"context"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
)

// CaptureDecoder decodes video through OpenCV. This build has no OpenCV.
type CaptureDecoder struct{}

// NewCaptureDecoder always fails without the gocv build tag
func NewCaptureDecoder(log *logger.Logger) (*CaptureDecoder, error) {
	return nil, ErrGoCVUnavailable
}

func (d *CaptureDecoder) Name() string {
	return "gocv"
}

func (d *CaptureDecoder) Open(ctx context.Context, path string) (FrameSource, error) {
	return nil, ErrGoCVUnavailable
}
