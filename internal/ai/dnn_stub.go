//go:build !gocv

package ai

import (
	"context"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/video"
)

// DNNDetector is unavailable without the gocv build tag
type DNNDetector struct{}

// NewDNNDetector always fails in builds without OpenCV
func NewDNNDetector(cfg DNNConfig, log *logger.Logger) (*DNNDetector, error) {
	return nil, video.ErrGoCVUnavailable
}

func (d *DNNDetector) Detect(ctx context.Context, frame *video.Frame) ([]Box, error) {
	return nil, video.ErrGoCVUnavailable
}

func (d *DNNDetector) HealthCheck(ctx context.Context) error {
	return video.ErrGoCVUnavailable
}

func (d *DNNDetector) Name() string {
	return BackendDNN
}

func (d *DNNDetector) Close() error {
	return nil
}
