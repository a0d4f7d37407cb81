package ai

import (
	"context"
	"fmt"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/config"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/video"
)

// Detector backends
const (
	BackendRemote = "remote"
	BackendDNN    = "dnn"
)

// Box is one detected object in frame pixel coordinates
type Box struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"`
	ClassID    int     `json:"class_id"`
}

// Detector runs object detection on a single frame
type Detector interface {
	Detect(ctx context.Context, frame *video.Frame) ([]Box, error)
	HealthCheck(ctx context.Context) error
	Name() string
}

// Params are the model parameters shared by every backend
type Params struct {
	ConfidenceThreshold float64
	IoUThreshold        float64
	MaxDetections       int
}

// DefaultParams mirror the YOLO predictor defaults
func DefaultParams() Params {
	return Params{ConfidenceThreshold: 0.25, IoUThreshold: 0.45, MaxDetections: 1000}
}

func paramsFromConfig(cfg config.DetectorConfig) Params {
	p := DefaultParams()
	if cfg.ConfidenceThreshold > 0 {
		p.ConfidenceThreshold = cfg.ConfidenceThreshold
	}
	if cfg.IoUThreshold > 0 {
		p.IoUThreshold = cfg.IoUThreshold
	}
	if cfg.MaxDetections > 0 {
		p.MaxDetections = cfg.MaxDetections
	}
	return p
}

// New builds the configured detector backend
func New(cfg config.DetectorConfig, log *logger.Logger) (Detector, error) {
	params := paramsFromConfig(cfg)

	switch cfg.Backend {
	case "", BackendRemote:
		return NewClient(ClientConfig{
			ServiceURL: cfg.ServiceURL,
			Timeout:    cfg.Timeout,
			Params:     params,
			Retries:    cfg.Retries,
			RetryDelay: cfg.RetryDelay,
		}, log), nil
	case BackendDNN:
		d, err := NewDNNDetector(DNNConfig{
			ModelPath: cfg.ModelPath,
			InputSize: cfg.InputSize,
			Params:    params,
		}, log)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown detector backend %q", cfg.Backend)
	}
}

// DNNConfig contains configuration for the local OpenCV DNN backend
type DNNConfig struct {
	ModelPath string
	InputSize int
	Params    Params
}
