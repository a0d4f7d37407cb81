//go:build gocv

package ai

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/video"
)

// classOffset separates boxes of different classes so a single NMS pass
// only suppresses overlaps within the same class
const classOffset = 8192

// DNNDetector runs a YOLOv8 ONNX export through OpenCV DNN
type DNNDetector struct {
	mu        sync.Mutex // gocv.Net is not safe for concurrent use
	net       gocv.Net
	inputSize int
	params    Params
	logger    *logger.Logger
}

// NewDNNDetector loads the model
func NewDNNDetector(cfg DNNConfig, log *logger.Logger) (*DNNDetector, error) {
	if cfg.InputSize <= 0 {
		cfg.InputSize = 640
	}
	if cfg.Params == (Params{}) {
		cfg.Params = DefaultParams()
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load model from %s", cfg.ModelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set DNN backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set DNN target: %w", err)
	}

	log.Info("DNN detector loaded", "model", cfg.ModelPath, "input_size", cfg.InputSize)

	return &DNNDetector{
		net:       net,
		inputSize: cfg.InputSize,
		params:    cfg.Params,
		logger:    log,
	}, nil
}

func (d *DNNDetector) Name() string {
	return BackendDNN
}

// HealthCheck reports whether the model is loaded
func (d *DNNDetector) HealthCheck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.net.Empty() {
		return fmt.Errorf("model not loaded")
	}
	return nil
}

// Detect runs the model on one frame
func (d *DNNDetector) Detect(ctx context.Context, frame *video.Frame) ([]Box, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %d: %w", frame.Index, err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("failed to decode frame %d: empty image", frame.Index)
	}

	// Letterbox into the top-left corner of a square canvas
	size := d.inputSize
	scale := min(float64(size)/float64(mat.Cols()), float64(size)/float64(mat.Rows()))
	contentW := int(float64(mat.Cols()) * scale)
	contentH := int(float64(mat.Rows()) * scale)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(mat, &resized, image.Pt(contentW, contentH), 0, 0, gocv.InterpolationLinear)

	letterboxed := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(114, 114, 114, 0), size, size, gocv.MatTypeCV8UC3)
	defer letterboxed.Close()
	roi := letterboxed.Region(image.Rect(0, 0, contentW, contentH))
	resized.CopyTo(&roi)
	roi.Close()

	blob := gocv.BlobFromImage(letterboxed, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	d.mu.Unlock()
	defer output.Close()

	return d.decode(output, scale, mat.Cols(), mat.Rows())
}

// decode turns a [1, 4+classes, anchors] output into boxes
func (d *DNNDetector) decode(output gocv.Mat, scale float64, width, height int) ([]Box, error) {
	dims := output.Size()
	if len(dims) != 3 || dims[1] <= 4 {
		return nil, fmt.Errorf("unexpected model output shape %v", dims)
	}
	channels, anchors := dims[1], dims[2]

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read model output: %w", err)
	}

	conf := float32(d.params.ConfidenceThreshold)
	var (
		rects  []image.Rectangle
		scores []float32
		boxes  []Box
	)

	for i := 0; i < anchors; i++ {
		bestClass, bestScore := -1, float32(0)
		for c := 4; c < channels; c++ {
			if s := data[c*anchors+i]; s > bestScore {
				bestClass, bestScore = c-4, s
			}
		}
		if bestScore < conf {
			continue
		}

		cx, cy := float64(data[i]), float64(data[anchors+i])
		w, h := float64(data[2*anchors+i]), float64(data[3*anchors+i])
		box := Box{
			X1:         clamp((cx-w/2)/scale, width),
			Y1:         clamp((cy-h/2)/scale, height),
			X2:         clamp((cx+w/2)/scale, width),
			Y2:         clamp((cy+h/2)/scale, height),
			Confidence: float64(bestScore),
			ClassID:    bestClass,
		}

		offset := bestClass * classOffset
		rects = append(rects, image.Rect(
			int(box.X1)+offset, int(box.Y1)+offset,
			int(box.X2)+offset, int(box.Y2)+offset,
		))
		scores = append(scores, bestScore)
		boxes = append(boxes, box)
	}

	if len(boxes) == 0 {
		return nil, nil
	}

	keep := gocv.NMSBoxes(rects, scores, conf, float32(d.params.IoUThreshold))
	result := make([]Box, 0, len(keep))
	for _, idx := range keep {
		if len(result) >= d.params.MaxDetections {
			break
		}
		result = append(result, boxes[idx])
	}

	return result, nil
}

// Close releases the model
func (d *DNNDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

func clamp(v float64, limit int) float64 {
	if v < 0 {
		return 0
	}
	if v > float64(limit) {
		return float64(limit)
	}
	return v
}
