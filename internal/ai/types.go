package ai

// InferenceRequest represents a request to the inference service
type InferenceRequest struct {
	Image               string   `json:"image"`                          // Base64-encoded JPEG image
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"` // Optional override
	IoUThreshold        *float64 `json:"iou_threshold,omitempty"`        // NMS IoU threshold
	MaxDetections       int      `json:"max_detections,omitempty"`
}

// BoundingBox represents a detected object's bounding box
type BoundingBox struct {
	X1         float64 `json:"x1"`         // Left coordinate
	Y1         float64 `json:"y1"`         // Top coordinate
	X2         float64 `json:"x2"`         // Right coordinate
	Y2         float64 `json:"y2"`         // Bottom coordinate
	Confidence float64 `json:"confidence"` // Detection confidence (0.0 to 1.0)
	ClassID    int     `json:"class_id"`   // COCO class ID
	ClassName  string  `json:"class_name"` // Model's class name, informational only
}

// InferenceResponse represents the response from the inference service
type InferenceResponse struct {
	BoundingBoxes   []BoundingBox `json:"bounding_boxes"`
	InferenceTimeMs float64       `json:"inference_time_ms"`
	FrameShape      []int         `json:"frame_shape"`       // [height, width]
	ModelInputShape []int         `json:"model_input_shape"` // [height, width]
	DetectionCount  int           `json:"detection_count"`
}

// Boxes converts the response into detector boxes
func (r *InferenceResponse) Boxes() []Box {
	boxes := make([]Box, 0, len(r.BoundingBoxes))
	for _, bb := range r.BoundingBoxes {
		boxes = append(boxes, Box{
			X1:         bb.X1,
			Y1:         bb.Y1,
			X2:         bb.X2,
			Y2:         bb.Y2,
			Confidence: bb.Confidence,
			ClassID:    bb.ClassID,
		})
	}
	return boxes
}
