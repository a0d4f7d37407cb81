// Package pipeline runs uploaded videos through detection, annotation and packaging.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/ai"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/annotate"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/archive"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/service"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/video"
)

// Job is one uploaded video to scan for one class
type Job struct {
	ID         string
	Label      string
	ClassIndex int
	VideoPath  string
	Workspace  *Workspace
}

// Detection is one matching box in one frame
type Detection struct {
	Frame      int     `json:"frame"`
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
	Confidence float64 `json:"confidence"`
}

// Result summarizes a finished job
type Result struct {
	JobID         string
	ArchivePath   string
	FramesScanned int
	FramesMatched int
	Detections    []Detection
	Duration      time.Duration
}

// Config contains processor configuration
type Config struct {
	ProgressEvery int // frames between progress events, 0 disables them
}

// Processor turns a video into an archive of annotated frames. It runs
// each job sequentially on the caller's goroutine.
type Processor struct {
	*service.ServiceBase

	decoder   video.Decoder
	detector  ai.Detector
	annotator *annotate.Annotator
	cfg       Config
}

// NewProcessor creates a new processor
func NewProcessor(
	cfg Config,
	decoder video.Decoder,
	detector ai.Detector,
	annotator *annotate.Annotator,
	log *logger.Logger,
) *Processor {
	return &Processor{
		ServiceBase: service.NewServiceBase("pipeline", log),
		decoder:     decoder,
		detector:    detector,
		annotator:   annotator,
		cfg:         cfg,
	}
}

// Start marks the processor ready
func (p *Processor) Start(ctx context.Context) error {
	p.GetStatus().SetStatus(service.StatusRunning)
	p.LogInfo("Pipeline ready", "decoder", p.decoder.Name(), "detector", p.detector.Name())
	return nil
}

// Stop releases the detector if it holds resources
func (p *Processor) Stop(ctx context.Context) error {
	p.GetStatus().SetStatus(service.StatusStopping)
	if closer, ok := p.detector.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			p.LogError("Failed to close detector", err)
		}
	}
	p.GetStatus().SetStatus(service.StatusStopped)
	return nil
}

// Detector returns the detector in use
func (p *Processor) Detector() ai.Detector {
	return p.detector
}

// Process decodes the job's video, annotates every frame containing the
// requested class, removes the video and zips the annotated frames.
func (p *Processor) Process(ctx context.Context, job Job) (*Result, error) {
	start := time.Now()

	p.PublishEvent(service.EventTypeJobStarted, map[string]interface{}{
		"job_id":      job.ID,
		"class_name":  job.Label,
		"class_index": job.ClassIndex,
	})

	result, err := p.run(ctx, job)
	if err != nil {
		p.LogWarn("Job failed", "job_id", job.ID, "error", err)
		p.PublishEvent(service.EventTypeJobFailed, map[string]interface{}{
			"job_id": job.ID,
			"error":  err.Error(),
		})
		return nil, err
	}

	result.Duration = time.Since(start)
	p.LogInfo("Job completed",
		"job_id", job.ID,
		"class_name", job.Label,
		"frames", result.FramesScanned,
		"matched_frames", result.FramesMatched,
		"detections", len(result.Detections),
		"duration_ms", result.Duration.Milliseconds(),
	)
	p.PublishEvent(service.EventTypeJobCompleted, map[string]interface{}{
		"job_id":         job.ID,
		"frames":         result.FramesScanned,
		"matched_frames": result.FramesMatched,
		"detections":     len(result.Detections),
		"duration_ms":    result.Duration.Milliseconds(),
	})

	return result, nil
}

func (p *Processor) run(ctx context.Context, job Job) (*Result, error) {
	ws := job.Workspace
	if ws == nil {
		return nil, errors.New("job has no workspace")
	}

	result, err := p.scan(ctx, job)
	if removeErr := os.Remove(job.VideoPath); removeErr != nil && !os.IsNotExist(removeErr) {
		p.LogWarn("Failed to remove uploaded video", "path", job.VideoPath, "error", removeErr)
	}
	if err != nil {
		return nil, err
	}

	if _, err := archive.ZipDirectory(ws.ImagesDir(), ws.ArchivePath()); err != nil {
		return nil, err
	}
	result.ArchivePath = ws.ArchivePath()

	return result, nil
}

// scan runs the frame loop and writes annotated images
func (p *Processor) scan(ctx context.Context, job Job) (*Result, error) {
	src, err := p.decoder.Open(ctx, job.VideoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open video: %w", err)
	}
	defer src.Close()

	total := src.Info().FrameCount
	result := &Result{JobID: job.ID}

	for {
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		result.FramesScanned++

		boxes, err := p.detector.Detect(ctx, frame)
		if err != nil {
			return nil, fmt.Errorf("detection failed on frame %d: %w", frame.Index, err)
		}

		matches := filterClass(boxes, job.ClassIndex)
		if len(matches) > 0 {
			if err := p.annotateFrame(job, frame, matches); err != nil {
				return nil, err
			}
			result.FramesMatched++
			for _, b := range matches {
				result.Detections = append(result.Detections, Detection{
					Frame:      frame.Index,
					X1:         int(b.X1),
					Y1:         int(b.Y1),
					X2:         int(b.X2),
					Y2:         int(b.Y2),
					Confidence: b.Confidence,
				})
			}
			p.PublishEvent(service.EventTypeDetection, map[string]interface{}{
				"job_id": job.ID,
				"frame":  frame.Index,
				"count":  len(matches),
			})
		}

		if p.cfg.ProgressEvery > 0 && result.FramesScanned%p.cfg.ProgressEvery == 0 {
			p.PublishEvent(service.EventTypeJobProgress, map[string]interface{}{
				"job_id":     job.ID,
				"frames":     result.FramesScanned,
				"total":      total,
				"detections": len(result.Detections),
			})
		}
	}

	return result, nil
}

func (p *Processor) annotateFrame(job Job, frame *video.Frame, boxes []ai.Box) error {
	img, err := frame.Image()
	if err != nil {
		return err
	}
	annotated, err := p.annotator.Annotate(img, boxes, job.Label)
	if err != nil {
		return fmt.Errorf("failed to annotate frame %d: %w", frame.Index, err)
	}
	return p.annotator.WriteFile(job.Workspace.FramePath(frame.Index), annotated)
}

func filterClass(boxes []ai.Box, classIndex int) []ai.Box {
	var out []ai.Box
	for _, b := range boxes {
		if b.ClassID == classIndex {
			out = append(out, b)
		}
	}
	return out
}
