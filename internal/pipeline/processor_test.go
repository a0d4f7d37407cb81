package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/ai"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/annotate"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/service"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/video"
)

const classCar = 2

type fakeDecoder struct {
	frames  int
	openErr error
	opened  string
}

func (d *fakeDecoder) Name() string { return "fake" }

func (d *fakeDecoder) Open(ctx context.Context, path string) (video.FrameSource, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.opened = path

	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for i := range img.Pix {
		img.Pix[i] = 40
	}
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return nil, err
	}
	return &fakeSource{total: d.frames, data: buf.Bytes()}, nil
}

type fakeSource struct {
	total  int
	next   int
	data   []byte
	closed bool
}

func (s *fakeSource) Next(ctx context.Context) (*video.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= s.total {
		return nil, io.EOF
	}
	s.next++
	return &video.Frame{Index: s.next, Data: s.data}, nil
}

func (s *fakeSource) Info() video.Info { return video.Info{FrameCount: s.total} }

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

type fakeDetector struct {
	boxes map[int][]ai.Box
	errAt int
	calls int
}

func (d *fakeDetector) Name() string                          { return "fake" }
func (d *fakeDetector) HealthCheck(ctx context.Context) error { return nil }

func (d *fakeDetector) Detect(ctx context.Context, frame *video.Frame) ([]ai.Box, error) {
	d.calls++
	if d.errAt == frame.Index {
		return nil, errors.New("inference service returned status 500")
	}
	return d.boxes[frame.Index], nil
}

func setupTestProcessor(t *testing.T, dec video.Decoder, det ai.Detector) (*Processor, *service.EventBus) {
	annotator, err := annotate.New(annotate.Options{})
	require.NoError(t, err)

	p := NewProcessor(Config{ProgressEvery: 2}, dec, det, annotator, logger.NewNopLogger())
	bus := service.NewEventBus(100)
	p.SetEventBus(bus)
	t.Cleanup(bus.Close)
	return p, bus
}

func setupTestJob(t *testing.T) Job {
	ws, err := NewWorkspace(t.TempDir(), "test-job")
	require.NoError(t, err)

	videoPath := ws.VideoPath("clip.mov")
	require.NoError(t, os.WriteFile(videoPath, []byte("video"), 0o644))

	return Job{ID: "test-job", Label: "coche", ClassIndex: classCar, VideoPath: videoPath, Workspace: ws}
}

func archiveNames(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	names := []string{}
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func drain(ch <-chan service.Event) []service.Event {
	var events []service.Event
	for {
		select {
		case e := <-ch:
			events = append(events, e)
		default:
			return events
		}
	}
}

func TestProcess_ArchivesOnlyMatchingFrames(t *testing.T) {
	det := &fakeDetector{boxes: map[int][]ai.Box{
		2: {{X1: 5, Y1: 20, X2: 30, Y2: 40, Confidence: 0.9, ClassID: classCar}},
		3: {{X1: 5, Y1: 20, X2: 30, Y2: 40, Confidence: 0.8, ClassID: 0}},
		4: {
			{X1: 1, Y1: 15, X2: 10, Y2: 25, Confidence: 0.7, ClassID: classCar},
			{X1: 20, Y1: 15, X2: 40, Y2: 45, Confidence: 0.6, ClassID: classCar},
			{X1: 2, Y1: 2, X2: 3, Y2: 3, Confidence: 0.99, ClassID: 16},
		},
	}}
	dec := &fakeDecoder{frames: 5}
	p, _ := setupTestProcessor(t, dec, det)
	job := setupTestJob(t)

	result, err := p.Process(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, job.VideoPath, dec.opened)
	assert.Equal(t, 5, det.calls)
	assert.Equal(t, 5, result.FramesScanned)
	assert.Equal(t, 2, result.FramesMatched)
	require.Len(t, result.Detections, 3)
	assert.Equal(t, Detection{Frame: 2, X1: 5, Y1: 20, X2: 30, Y2: 40, Confidence: 0.9}, result.Detections[0])
	assert.Equal(t, 4, result.Detections[2].Frame)

	assert.Equal(t, job.Workspace.ArchivePath(), result.ArchivePath)
	assert.Equal(t, []string{"frame_2.jpg", "frame_4.jpg"}, archiveNames(t, result.ArchivePath))

	_, err = os.Stat(job.VideoPath)
	assert.True(t, os.IsNotExist(err), "uploaded video removed")
}

func TestProcess_NoMatchesYieldsEmptyArchive(t *testing.T) {
	det := &fakeDetector{boxes: map[int][]ai.Box{
		1: {{X1: 1, Y1: 1, X2: 5, Y2: 5, ClassID: 0}},
	}}
	p, _ := setupTestProcessor(t, &fakeDecoder{frames: 3}, det)

	result, err := p.Process(context.Background(), setupTestJob(t))
	require.NoError(t, err)
	assert.Zero(t, result.FramesMatched)
	assert.Empty(t, result.Detections)
	assert.Empty(t, archiveNames(t, result.ArchivePath))
}

func TestProcess_DetectorError(t *testing.T) {
	det := &fakeDetector{errAt: 3}
	p, bus := setupTestProcessor(t, &fakeDecoder{frames: 5}, det)
	failed := bus.Subscribe(service.EventTypeJobFailed)
	job := setupTestJob(t)

	_, err := p.Process(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detection failed on frame 3")
	assert.Equal(t, 3, det.calls)

	_, statErr := os.Stat(job.VideoPath)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(job.Workspace.ArchivePath())
	assert.True(t, os.IsNotExist(statErr), "no archive on failure")

	select {
	case e := <-failed:
		assert.Equal(t, "test-job", e.Data["job_id"])
		assert.Contains(t, e.Data["error"], "frame 3")
	case <-time.After(time.Second):
		t.Fatal("expected job.failed event")
	}
}

func TestProcess_OpenError(t *testing.T) {
	p, _ := setupTestProcessor(t, &fakeDecoder{openErr: errors.New("video file not accessible")}, &fakeDetector{})

	_, err := p.Process(context.Background(), setupTestJob(t))
	assert.ErrorContains(t, err, "failed to open video: video file not accessible")
}

func TestProcess_Cancelled(t *testing.T) {
	p, _ := setupTestProcessor(t, &fakeDecoder{frames: 5}, &fakeDetector{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Process(ctx, setupTestJob(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcess_MissingWorkspace(t *testing.T) {
	p, _ := setupTestProcessor(t, &fakeDecoder{frames: 1}, &fakeDetector{})

	_, err := p.Process(context.Background(), Job{ID: "x"})
	assert.ErrorContains(t, err, "no workspace")
}

func TestProcess_PublishesEvents(t *testing.T) {
	det := &fakeDetector{boxes: map[int][]ai.Box{
		1: {{X1: 5, Y1: 20, X2: 30, Y2: 40, ClassID: classCar}},
	}}
	p, bus := setupTestProcessor(t, &fakeDecoder{frames: 4}, det)
	events := bus.SubscribeAll()

	_, err := p.Process(context.Background(), setupTestJob(t))
	require.NoError(t, err)

	var types []service.EventType
	for _, e := range drain(events) {
		assert.Equal(t, "pipeline", e.Source)
		assert.Equal(t, "test-job", e.Data["job_id"])
		types = append(types, e.Type)
	}
	assert.Equal(t, []service.EventType{
		service.EventTypeJobStarted,
		service.EventTypeDetection,
		service.EventTypeJobProgress,
		service.EventTypeJobProgress,
		service.EventTypeJobCompleted,
	}, types)
}

func TestProcessor_Lifecycle(t *testing.T) {
	p, _ := setupTestProcessor(t, &fakeDecoder{}, &fakeDetector{})

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.GetStatus().IsRunning())
	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, service.StatusStopped, p.GetStatus().GetStatus())
	assert.Equal(t, "fake", p.Detector().Name())
}
