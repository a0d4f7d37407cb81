package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/ai"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/annotate"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/config"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/pipeline"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/service"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/state"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/storage"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/video"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/web"
)

// carClassID is "coche" in the label table
const carClassID = 2

// TestEnvironment wires the real services together the way main does,
// with an in-process inference service and a synthetic video decoder
type TestEnvironment struct {
	TempDir        string
	Config         *config.Config
	StateMgr       *state.Manager
	Logger         *logger.Logger
	Manager        *service.Manager
	Processor      *pipeline.Processor
	Janitor        *storage.Janitor
	Server         *web.Server
	Inference      *httptest.Server
	InferenceCalls *atomic.Int64
	CleanupFunc    func()
}

const testConfigYAML = `
server:
  host: 127.0.0.1
  port: %PORT%
  max_upload_mb: 16
detector:
  backend: remote
  service_url: %INFERENCE_URL%
  timeout: 5s
  retries: 0
processing:
  scratch_dir: %SCRATCH%
  scratch_ttl: 1h
  janitor_interval: 1h
  progress_every: 2
database:
  enabled: true
  driver: sqlite
  path: %DB%
  retention_days: 7
log:
  level: debug
  format: text
`

// SetupTestEnvironment creates a test environment. frames is the length of
// the synthetic video every upload decodes to.
func SetupTestEnvironment(t *testing.T, frames int) *TestEnvironment {
	tmpDir := t.TempDir()

	calls := &atomic.Int64{}
	inference := httptest.NewServer(fakeInferenceHandler(calls))

	configPath := filepath.Join(tmpDir, "config.yaml")
	yaml := strings.NewReplacer(
		"%PORT%", strconv.Itoa(freePort(t)),
		"%INFERENCE_URL%", inference.URL,
		"%SCRATCH%", filepath.Join(tmpDir, "scratch"),
		"%DB%", filepath.Join(tmpDir, "db", "jobs.db"),
	).Replace(testConfigYAML)
	if err := os.WriteFile(configPath, []byte(yaml), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Invalid config: %v", err)
	}

	log := logger.NewNopLogger()

	stateMgr, err := state.NewManager(cfg.Database, log)
	if err != nil {
		t.Fatalf("Failed to create state manager: %v", err)
	}

	detector, err := ai.New(cfg.Detector, log)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}
	annotator, err := annotate.New(annotate.Options{})
	if err != nil {
		t.Fatalf("Failed to create annotator: %v", err)
	}

	processor := pipeline.NewProcessor(pipeline.Config{ProgressEvery: cfg.Processing.ProgressEvery},
		&syntheticDecoder{frames: frames}, detector, annotator, log)

	janitor := storage.NewJanitor(storage.JanitorConfig{
		ScratchDir:    cfg.Processing.ScratchDir,
		Prefix:        pipeline.WorkspacePrefix,
		ScratchTTL:    cfg.Processing.ScratchTTL,
		Interval:      cfg.Processing.JanitorInterval,
		RetentionDays: cfg.Database.RetentionDays,
		Pruner:        stateMgr,
	}, log)

	server := web.NewServer(cfg.Server, cfg.Processing.ScratchDir, processor, log)
	server.SetJobStore(stateMgr)

	manager := service.NewManager(log)
	manager.Register(processor)
	manager.Register(janitor)
	manager.Register(server)

	env := &TestEnvironment{
		TempDir:        tmpDir,
		Config:         cfg,
		StateMgr:       stateMgr,
		Logger:         log,
		Manager:        manager,
		Processor:      processor,
		Janitor:        janitor,
		Server:         server,
		Inference:      inference,
		InferenceCalls: calls,
	}
	env.CleanupFunc = func() {
		inference.Close()
		stateMgr.Close()
	}
	return env
}

// Cleanup cleans up the test environment
func (e *TestEnvironment) Cleanup() {
	if e.CleanupFunc != nil {
		e.CleanupFunc()
	}
}

// fakeInferenceHandler finds one car in every odd numbered request
func fakeInferenceHandler(calls *atomic.Int64) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/inference", func(w http.ResponseWriter, r *http.Request) {
		var req ai.InferenceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Image == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		resp := ai.InferenceResponse{BoundingBoxes: []ai.BoundingBox{}}
		if calls.Add(1)%2 == 1 {
			resp.BoundingBoxes = append(resp.BoundingBoxes,
				ai.BoundingBox{X1: 8, Y1: 20, X2: 40, Y2: 44, Confidence: 0.91, ClassID: carClassID, ClassName: "car"},
				ai.BoundingBox{X1: 2, Y1: 2, X2: 10, Y2: 10, Confidence: 0.55, ClassID: 0, ClassName: "person"},
			)
		}
		resp.DetectionCount = len(resp.BoundingBoxes)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}

// syntheticDecoder ignores the file contents and yields gray frames
type syntheticDecoder struct {
	frames int
}

func (d *syntheticDecoder) Name() string { return "synthetic" }

func (d *syntheticDecoder) Open(ctx context.Context, path string) (video.FrameSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 64, 48)), nil); err != nil {
		return nil, err
	}
	return &syntheticSource{total: d.frames, data: buf.Bytes()}, nil
}

type syntheticSource struct {
	total, next int
	data        []byte
}

func (s *syntheticSource) Next(ctx context.Context) (*video.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= s.total {
		return nil, io.EOF
	}
	s.next++
	return &video.Frame{Index: s.next, Data: s.data}, nil
}

func (s *syntheticSource) Info() video.Info { return video.Info{FrameCount: s.total} }
func (s *syntheticSource) Close() error     { return nil }

func freePort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find a free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// WaitForCondition waits for a condition to become true
func WaitForCondition(timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		<-ticker.C
	}

	return false
}

// ContextWithTimeout creates a context with timeout for tests
func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
