package video

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
)

func setupTestFFmpeg(t *testing.T) *FFmpegWrapper {
	ffmpeg, err := NewFFmpegWrapper("", logger.NewNopLogger())
	if err != nil {
		t.Skipf("FFmpeg not available, skipping test: %v", err)
	}
	return ffmpeg
}

func TestNewFFmpegWrapper(t *testing.T) {
	ffmpeg := setupTestFFmpeg(t)

	if ffmpeg.Path() == "" {
		t.Error("FFmpeg path should be set")
	}
}

func TestNewFFmpegWrapper_BadPathFallsBack(t *testing.T) {
	setupTestFFmpeg(t)

	ffmpeg, err := NewFFmpegWrapper(filepath.Join(t.TempDir(), "no-ffmpeg"), logger.NewNopLogger())
	if err != nil {
		t.Fatalf("expected fallback to PATH, got %v", err)
	}
	if strings.Contains(ffmpeg.Path(), "no-ffmpeg") {
		t.Errorf("unexpected path %q", ffmpeg.Path())
	}
}

func TestFFmpegWrapper_BuildCommand(t *testing.T) {
	ffmpeg := setupTestFFmpeg(t)

	args := []string{"-version"}
	cmd := ffmpeg.BuildCommand(context.Background(), args)
	if cmd == nil {
		t.Fatal("BuildCommand returned nil")
	}

	if len(cmd.Args) != len(args)+1 {
		t.Errorf("Expected %d args, got %d", len(args)+1, len(cmd.Args))
	}
	if cmd.Args[len(cmd.Args)-1] != "-version" {
		t.Errorf("Expected last arg '-version', got '%s'", cmd.Args[len(cmd.Args)-1])
	}
}

func TestFFmpegWrapper_GetVersion(t *testing.T) {
	ffmpeg := setupTestFFmpeg(t)

	version, err := ffmpeg.GetVersion()
	if err != nil {
		t.Fatalf("GetVersion failed: %v", err)
	}
	if !strings.Contains(strings.ToLower(version), "ffmpeg") {
		t.Errorf("unexpected version line %q", version)
	}
}

func TestFFmpegWrapper_ProbeMissingFile(t *testing.T) {
	ffmpeg := setupTestFFmpeg(t)

	if _, err := ffmpeg.Probe(context.Background(), filepath.Join(t.TempDir(), "missing.mp4")); err == nil {
		t.Error("Probe should fail for a missing file")
	}
}
