package video

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
)

// FFmpegWrapper wraps the ffmpeg and ffprobe binaries
type FFmpegWrapper struct {
	logger      *logger.Logger
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpegWrapper creates a new FFmpeg wrapper. An empty path searches PATH
// and the usual install locations.
func NewFFmpegWrapper(path string, log *logger.Logger) (*FFmpegWrapper, error) {
	wrapper := &FFmpegWrapper{logger: log}

	ffmpegPath, err := detectBinary(path, "ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	wrapper.ffmpegPath = ffmpegPath

	// ffprobe is optional, it only feeds progress reporting
	sibling := ""
	if path != "" {
		sibling = filepath.Join(filepath.Dir(path), "ffprobe")
	}
	if probePath, err := detectBinary(sibling, "ffprobe"); err == nil {
		wrapper.ffprobePath = probePath
	} else {
		log.Warn("ffprobe not found, video metadata will be unavailable", "error", err)
	}

	log.Info("FFmpeg wrapper initialized",
		"ffmpeg", wrapper.ffmpegPath,
		"ffprobe", wrapper.ffprobePath,
	)

	return wrapper, nil
}

// detectBinary finds an executable that answers to -version
func detectBinary(preferred, name string) (string, error) {
	paths := []string{name, "/usr/bin/" + name, "/usr/local/bin/" + name}
	if preferred != "" {
		paths = append([]string{preferred}, paths...)
	}

	for _, path := range paths {
		cmd := exec.Command(path, "-version")
		if err := cmd.Run(); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%s not found in PATH or common locations", name)
}

// Path returns the ffmpeg executable in use
func (f *FFmpegWrapper) Path() string {
	return f.ffmpegPath
}

// BuildCommand builds an FFmpeg command bound to ctx
func (f *FFmpegWrapper) BuildCommand(ctx context.Context, args []string) *exec.Cmd {
	return exec.CommandContext(ctx, f.ffmpegPath, args...)
}

// GetVersion returns FFmpeg version
func (f *FFmpegWrapper) GetVersion() (string, error) {
	cmd := exec.Command(f.ffmpegPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get ffmpeg version: %w", err)
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		return strings.TrimSpace(lines[0]), nil
	}

	return "unknown", nil
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		CodecName    string `json:"codec_name"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads metadata of the first video stream of a file
func (f *FFmpegWrapper) Probe(ctx context.Context, path string) (Info, error) {
	if f.ffprobePath == "" {
		return Info{}, fmt.Errorf("ffprobe not available")
	}

	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,avg_frame_rate,nb_frames,codec_name:format=duration",
		"-of", "json",
		path,
	}
	output, err := exec.CommandContext(ctx, f.ffprobePath, args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return Info{}, fmt.Errorf("ffprobe failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Info{}, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbe(output)
}

func parseProbe(data []byte) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Info{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return Info{}, fmt.Errorf("no video stream found")
	}

	s := out.Streams[0]
	info := Info{
		Width:  s.Width,
		Height: s.Height,
		Codec:  s.CodecName,
		FPS:    parseRate(s.AvgFrameRate),
	}
	if n, err := strconv.Atoi(s.NbFrames); err == nil {
		info.FrameCount = n
	}
	if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
		info.DurationSeconds = d
		if info.FrameCount == 0 && info.FPS > 0 {
			info.FrameCount = int(d*info.FPS + 0.5)
		}
	}

	return info, nil
}

// parseRate parses ffprobe rationals such as "30000/1001"
func parseRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
