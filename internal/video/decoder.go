package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
)

// FFmpegDecoder decodes video files by streaming MJPEG frames out of ffmpeg
type FFmpegDecoder struct {
	ffmpeg  *FFmpegWrapper
	quality int
	logger  *logger.Logger
}

// NewFFmpegDecoder creates a decoder. quality is the mjpeg -q:v value (2 is best).
func NewFFmpegDecoder(ffmpeg *FFmpegWrapper, quality int, log *logger.Logger) *FFmpegDecoder {
	if quality < 2 || quality > 31 {
		quality = 2
	}
	return &FFmpegDecoder{ffmpeg: ffmpeg, quality: quality, logger: log}
}

// Name returns the decoder name
func (d *FFmpegDecoder) Name() string {
	return "ffmpeg"
}

// Open starts ffmpeg on path. Frames are produced as they are read.
func (d *FFmpegDecoder) Open(ctx context.Context, path string) (FrameSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("video file not accessible: %w", err)
	}

	info, err := d.ffmpeg.Probe(ctx, path)
	if err != nil {
		d.logger.Debug("Video probe failed, continuing without metadata", "path", path, "error", err)
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-i", path,
		"-an",
		"-vsync", "0", // one output image per decoded frame
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", fmt.Sprintf("%d", d.quality),
		"-",
	}

	cmdCtx, cancel := context.WithCancel(ctx)
	cmd := d.ffmpeg.BuildCommand(cmdCtx, args)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create ffmpeg pipe: %w", err)
	}
	stderr := &limitedBuffer{max: 8 << 10}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	d.logger.Debug("Decoder started", "path", path, "frames", info.FrameCount, "fps", info.FPS)

	return &ffmpegSource{
		cmd:    cmd,
		cancel: cancel,
		reader: NewJPEGReader(stdout),
		stderr: stderr,
		info:   info,
	}, nil
}

type ffmpegSource struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	reader *JPEGReader
	stderr *limitedBuffer
	info   Info
	index  int

	waitOnce sync.Once
	waitErr  error
}

func (s *ffmpegSource) Info() Info {
	return s.info
}

func (s *ffmpegSource) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := s.reader.Next()
	if err == nil {
		s.index++
		return &Frame{Index: s.index, Data: data}, nil
	}

	if !errors.Is(err, io.EOF) && !errors.Is(err, ErrTruncatedJPEG) {
		// ffmpeg may still be writing, stop it before reaping
		s.cancel()
		_ = s.wait()
		return nil, fmt.Errorf("failed to read frame %d: %w", s.index+1, err)
	}

	// ffmpeg's exit status explains a short or empty stream better than the reader does
	if waitErr := s.wait(); waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		msg := strings.TrimSpace(s.stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("ffmpeg failed: %w", waitErr)
		}
		return nil, fmt.Errorf("ffmpeg failed: %s", msg)
	}

	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	return nil, err
}

func (s *ffmpegSource) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}

// Close stops ffmpeg if it is still running and reaps it
func (s *ffmpegSource) Close() error {
	s.cancel()
	err := s.wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// killed on purpose or already reported by Next
		return nil
	}
	return err
}

// limitedBuffer keeps the first max bytes written to it
type limitedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
