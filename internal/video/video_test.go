package video

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
)

func encodeTestJPEG(t *testing.T, w, h int, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: uint8(x * 7), B: uint8(y * 13), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func TestJPEGReader_SplitsConcatenatedStream(t *testing.T) {
	frames := [][]byte{
		encodeTestJPEG(t, 32, 24, 10),
		encodeTestJPEG(t, 64, 48, 120),
		encodeTestJPEG(t, 16, 16, 250),
	}
	stream := bytes.Join(frames, nil)

	reader := NewJPEGReader(bytes.NewReader(stream))
	for i, want := range frames {
		got, err := reader.Next()
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, want, got, "frame %d", i)

		_, err = jpeg.Decode(bytes.NewReader(got))
		assert.NoError(t, err)
	}

	_, err := reader.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestJPEGReader_ByteAtATime(t *testing.T) {
	a := encodeTestJPEG(t, 40, 30, 1)
	b := encodeTestJPEG(t, 40, 30, 2)

	reader := NewJPEGReader(iotest.OneByteReader(bytes.NewReader(append(append([]byte{}, a...), b...))))

	got, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, a, got)

	got, err = reader.Next()
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestJPEGReader_SkipsLeadingGarbage(t *testing.T) {
	frame := encodeTestJPEG(t, 8, 8, 99)
	stream := append([]byte{0x00, 0x12, 0xFF, 0x00}, frame...)

	got, err := NewJPEGReader(bytes.NewReader(stream)).Next()
	require.NoError(t, err)
	assert.Equal(t, frame, got)
}

func TestJPEGReader_Truncated(t *testing.T) {
	frame := encodeTestJPEG(t, 32, 32, 50)

	_, err := NewJPEGReader(bytes.NewReader(frame[:len(frame)/2])).Next()
	assert.ErrorIs(t, err, ErrTruncatedJPEG)
}

func TestJPEGReader_Empty(t *testing.T) {
	_, err := NewJPEGReader(bytes.NewReader(nil)).Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrame_ImageDecodesLazily(t *testing.T) {
	frame := &Frame{Index: 3, Data: encodeTestJPEG(t, 20, 10, 5)}
	assert.Zero(t, frame.Width)

	img, err := frame.Image()
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())
	assert.Equal(t, 20, frame.Width)
	assert.Equal(t, 10, frame.Height)

	bad := &Frame{Index: 4, Data: []byte("nope")}
	_, err = bad.Image()
	assert.ErrorContains(t, err, "failed to decode frame 4")
}

func TestParseProbe(t *testing.T) {
	out := []byte(`{
		"streams": [{"codec_name": "h264", "width": 640, "height": 360, "avg_frame_rate": "30000/1001", "nb_frames": "120"}],
		"format": {"duration": "4.004"}
	}`)

	info, err := parseProbe(out)
	require.NoError(t, err)
	assert.Equal(t, 640, info.Width)
	assert.Equal(t, 360, info.Height)
	assert.Equal(t, "h264", info.Codec)
	assert.Equal(t, 120, info.FrameCount)
	assert.InDelta(t, 29.97, info.FPS, 0.01)
	assert.InDelta(t, 4.004, info.DurationSeconds, 0.0001)
}

func TestParseProbe_FrameCountFromDuration(t *testing.T) {
	info, err := parseProbe([]byte(`{"streams":[{"avg_frame_rate":"25/1","nb_frames":"N/A"}],"format":{"duration":"2.0"}}`))
	require.NoError(t, err)
	assert.Equal(t, 50, info.FrameCount)

	_, err = parseProbe([]byte(`{"streams":[]}`))
	assert.ErrorContains(t, err, "no video stream")
}

func TestParseRate(t *testing.T) {
	assert.Equal(t, 25.0, parseRate("25/1"))
	assert.Equal(t, 12.5, parseRate("12.5"))
	assert.Equal(t, 0.0, parseRate("0/0"))
	assert.Equal(t, 0.0, parseRate("abc"))
}

func TestLimitedBuffer(t *testing.T) {
	b := &limitedBuffer{max: 4}
	n, err := b.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	_, _ = b.Write([]byte("gh"))
	assert.Equal(t, "abcd", b.String())
}

func makeTestVideo(t *testing.T, ffmpeg *FFmpegWrapper, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	cmd := exec.Command(ffmpeg.Path(),
		"-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=size=160x120:rate=10",
		"-frames:v", strconv.Itoa(frames),
		"-pix_fmt", "yuv420p",
		path,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("cannot synthesize test video: %v: %s", err, out)
	}
	return path
}

func TestFFmpegDecoder_DecodesEveryFrame(t *testing.T) {
	ffmpeg := setupTestFFmpeg(t)
	path := makeTestVideo(t, ffmpeg, 12)

	decoder := NewFFmpegDecoder(ffmpeg, 2, logger.NewNopLogger())
	assert.Equal(t, "ffmpeg", decoder.Name())

	src, err := decoder.Open(context.Background(), path)
	require.NoError(t, err)
	defer src.Close()

	count := 0
	for {
		frame, err := src.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		count++
		assert.Equal(t, count, frame.Index)

		img, err := frame.Image()
		require.NoError(t, err)
		assert.Equal(t, 160, img.Bounds().Dx())
		assert.Equal(t, 120, img.Bounds().Dy())
	}
	assert.Equal(t, 12, count)
}

func TestFFmpegDecoder_InvalidVideo(t *testing.T) {
	ffmpeg := setupTestFFmpeg(t)

	path := filepath.Join(t.TempDir(), "broken.mp4")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a video"), 0o644))

	decoder := NewFFmpegDecoder(ffmpeg, 2, logger.NewNopLogger())
	src, err := decoder.Open(context.Background(), path)
	require.NoError(t, err)
	defer src.Close()

	_, err = src.Next(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
	assert.Contains(t, err.Error(), "ffmpeg failed")
}

func TestFFmpegDecoder_MissingFile(t *testing.T) {
	ffmpeg := setupTestFFmpeg(t)
	decoder := NewFFmpegDecoder(ffmpeg, 2, logger.NewNopLogger())

	_, err := decoder.Open(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	assert.ErrorContains(t, err, "video file not accessible")
}

func TestFFmpegDecoder_CloseEarly(t *testing.T) {
	ffmpeg := setupTestFFmpeg(t)
	path := makeTestVideo(t, ffmpeg, 30)

	src, err := NewFFmpegDecoder(ffmpeg, 5, logger.NewNopLogger()).Open(context.Background(), path)
	require.NoError(t, err)

	_, err = src.Next(context.Background())
	require.NoError(t, err)
	assert.NoError(t, src.Close())
}
