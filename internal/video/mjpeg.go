package video

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// JPEG markers
const (
	markerPrefix = 0xFF
	markerSOI    = 0xD8
	markerEOI    = 0xD9
	markerSOS    = 0xDA
	markerTEM    = 0x01
	markerRST0   = 0xD0
	markerRST7   = 0xD7
)

// ErrTruncatedJPEG is returned when the stream ends inside an image
var ErrTruncatedJPEG = errors.New("truncated JPEG in stream")

// JPEGReader splits a concatenated MJPEG byte stream (ffmpeg image2pipe output)
// into individual JPEG images. Segments are walked by their declared lengths and
// entropy-coded data is scanned for the next real marker, so 0xFFD9 bytes inside
// tables or stuffed data never end an image early.
type JPEGReader struct {
	r *bufio.Reader
}

// NewJPEGReader creates a reader over r
func NewJPEGReader(r io.Reader) *JPEGReader {
	return &JPEGReader{r: bufio.NewReaderSize(r, 256<<10)}
}

// Next returns the next complete JPEG. It returns io.EOF when the stream ends
// cleanly between images.
func (jr *JPEGReader) Next() ([]byte, error) {
	if err := jr.seekSOI(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(64 << 10)
	buf.Write([]byte{markerPrefix, markerSOI})

	marker, err := jr.readMarker(&buf)
	for err == nil {
		switch {
		case marker == markerEOI:
			return buf.Bytes(), nil
		case marker == markerTEM || (marker >= markerRST0 && marker <= markerRST7):
			marker, err = jr.readMarker(&buf)
		case marker == markerSOS:
			if err = jr.copySegment(&buf); err != nil {
				break
			}
			marker, err = jr.scanEntropy(&buf)
		default:
			if err = jr.copySegment(&buf); err != nil {
				break
			}
			marker, err = jr.readMarker(&buf)
		}
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, ErrTruncatedJPEG
	}
	return nil, err
}

// seekSOI skips bytes up to and including the next start-of-image marker
func (jr *JPEGReader) seekSOI() error {
	prev := byte(0)
	for {
		b, err := jr.r.ReadByte()
		if err != nil {
			return err
		}
		if prev == markerPrefix && b == markerSOI {
			return nil
		}
		prev = b
	}
}

// readMarker reads a 0xFF-prefixed marker, skipping fill bytes, and appends it to buf
func (jr *JPEGReader) readMarker(buf *bytes.Buffer) (byte, error) {
	b, err := jr.r.ReadByte()
	if err != nil {
		return 0, err
	}
	if b != markerPrefix {
		return 0, fmt.Errorf("expected JPEG marker, got 0x%02X", b)
	}
	for b == markerPrefix {
		if b, err = jr.r.ReadByte(); err != nil {
			return 0, err
		}
	}
	buf.Write([]byte{markerPrefix, b})
	return b, nil
}

// copySegment copies a length-prefixed marker segment
func (jr *JPEGReader) copySegment(buf *bytes.Buffer) error {
	var lenBytes [2]byte
	if _, err := io.ReadFull(jr.r, lenBytes[:]); err != nil {
		return err
	}
	length := int(lenBytes[0])<<8 | int(lenBytes[1])
	if length < 2 {
		return fmt.Errorf("invalid JPEG segment length %d", length)
	}
	buf.Write(lenBytes[:])
	_, err := io.CopyN(buf, jr.r, int64(length-2))
	return err
}

// scanEntropy copies entropy-coded data until a marker that is neither byte
// stuffing nor a restart marker, and returns that marker
func (jr *JPEGReader) scanEntropy(buf *bytes.Buffer) (byte, error) {
	for {
		b, err := jr.r.ReadByte()
		if err != nil {
			return 0, err
		}
		if b != markerPrefix {
			buf.WriteByte(b)
			continue
		}

		next, err := jr.r.ReadByte()
		if err != nil {
			return 0, err
		}
		for next == markerPrefix {
			if next, err = jr.r.ReadByte(); err != nil {
				return 0, err
			}
		}

		buf.Write([]byte{markerPrefix, next})
		if next == 0x00 || (next >= markerRST0 && next <= markerRST7) {
			continue
		}
		return next, nil
	}
}
