package stream

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Framing constants.
const (
	// DefaultMaxFrameSize is the default maximum frame size (256 KB).
	// Waveform tiles are the largest frames and stay well under this.
	DefaultMaxFrameSize = 256 * 1024
)

// Framing errors.
var (
	// ErrFrameTooLarge indicates a frame exceeds the maximum size.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrFrameEmpty indicates an empty frame.
	ErrFrameEmpty = errors.New("frame is empty")

	// ErrFrameNewline indicates outbound frame data contains a raw
	// newline, which would corrupt the framing.
	ErrFrameNewline = errors.New("frame contains newline")
)

// LineWriter writes newline-delimited frames to an underlying writer.
type LineWriter struct {
	w            io.Writer
	maxFrameSize int
	mu           sync.Mutex
}

// NewLineWriter creates a line writer with the default maximum frame size.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: w, maxFrameSize: DefaultMaxFrameSize}
}

// WriteFrame writes one frame followed by the delimiter.
// Thread-safe: can be called from multiple goroutines.
func (lw *LineWriter) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrFrameEmpty
	}
	if len(data) > lw.maxFrameSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(data), lw.maxFrameSize)
	}
	if bytes.IndexByte(data, '\n') >= 0 {
		return ErrFrameNewline
	}

	lw.mu.Lock()
	defer lw.mu.Unlock()

	if _, err := lw.w.Write(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if _, err := lw.w.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("write delimiter: %w", err)
	}
	return nil
}

// LineReader reads newline-delimited frames from an underlying reader.
type LineReader struct {
	scanner      *bufio.Scanner
	maxFrameSize int
}

// NewLineReader creates a line reader with the default maximum frame size.
func NewLineReader(r io.Reader) *LineReader {
	return NewLineReaderWithMaxSize(r, DefaultMaxFrameSize)
}

// NewLineReaderWithMaxSize creates a line reader with a custom maximum.
func NewLineReaderWithMaxSize(r io.Reader, maxSize int) *LineReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxSize)
	return &LineReader{scanner: scanner, maxFrameSize: maxSize}
}

// ReadFrame reads the next frame, without its delimiter. Returns
// io.EOF at a clean end of stream and ErrFrameTooLarge for an
// oversized frame (the stream is unusable afterwards).
func (lr *LineReader) ReadFrame() ([]byte, error) {
	for lr.scanner.Scan() {
		line := lr.scanner.Bytes()
		if len(line) == 0 {
			// Blank keep-alive line between frames.
			continue
		}
		// The scanner reuses its buffer on the next Scan.
		frame := make([]byte, len(line))
		copy(frame, line)
		return frame, nil
	}

	if err := lr.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("%w: limit %d", ErrFrameTooLarge, lr.maxFrameSize)
		}
		return nil, err
	}
	return nil, io.EOF
}
