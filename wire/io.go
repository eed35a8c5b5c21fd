package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// FrameReader reads length-prefixed encoded frames from a byte stream.
// It restores the message boundaries that codecs rely on.
type FrameReader struct {
	reader io.Reader
	limits Limits
}

// NewFrameReader creates a new FrameReader
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		reader: r,
		limits: DefaultLimits(),
	}
}

// SetLimits updates the reader's limits
func (fr *FrameReader) SetLimits(limits Limits) {
	fr.limits = limits.Effective()
}

// ReadMessage reads the bytes of a single encoded frame
func (fr *FrameReader) ReadMessage() ([]byte, error) {
	// Read 4-byte length prefix (big-endian)
	var lengthBuf [4]byte
	if _, err := io.ReadFull(fr.reader, lengthBuf[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(lengthBuf[:])

	// Enforce max_frame limit before allocating
	if err := fr.limits.Check(int(length)); err != nil {
		return nil, err
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(fr.reader, buf); err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

// ReadFrame reads and decodes a single frame
func (fr *FrameReader) ReadFrame(codec Codec) (*Frame, error) {
	buf, err := fr.ReadMessage()
	if err != nil {
		return nil, err
	}
	return codec.Decode(buf)
}

// FrameWriter writes length-prefixed encoded frames to a byte stream. It is
// safe for concurrent use.
type FrameWriter struct {
	mu     sync.Mutex
	writer io.Writer
	limits Limits
}

// NewFrameWriter creates a new FrameWriter
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{
		writer: w,
		limits: DefaultLimits(),
	}
}

// SetLimits updates the writer's limits
func (fw *FrameWriter) SetLimits(limits Limits) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.limits = limits.Effective()
}

// WriteMessage writes the bytes of one encoded frame
func (fw *FrameWriter) WriteMessage(buf []byte) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if err := fw.limits.Check(len(buf)); err != nil {
		return fmt.Errorf("encoded frame rejected: %w", err)
	}

	// Write 4-byte length prefix (big-endian) and payload in one call so a
	// concurrent reader never sees a torn frame
	out := make([]byte, 4+len(buf))
	binary.BigEndian.PutUint32(out[:4], uint32(len(buf)))
	copy(out[4:], buf)
	_, err := fw.writer.Write(out)
	return err
}

// WriteFrame encodes and writes a single frame
func (fw *FrameWriter) WriteFrame(codec Codec, frame *Frame) error {
	buf, err := codec.Encode(frame)
	if err != nil {
		return err
	}
	return fw.WriteMessage(buf)
}
