package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	invoker "github.com/machinefabric/invoker-go"
)

// TEST020: frames written through FrameWriter are read back in order
func Test020_frame_io_roundtrip(t *testing.T) {
	for _, codec := range allCodecs {
		var buf bytes.Buffer
		w := NewFrameWriter(&buf)
		r := NewFrameReader(&buf)

		frames := []*Frame{
			NewStart("echo", [][]string{{"text/plain"}}, nil),
			NewData(0, "text/plain", []byte("one")),
			NewLast(0, "text/plain", []byte("two")),
		}
		for _, f := range frames {
			if err := w.WriteFrame(codec, f); err != nil {
				t.Fatalf("[%s] write failed: %v", codec.Name(), err)
			}
		}

		first, err := r.ReadFrame(codec)
		if err != nil || first.FrameType != FrameTypeStart {
			t.Fatalf("[%s] expected START, got %v %v", codec.Name(), first, err)
		}
		second, err := r.ReadFrame(codec)
		if err != nil || string(second.Data.Payload) != "one" {
			t.Fatalf("[%s] expected first data, got %v %v", codec.Name(), second, err)
		}
		third, err := r.ReadFrame(codec)
		if err != nil || !third.Data.End {
			t.Fatalf("[%s] expected last data, got %v %v", codec.Name(), third, err)
		}
		if _, err := r.ReadFrame(codec); err != io.EOF {
			t.Errorf("[%s] expected EOF, got %v", codec.Name(), err)
		}
	}
}

// TEST021: reader rejects a length prefix above max_frame before allocating
func Test021_reader_enforces_max_frame(t *testing.T) {
	var buf bytes.Buffer
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], 1024)
	buf.Write(prefix[:])

	r := NewFrameReader(&buf)
	r.SetLimits(Limits{MaxFrame: 16})
	_, err := r.ReadMessage()
	if invoker.KindOf(err) != invoker.KindMalformedFrame {
		t.Fatalf("expected MalformedFrame, got %v", err)
	}
}

// TEST022: truncated body reports ErrUnexpectedEOF
func Test022_reader_truncated_body(t *testing.T) {
	var buf bytes.Buffer
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], 10)
	buf.Write(prefix[:])
	buf.Write([]byte("abc"))

	_, err := NewFrameReader(&buf).ReadMessage()
	if err != io.ErrUnexpectedEOF {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}
}

// TEST023: writer refuses frames over its limit
func Test023_writer_enforces_max_frame(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)
	w.SetLimits(Limits{MaxFrame: 8})
	if err := w.WriteMessage(make([]byte, 9)); err == nil {
		t.Fatal("expected error for oversized frame")
	}
	if buf.Len() != 0 {
		t.Errorf("nothing should be written, got %d bytes", buf.Len())
	}
}

// TEST024: Effective fills defaults and clamps to the hard limit
func Test024_limits_effective(t *testing.T) {
	if got := (Limits{}).Effective().MaxFrame; got != DefaultMaxFrame {
		t.Errorf("expected default %d, got %d", DefaultMaxFrame, got)
	}
	if got := (Limits{MaxFrame: MaxFrameHardLimit * 2}).Effective().MaxFrame; got != MaxFrameHardLimit {
		t.Errorf("expected clamp to %d, got %d", MaxFrameHardLimit, got)
	}
}
