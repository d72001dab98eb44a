package protocol

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"testing"
)

func TestWriteReadFrame(t *testing.T) {
	payload := []byte(`(call 0 echo ("x" "y"))`)

	var buf bytes.Buffer
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	// Header must be six hex digits encoding len(payload)+1
	raw := buf.Bytes()
	n, err := strconv.ParseUint(string(raw[:HeaderSize]), 16, 32)
	if err != nil {
		t.Fatalf("header is not hex: %v", err)
	}
	if int(n) != len(payload)+1 {
		t.Errorf("header value mismatch: got %d, want %d", n, len(payload)+1)
	}
	if raw[len(raw)-1] != '\n' {
		t.Errorf("frame must end with a newline")
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch: got %q, want %q", got, payload)
	}
}

func TestReadFrameSequential(t *testing.T) {
	var buf bytes.Buffer
	first := []byte("(methods 3)")
	second := []byte(`(return 3 nil)`)
	if err := WriteFrame(&buf, first); err != nil {
		t.Fatal(err)
	}
	if err := WriteFrame(&buf, second); err != nil {
		t.Fatal(err)
	}

	for i, want := range [][]byte{first, second} {
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("frame %d: ReadFrame failed: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d: got %q, want %q", i, got, want)
		}
	}

	// After the last frame, a clean close
	if _, err := ReadFrame(&buf); err != io.EOF {
		t.Errorf("expected io.EOF at stream end, got %v", err)
	}
}

func TestReadFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, nil); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty payload, got %q", got)
	}
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("(return 1 42)")); err != nil {
		t.Fatal(err)
	}
	// Drop the last 4 bytes to simulate a connection cut mid-frame
	trunc := bytes.NewReader(buf.Bytes()[:buf.Len()-4])

	_, err := ReadFrame(trunc)
	if !errors.Is(err, ErrIncompleteFrame) {
		t.Fatalf("expected ErrIncompleteFrame, got %v", err)
	}
}

func TestReadFrameTruncatedHeader(t *testing.T) {
	// Only 3 of the 6 header bytes arrive before the stream ends
	r := bytes.NewReader([]byte("000"))
	_, err := ReadFrame(r)
	if !errors.Is(err, ErrIncompleteFrame) {
		t.Fatalf("expected ErrIncompleteFrame, got %v", err)
	}
}

func TestReadFrameInvalidHeader(t *testing.T) {
	r := bytes.NewReader([]byte("zzzzzz(call 0 f nil)\n"))
	_, err := ReadFrame(r)
	if !errors.Is(err, ErrInvalidHeader) {
		t.Fatalf("expected ErrInvalidHeader, got %v", err)
	}
}

func TestReadFrameZeroLength(t *testing.T) {
	r := bytes.NewReader([]byte("000000"))
	_, err := ReadFrame(r)
	if !errors.Is(err, ErrInvalidHeader) {
		t.Fatalf("expected ErrInvalidHeader for zero length, got %v", err)
	}
}

func TestReadFrameMissingNewline(t *testing.T) {
	// A peer that counts the +1 but sends no newline: the declared
	// byte count wins and the last payload byte is kept.
	payload := []byte("(methods 0)X")
	var buf bytes.Buffer
	buf.WriteString("00000c") // 12 = len("(methods 0)")+1
	buf.Write(payload[:11])
	buf.WriteByte('Y')

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if string(got) != "(methods 0)Y" {
		t.Errorf("got %q", got)
	}
}
