// Package protocol implements the EPC frame layer.
//
// It solves TCP's sticky packet problem with a fixed-width textual
// header: six lowercase ASCII hex digits followed by the payload and a
// trailing newline. The header encodes len(payload)+1: the extra byte
// is the newline after the payload, which is counted but not part of
// the payload itself.
//
// Frame format:
//
//	0        6                    6+len
//	┌────────┬────────────────────┬──┐
//	│ %06x   │      payload       │\n│
//	│ len+1  │    len bytes       │  │
//	└────────┴────────────────────┴──┘
//
// The receiver reads the header first to determine the byte count,
// then reads exactly that many bytes. A stream that ends at a frame
// boundary is a clean close (io.EOF); a stream that ends inside a
// frame is ErrIncompleteFrame.
package protocol

import (
	"errors"
	"fmt"
	"io"
	"strconv"
)

// HeaderSize is the fixed width of the hex length header.
const HeaderSize = 6

var (
	// ErrInvalidHeader reports a header that is not six hex digits or
	// declares a zero length. Framing trust is broken: fatal.
	ErrInvalidHeader = errors.New("protocol: invalid frame header")

	// ErrIncompleteFrame reports end of stream in the middle of a
	// frame. Fatal to the session.
	ErrIncompleteFrame = errors.New("protocol: stream ended mid-frame")
)

// WriteFrame writes one complete frame for payload to w.
//
// The whole frame is built first and written with a single Write call,
// so a frame never spans two writes. Callers sharing w across
// goroutines must still serialize WriteFrame calls, otherwise frames
// from different messages will interleave and corrupt the stream.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, 0, HeaderSize+len(payload)+1)
	buf = append(buf, fmt.Sprintf("%06x", len(payload)+1)...)
	buf = append(buf, payload...)
	buf = append(buf, '\n')
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one complete frame from r and returns its payload
// with the counted trailing newline stripped.
//
// Returns io.EOF when the stream closes cleanly at a frame boundary
// (zero header bytes available), ErrIncompleteFrame when the stream
// ends after a partial header or short payload, and ErrInvalidHeader
// when the header does not parse. Uses io.ReadFull throughout, so a
// short read from a slow peer is not an error, it just blocks.
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return nil, io.EOF // clean close between frames
		}
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: short header", ErrIncompleteFrame)
		}
		return nil, err
	}

	n, err := strconv.ParseUint(string(header), 16, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHeader, header)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: zero length", ErrInvalidHeader)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: want %d payload bytes", ErrIncompleteFrame, n)
		}
		return nil, err
	}

	// The count is authoritative; tolerate a peer that omitted the
	// trailing newline but still declared the +1.
	if body[len(body)-1] == '\n' {
		body = body[:len(body)-1]
	}
	return body, nil
}
