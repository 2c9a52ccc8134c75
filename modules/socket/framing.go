package socket

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// A message shorter than 255 bytes is prefixed by its length in one byte.
// Longer messages are prefixed by 0xFF and a four byte big endian length.
const longFrameMarker = 0xFF

// DefaultMaxFrameSize caps the length a peer may announce for one framed
// message.
const DefaultMaxFrameSize = 64 << 20

type frameTooLargeError struct {
	size, limit int
}

func (e frameTooLargeError) Error() string {
	return fmt.Sprintf("incoming frame of %d bytes exceeds the maximum of %d bytes", e.size, e.limit)
}

type framing struct {
	rawBytes    bool
	sendType    string
	receiveType string
	serialize   bool
	batch       bool
	idleTimeout int
	maxFrame    int
}

func frame(payload []byte) []byte {
	if len(payload) < longFrameMarker {
		out := make([]byte, 0, len(payload)+1)
		out = append(out, byte(len(payload)))
		return append(out, payload...)
	}
	out := make([]byte, 5, len(payload)+5)
	out[0] = longFrameMarker
	binary.BigEndian.PutUint32(out[1:], uint32(len(payload)))
	return append(out, payload...)
}

// readFrame reads one framed message. A length above limit is rejected
// before anything is allocated for it.
func readFrame(r *bufio.Reader, limit int) ([]byte, error) {
	first, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	size := int(first)
	if first == longFrameMarker {
		var hdr [4]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, err
		}
		size = int(binary.BigEndian.Uint32(hdr[:]))
	}
	if limit <= 0 {
		limit = DefaultMaxFrameSize
	}
	if size > limit {
		return nil, frameTooLargeError{size: size, limit: limit}
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// frameBuffered reports whether a complete frame is already buffered, so
// reading it will not block.
func frameBuffered(r *bufio.Reader) bool {
	n := r.Buffered()
	if n == 0 {
		return false
	}
	hdr, err := r.Peek(1)
	if err != nil {
		return false
	}
	if hdr[0] != longFrameMarker {
		return n >= 1+int(hdr[0])
	}
	if n < 5 {
		return false
	}
	hdr, err = r.Peek(5)
	if err != nil {
		return false
	}
	return n >= 5+int(binary.BigEndian.Uint32(hdr[1:]))
}
