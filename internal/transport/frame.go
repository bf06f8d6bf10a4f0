// Package transport implements the framed session collaborator consumed by
// the request/response layer: HEADERS and DATA frames multiplexed by stream
// id over a single reliable byte stream (TLS over TCP in production, an
// in-memory pipe in tests). Header blocks are HPACK-encoded. The session
// buffers logical sends and only writes to the wire on Transmit.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// FrameType identifies the kind of frame carried by a frame header.
type FrameType uint8

const (
	// FrameData carries body bytes for one stream (0x0).
	FrameData FrameType = 0x0
	// FrameHeaders carries an HPACK-encoded header block for one stream (0x1).
	FrameHeaders FrameType = 0x1
)

// String returns the string representation of the FrameType.
func (t FrameType) String() string {
	switch t {
	case FrameData:
		return "DATA"
	case FrameHeaders:
		return "HEADERS"
	default:
		return fmt.Sprintf("UNKNOWN_FRAME_TYPE_%d", uint8(t))
	}
}

// Flags represents the flag bits of a frame header.
type Flags uint8

const (
	// FlagEndStream marks the final frame of a stream in this direction.
	FlagEndStream Flags = 0x1
)

// Has reports whether all bits of f are set.
func (fl Flags) Has(f Flags) bool { return fl&f == f }

const (
	// frameHeaderLen is the fixed length of the frame header:
	// 24-bit payload length, 8-bit type, 8-bit flags, 31-bit stream id.
	frameHeaderLen = 9

	// maxFramePayload bounds a single frame's payload. Larger bodies are
	// split across multiple DATA frames.
	maxFramePayload = 16384
)

// FrameHeader is the fixed-size header common to all frames.
type FrameHeader struct {
	Length   uint32 // 24 bits
	Type     FrameType
	Flags    Flags
	StreamID uint32 // 31 bits, high bit reserved and always zero
}

// readFrameHeader reads one frame header from r.
func readFrameHeader(r io.Reader) (FrameHeader, error) {
	var buf [frameHeaderLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return FrameHeader{}, err
	}
	return FrameHeader{
		Length:   uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2]),
		Type:     FrameType(buf[3]),
		Flags:    Flags(buf[4]),
		StreamID: binary.BigEndian.Uint32(buf[5:]) & 0x7FFFFFFF,
	}, nil
}

// writeTo serializes the frame header to w.
func (fh FrameHeader) writeTo(w io.Writer) error {
	var buf [frameHeaderLen]byte
	buf[0] = byte(fh.Length >> 16)
	buf[1] = byte(fh.Length >> 8)
	buf[2] = byte(fh.Length)
	buf[3] = byte(fh.Type)
	buf[4] = byte(fh.Flags)
	binary.BigEndian.PutUint32(buf[5:], fh.StreamID&0x7FFFFFFF)
	_, err := w.Write(buf[:])
	return err
}
