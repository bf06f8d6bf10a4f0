package transport

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/net/http2/hpack"

	"example.com/h3mux/internal/h3"
)

// hpackTableSize is the dynamic table size for both HPACK directions.
const hpackTableSize = 4096

// Session is a framed, multiplexed session over a single reliable
// connection. It implements h3.Session (outbound) and h3.EventSource
// (inbound). Writes are buffered: SendHeaders and SendData only queue
// frames, and Transmit flushes them onto the wire.
//
// The write side is safe for concurrent use; the read side must be driven
// by a single goroutine (the connection's event loop).
type Session struct {
	conn net.Conn

	// wmu guards the writer, the HPACK encoder, and stream id allocation.
	wmu          sync.Mutex
	bw           *bufio.Writer
	henc         *hpack.Encoder
	hencBuf      bytes.Buffer
	nextStreamID uint32
	initiator    bool
	closed       bool

	br   *bufio.Reader
	hdec *hpack.Decoder
}

// NewSession wraps conn in a framed session. The initiator allocates odd
// stream ids starting at 1; the accepting side never opens streams.
func NewSession(conn net.Conn, initiator bool) *Session {
	s := &Session{
		conn:         conn,
		bw:           bufio.NewWriter(conn),
		br:           bufio.NewReader(conn),
		initiator:    initiator,
		nextStreamID: 1,
	}
	s.henc = hpack.NewEncoder(&s.hencBuf)
	s.hdec = hpack.NewDecoder(hpackTableSize, nil)
	return s
}

// OpenStream allocates the next stream identifier. Identifiers are odd,
// monotonically increasing, and never reused for the life of the
// connection.
func (s *Session) OpenStream() (uint32, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.closed {
		return 0, h3.ErrSessionClosed
	}
	if !s.initiator {
		return 0, errors.New("accepting side of a session cannot open streams")
	}
	id := s.nextStreamID
	s.nextStreamID += 2
	return id, nil
}

// SendHeaders queues one HEADERS frame carrying the HPACK-encoded block.
func (s *Session) SendHeaders(streamID uint32, headers []hpack.HeaderField, endStream bool) error {
	if streamID == 0 {
		return errors.New("cannot send headers on stream 0")
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.closed {
		return h3.ErrSessionClosed
	}

	s.hencBuf.Reset()
	for _, hf := range headers {
		if err := s.henc.WriteField(hf); err != nil {
			return errors.Wrapf(err, "hpack encoding failed for header %q", hf.Name)
		}
	}
	block := s.hencBuf.Bytes()
	if len(block) > maxFramePayload {
		return fmt.Errorf("header block of %d bytes exceeds frame limit %d", len(block), maxFramePayload)
	}

	var flags Flags
	if endStream {
		flags |= FlagEndStream
	}
	return s.queueFrame(FrameHeader{
		Length:   uint32(len(block)),
		Type:     FrameHeaders,
		Flags:    flags,
		StreamID: streamID,
	}, block)
}

// SendData queues DATA frames for the body bytes, splitting at the frame
// payload limit. Only the final frame carries END_STREAM. A zero-length
// body with endStream set still queues one empty DATA frame so the peer
// observes end-of-stream.
func (s *Session) SendData(streamID uint32, data []byte, endStream bool) error {
	if streamID == 0 {
		return errors.New("cannot send data on stream 0")
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.closed {
		return h3.ErrSessionClosed
	}
	if len(data) == 0 && !endStream {
		return nil
	}

	for first := true; first || len(data) > 0; first = false {
		chunk := data
		if len(chunk) > maxFramePayload {
			chunk = chunk[:maxFramePayload]
		}
		data = data[len(chunk):]

		var flags Flags
		if endStream && len(data) == 0 {
			flags |= FlagEndStream
		}
		if err := s.queueFrame(FrameHeader{
			Length:   uint32(len(chunk)),
			Type:     FrameData,
			Flags:    flags,
			StreamID: streamID,
		}, chunk); err != nil {
			return err
		}
	}
	return nil
}

// Transmit flushes all queued frames onto the wire.
func (s *Session) Transmit() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.closed {
		return h3.ErrSessionClosed
	}
	if err := s.bw.Flush(); err != nil {
		return errors.Wrap(err, "transmit failed")
	}
	return nil
}

func (s *Session) queueFrame(fh FrameHeader, payload []byte) error {
	if err := fh.writeTo(s.bw); err != nil {
		return errors.Wrapf(err, "failed to queue %s frame header for stream %d", fh.Type, fh.StreamID)
	}
	if _, err := s.bw.Write(payload); err != nil {
		return errors.Wrapf(err, "failed to queue %s frame payload for stream %d", fh.Type, fh.StreamID)
	}
	return nil
}

// ReadEvent blocks until the next frame arrives and returns it as a
// request/response event. Frames of unknown type are skipped. Returns
// io.EOF when the peer closes the connection cleanly.
func (s *Session) ReadEvent() (h3.Event, error) {
	for {
		fh, err := readFrameHeader(s.br)
		if err != nil {
			return nil, err
		}
		if fh.StreamID == 0 {
			return nil, fmt.Errorf("received %s frame on stream 0", fh.Type)
		}

		payload := make([]byte, fh.Length)
		if _, err := io.ReadFull(s.br, payload); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, errors.Wrapf(err, "truncated %s frame on stream %d", fh.Type, fh.StreamID)
		}

		switch fh.Type {
		case FrameHeaders:
			fields, err := s.hdec.DecodeFull(payload)
			if err != nil {
				return nil, errors.Wrapf(err, "hpack decoding failed on stream %d", fh.StreamID)
			}
			return h3.HeadersReceived{
				StreamID:    fh.StreamID,
				Headers:     fields,
				StreamEnded: fh.Flags.Has(FlagEndStream),
			}, nil
		case FrameData:
			return h3.DataReceived{
				StreamID:    fh.StreamID,
				Data:        payload,
				StreamEnded: fh.Flags.Has(FlagEndStream),
			}, nil
		default:
			// Tolerate unknown frame types from newer peers.
			continue
		}
	}
}

// Close shuts the session down and closes the underlying connection. Any
// blocked ReadEvent unblocks with a closed-connection error.
func (s *Session) Close() error {
	s.wmu.Lock()
	if s.closed {
		s.wmu.Unlock()
		return nil
	}
	s.closed = true
	s.wmu.Unlock()
	return s.conn.Close()
}
