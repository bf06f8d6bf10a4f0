// Package h3 implements the request/response layer carried over a
// multiplexed, stream-based transport session: per-stream accumulation of
// partial request/response data, initiator-side request correlation, and
// responder-side response framing. The transport itself (connection
// establishment, encryption, per-stream ordered delivery, wire framing) is
// an external collaborator reached through the Session and EventSource
// interfaces.
package h3

import "golang.org/x/net/http2/hpack"

// Event is a higher-level request/response event surfaced by the transport
// session for one stream. It is a closed variant: the only implementations
// are HeadersReceived and DataReceived, and consumers switch exhaustively
// on the concrete type.
type Event interface {
	event()
}

// HeadersReceived reports a complete header block for a stream, including
// pseudo-headers such as :method, :path and :status.
type HeadersReceived struct {
	StreamID    uint32
	Headers     []hpack.HeaderField
	StreamEnded bool
}

func (HeadersReceived) event() {}

// DataReceived carries one body fragment for a stream, in delivery order.
type DataReceived struct {
	StreamID    uint32
	Data        []byte
	StreamEnded bool
}

func (DataReceived) event() {}

// EventStreamID returns the stream an event belongs to.
func EventStreamID(ev Event) uint32 {
	switch e := ev.(type) {
	case HeadersReceived:
		return e.StreamID
	case DataReceived:
		return e.StreamID
	default:
		return 0
	}
}
