package h3

import "golang.org/x/net/http2/hpack"

// Session is the outbound half of the transport collaborator contract.
// Logical sends are queued; nothing reaches the wire until Transmit is
// called, so every send sequence must end with an explicit Transmit.
type Session interface {
	// OpenStream allocates a fresh, connection-unique, monotonically
	// increasing stream identifier. Initiator side only.
	OpenStream() (uint32, error)

	// SendHeaders queues a header block for the given stream.
	SendHeaders(streamID uint32, headers []hpack.HeaderField, endStream bool) error

	// SendData queues body bytes for the given stream.
	SendData(streamID uint32, data []byte, endStream bool) error

	// Transmit flushes all queued sends onto the wire.
	Transmit() error
}

// EventSource is the inbound half of the collaborator contract: a blocking
// reader over the connection's ordered event stream.
type EventSource interface {
	// ReadEvent returns the next request/response event, blocking until one
	// arrives. It returns io.EOF once the peer has closed the connection.
	ReadEvent() (Event, error)
}

// EventSink consumes the events of one connection, one at a time, in
// delivery order. The initiator's Correlator and the responder's dispatcher
// both implement it.
type EventSink interface {
	OnEvent(ev Event)
}
