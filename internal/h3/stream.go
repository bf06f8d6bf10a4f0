package h3

import (
	"bytes"
	"sync"

	"golang.org/x/net/http2/hpack"

	"example.com/h3mux/internal/logger"
)

// StreamState accumulates the partial request or response carried by one
// stream: a header block set at most once, body fragments appended in
// delivery order, and a monotonic end-of-stream flag. It is pure state; all
// sequencing decisions live in the owning StreamTable and its callers.
type StreamState struct {
	id         uint32
	headers    []hpack.HeaderField
	hasHeaders bool
	body       bytes.Buffer
	ended      bool
	dispatched bool
}

// ID returns the transport-assigned stream identifier.
func (s *StreamState) ID() uint32 { return s.id }

// Ended reports whether an event for this stream has signalled
// end-of-stream. Once true it never reverts.
func (s *StreamState) Ended() bool { return s.ended }

// HasHeaders reports whether a header block has been recorded.
func (s *StreamState) HasHeaders() bool { return s.hasHeaders }

// Headers returns the recorded header block. Callers must not mutate it.
func (s *StreamState) Headers() []hpack.HeaderField { return s.headers }

// Header returns the value of the named header, if present. Pseudo-header
// lookups (":path", ":method", ":status") go through here.
func (s *StreamState) Header(name string) (string, bool) {
	for _, hf := range s.headers {
		if hf.Name == name {
			return hf.Value, true
		}
	}
	return "", false
}

// Body returns the accumulated body bytes.
func (s *StreamState) Body() []byte { return s.body.Bytes() }

// MarkDispatched flips the dispatch guard and reports whether this call was
// the first. Duplicate end-of-stream signals must not dispatch twice.
func (s *StreamState) MarkDispatched() bool {
	if s.dispatched {
		return false
	}
	s.dispatched = true
	return true
}

// StreamTable maps stream identifiers to their accumulated state for one
// connection. Entries are created lazily on the first event referencing a
// stream, so events for streams the upper layer has not yet registered are
// tolerated rather than refused. The table is owned by a single connection;
// the mutex only covers the initiator case where a request issuer and the
// connection's event loop touch it from two goroutines.
type StreamTable struct {
	mu      sync.Mutex
	streams map[uint32]*StreamState
	log     *logger.Logger
}

// NewStreamTable creates an empty table. The logger may be nil.
func NewStreamTable(log *logger.Logger) *StreamTable {
	return &StreamTable{
		streams: make(map[uint32]*StreamState),
		log:     log,
	}
}

// Ensure creates the entry for a stream if absent and returns it. The
// initiator uses this to register its empty shadow entry before the first
// response event can arrive.
func (t *StreamTable) Ensure(id uint32) *StreamState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ensureLocked(id)
}

func (t *StreamTable) ensureLocked(id uint32) *StreamState {
	st, ok := t.streams[id]
	if !ok {
		st = &StreamState{id: id}
		t.streams[id] = st
	}
	return st
}

// Get returns the entry for a stream, or nil if none exists.
func (t *StreamTable) Get(id uint32) *StreamState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.streams[id]
}

// Merge folds one event into the table and returns the affected stream's
// state. Header blocks are recorded once (a second header block, e.g.
// trailers, is ignored); data fragments append in delivery order; the ended
// flag is monotonic. Events arriving after end-of-stream are a protocol
// anomaly: they are logged and dropped, never resurrecting the stream.
func (t *StreamTable) Merge(ev Event) *StreamState {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e := ev.(type) {
	case HeadersReceived:
		st := t.ensureLocked(e.StreamID)
		if st.ended {
			t.log.Warn("dropping headers event for ended stream", logger.LogFields{"stream_id": e.StreamID})
			return st
		}
		if st.hasHeaders {
			t.log.Debug("ignoring repeated header block for stream", logger.LogFields{"stream_id": e.StreamID})
		} else {
			st.headers = e.Headers
			st.hasHeaders = true
		}
		if e.StreamEnded {
			st.ended = true
		}
		return st

	case DataReceived:
		st := t.ensureLocked(e.StreamID)
		if st.ended {
			t.log.Warn("dropping data event for ended stream", logger.LogFields{
				"stream_id": e.StreamID,
				"len":       len(e.Data),
			})
			return st
		}
		st.body.Write(e.Data)
		if e.StreamEnded {
			st.ended = true
		}
		return st

	default:
		// Unreachable while Event stays closed.
		return nil
	}
}

// Evict discards a stream's state once its response has been fully
// resolved or sent.
func (t *StreamTable) Evict(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.streams, id)
}

// Len returns the number of resident streams.
func (t *StreamTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.streams)
}
