package server

import (
	"time"

	"example.com/h3mux/internal/h3"
	"example.com/h3mux/internal/logger"
	"example.com/h3mux/internal/router"
)

// Responder is the per-connection responder-side event sink: it folds
// inbound events into the connection's stream table and, once a stream
// carries a complete request, dispatches it exactly once and frames the
// result back onto the same stream. Framing failures are logged and
// contained so the connection keeps serving its other streams.
type Responder struct {
	table  *h3.StreamTable
	router *router.Router
	framer *h3.ResponseFramer
	log    *logger.Logger

	// completed remembers answered stream ids so a duplicate end-of-stream
	// event arriving after eviction cannot resurrect the stream and
	// dispatch twice. Stream ids are never reused within a connection, so
	// the set only grows with the number of requests served.
	completed map[uint32]struct{}
}

// NewResponder creates a Responder answering over sess. The logger may be
// nil.
func NewResponder(sess h3.Session, rt *router.Router, log *logger.Logger) *Responder {
	return &Responder{
		table:     h3.NewStreamTable(log),
		router:    rt,
		framer:    h3.NewResponseFramer(sess),
		log:       log,
		completed: make(map[uint32]struct{}),
	}
}

// OnEvent implements h3.EventSink.
func (r *Responder) OnEvent(ev h3.Event) {
	if _, done := r.completed[h3.EventStreamID(ev)]; done {
		r.log.Warn("dropping event for completed stream", logger.LogFields{
			"stream_id": h3.EventStreamID(ev),
		})
		return
	}

	st := r.table.Merge(ev)
	if st == nil || !st.Ended() {
		return
	}
	if !st.MarkDispatched() {
		// A duplicate end-of-stream signal; the request was already answered.
		return
	}

	start := time.Now()
	status, contentType, body := r.router.Dispatch(st)

	if err := r.framer.Send(st.ID(), status, contentType, body); err != nil {
		// The peer may have reset the stream. Contain the failure: other
		// streams on this connection are still live.
		r.log.Error("failed to frame response", logger.LogFields{
			"stream_id": st.ID(),
			"status":    status,
			"error":     err.Error(),
		})
	} else {
		method, _ := st.Header(":method")
		path, _ := st.Header(":path")
		r.log.Access(method, path, st.ID(), status, len(body), time.Since(start))
	}

	r.table.Evict(st.ID())
	r.completed[st.ID()] = struct{}{}
}

// StreamCount reports the number of resident streams, for tests and
// diagnostics.
func (r *Responder) StreamCount() int { return r.table.Len() }
