package h3

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/http2/hpack"

	"example.com/h3mux/internal/logger"
)

// DefaultRequestTimeout bounds how long Do waits for a complete response.
const DefaultRequestTimeout = 5 * time.Second

// UserAgent is sent on every outgoing request.
const UserAgent = "h3mux-client/1.0"

// Response is the fully assembled result of one request: the status parsed
// from the :status pseudo-header, the complete response header block, and
// the complete body. No further bytes will arrive for it.
type Response struct {
	Status  int
	Headers []hpack.HeaderField
	Body    []byte
}

// Header returns the value of the named response header, if present.
func (r *Response) Header(name string) (string, bool) {
	for _, hf := range r.Headers {
		if hf.Name == name {
			return hf.Value, true
		}
	}
	return "", false
}

// Correlator is the initiator side of the request/response layer. It opens
// one stream per outgoing request, registers a single-resolution waiter
// keyed by stream id, and resolves that waiter when the connection's event
// loop marks the stream complete. Do may be called from any goroutine;
// OnEvent is driven by the connection's single event loop.
type Correlator struct {
	sess      Session
	table     *StreamTable
	log       *logger.Logger
	authority string
	timeout   time.Duration

	mu      sync.Mutex
	waiters map[uint32]chan *Response
}

// NewCorrelator creates a Correlator sending requests over sess. authority
// is the :authority pseudo-header value. The logger may be nil.
func NewCorrelator(sess Session, authority string, log *logger.Logger) *Correlator {
	return &Correlator{
		sess:      sess,
		table:     NewStreamTable(log),
		log:       log,
		authority: authority,
		timeout:   DefaultRequestTimeout,
		waiters:   make(map[uint32]chan *Response),
	}
}

// SetTimeout overrides the per-request timeout.
func (c *Correlator) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Do sends one request and blocks until its complete response has been
// assembled, the timeout elapses (ErrRequestTimeout), or ctx is
// done. Requests carry no body: the header block is sent with end-of-stream
// set, so the request is complete in a single logical send.
func (c *Correlator) Do(ctx context.Context, method, path string, extra []hpack.HeaderField) (*Response, error) {
	streamID, err := c.sess.OpenStream()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open request stream")
	}

	headers := make([]hpack.HeaderField, 0, 5+len(extra))
	headers = append(headers,
		hpack.HeaderField{Name: ":method", Value: method},
		hpack.HeaderField{Name: ":scheme", Value: "https"},
		hpack.HeaderField{Name: ":authority", Value: c.authority},
		hpack.HeaderField{Name: ":path", Value: path},
		hpack.HeaderField{Name: "user-agent", Value: UserAgent},
	)
	headers = append(headers, extra...)

	// Register the waiter and its empty shadow entry before transmitting,
	// so a response racing in on the event loop always finds both.
	waiter := make(chan *Response, 1)
	c.table.Ensure(streamID)
	c.mu.Lock()
	c.waiters[streamID] = waiter
	c.mu.Unlock()

	if err := c.sess.SendHeaders(streamID, headers, true); err != nil {
		c.removeWaiter(streamID)
		return nil, errors.Wrapf(err, "failed to send request headers on stream %d", streamID)
	}
	if err := c.sess.Transmit(); err != nil {
		c.removeWaiter(streamID)
		return nil, errors.Wrapf(err, "failed to transmit request on stream %d", streamID)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp := <-waiter:
		return resp, nil
	case <-timer.C:
		c.removeWaiter(streamID)
		c.log.Warn("request timed out", logger.LogFields{
			"stream_id": streamID,
			"method":    method,
			"path":      path,
			"timeout":   c.timeout.String(),
		})
		return nil, errors.Wrapf(ErrRequestTimeout, "%s %s on stream %d", method, path, streamID)
	case <-ctx.Done():
		c.removeWaiter(streamID)
		return nil, ctx.Err()
	}
}

// Get issues a GET request for path.
func (c *Correlator) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, "GET", path, nil)
}

// OnEvent merges one inbound event and, if the affected stream is now
// complete and still has a registered waiter, resolves that waiter with the
// assembled response. Resolution happens at most once per stream: the
// waiter is removed from the table under lock before it is signalled, so a
// duplicate end-of-stream event finds nothing to resolve.
func (c *Correlator) OnEvent(ev Event) {
	st := c.table.Merge(ev)
	if st == nil || !st.Ended() {
		return
	}

	c.mu.Lock()
	waiter, ok := c.waiters[st.ID()]
	if ok {
		delete(c.waiters, st.ID())
	}
	c.mu.Unlock()

	if !ok {
		// Either already resolved, or the request timed out and the stream
		// completed late on the wire. Discard the leftover state.
		c.table.Evict(st.ID())
		return
	}

	waiter <- c.responseFromState(st)
	c.table.Evict(st.ID())
}

// PendingWaiters reports the number of unresolved requests.
func (c *Correlator) PendingWaiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func (c *Correlator) removeWaiter(streamID uint32) {
	c.mu.Lock()
	delete(c.waiters, streamID)
	c.mu.Unlock()
}

func (c *Correlator) responseFromState(st *StreamState) *Response {
	resp := &Response{
		Headers: st.Headers(),
		Body:    append([]byte(nil), st.Body()...),
	}
	if statusStr, ok := st.Header(":status"); ok {
		if status, err := strconv.Atoi(statusStr); err == nil {
			resp.Status = status
		} else {
			c.log.Warn("unparseable :status pseudo-header", logger.LogFields{
				"stream_id": st.ID(),
				"status":    statusStr,
			})
		}
	}
	return resp
}
