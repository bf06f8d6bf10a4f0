package h3

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/net/http2/hpack"
)

func startRequest(t *testing.T, c *Correlator, sess *fakeSession, path string) (<-chan *Response, <-chan error, uint32) {
	t.Helper()
	before := sess.sentHeaderCount()
	respCh := make(chan *Response, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := c.Get(context.Background(), path)
		respCh <- resp
		errCh <- err
	}()
	if !waitFor(func() bool { return sess.sentHeaderCount() > before }) {
		t.Fatal("request headers were never sent")
	}
	sess.mu.Lock()
	streamID := sess.headers[len(sess.headers)-1].streamID
	sess.mu.Unlock()
	return respCh, errCh, streamID
}

func TestDoFramesRequestAndResolvesOnEnd(t *testing.T) {
	sess := newFakeSession()
	c := NewCorrelator(sess, "localhost:4433", nil)

	respCh, errCh, streamID := startRequest(t, c, sess, "/api/status")

	sess.mu.Lock()
	sent := sess.headers[0]
	transmits := sess.transmits
	sess.mu.Unlock()

	if !sent.endStream {
		t.Error("request header block must carry end-of-stream: requests have no body")
	}
	if transmits != 1 {
		t.Errorf("transmit count = %d, want 1 (logical sends do not auto-flush)", transmits)
	}
	want := []hpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
		{Name: ":authority", Value: "localhost:4433"},
		{Name: ":path", Value: "/api/status"},
		{Name: "user-agent", Value: UserAgent},
	}
	if len(sent.headers) != len(want) {
		t.Fatalf("sent %d headers, want %d: %v", len(sent.headers), len(want), sent.headers)
	}
	for i, hf := range want {
		if sent.headers[i] != hf {
			t.Errorf("header[%d] = %v, want %v", i, sent.headers[i], hf)
		}
	}

	c.OnEvent(HeadersReceived{StreamID: streamID, Headers: []hpack.HeaderField{
		{Name: ":status", Value: "200"},
		{Name: "content-type", Value: "application/json"},
	}})
	c.OnEvent(DataReceived{StreamID: streamID, Data: []byte(`{"status":"healthy"}`), StreamEnded: true})

	resp := <-respCh
	if err := <-errCh; err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if resp.Status != 200 {
		t.Errorf("status = %d, want 200", resp.Status)
	}
	if got := string(resp.Body); got != `{"status":"healthy"}` {
		t.Errorf("body = %q", got)
	}
	if ct, _ := resp.Header("content-type"); ct != "application/json" {
		t.Errorf("content-type = %q", ct)
	}
	if c.PendingWaiters() != 0 {
		t.Errorf("pending waiters = %d, want 0", c.PendingWaiters())
	}
	if c.table.Len() != 0 {
		t.Errorf("resident streams = %d, want 0 after resolution", c.table.Len())
	}
}

func TestDuplicateEndResolvesOnce(t *testing.T) {
	sess := newFakeSession()
	c := NewCorrelator(sess, "localhost:4433", nil)

	respCh, errCh, streamID := startRequest(t, c, sess, "/once")

	ended := DataReceived{StreamID: streamID, Data: []byte("x"), StreamEnded: true}
	c.OnEvent(HeadersReceived{StreamID: streamID, Headers: []hpack.HeaderField{{Name: ":status", Value: "200"}}})
	c.OnEvent(ended)
	// A duplicate end-of-stream signal must be a safe no-op.
	c.OnEvent(ended)
	c.OnEvent(ended)

	resp := <-respCh
	if err := <-errCh; err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got := string(resp.Body); got != "x" {
		t.Errorf("body = %q, want %q", got, "x")
	}
	if c.PendingWaiters() != 0 {
		t.Errorf("pending waiters = %d, want 0", c.PendingWaiters())
	}
}

func TestTimeout(t *testing.T) {
	sess := newFakeSession()
	c := NewCorrelator(sess, "localhost:4433", nil)
	c.SetTimeout(30 * time.Millisecond)

	_, err := c.Get(context.Background(), "/never-answered")
	if !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("err = %v, want ErrRequestTimeout", err)
	}
	if c.PendingWaiters() != 0 {
		t.Errorf("timed-out waiter still registered")
	}
	// The abandoned stream state stays resident for diagnostics.
	if c.table.Len() != 1 {
		t.Errorf("resident streams = %d, want 1", c.table.Len())
	}
}

func TestTimeoutDoesNotAffectOtherStreams(t *testing.T) {
	sess := newFakeSession()
	c := NewCorrelator(sess, "localhost:4433", nil)
	c.SetTimeout(60 * time.Millisecond)

	respCh1, errCh1, stream1 := startRequest(t, c, sess, "/answered")
	_, errCh2, stream2 := startRequest(t, c, sess, "/abandoned")
	if stream1 == stream2 {
		t.Fatalf("streams not distinct: %d", stream1)
	}

	// Answer only the first request; the second times out on its own.
	c.OnEvent(HeadersReceived{StreamID: stream1, Headers: []hpack.HeaderField{{Name: ":status", Value: "200"}}})
	c.OnEvent(DataReceived{StreamID: stream1, Data: []byte("ok"), StreamEnded: true})

	resp := <-respCh1
	if err := <-errCh1; err != nil {
		t.Fatalf("answered request failed: %v", err)
	}
	if resp.Status != 200 || string(resp.Body) != "ok" {
		t.Errorf("answered request got status %d body %q", resp.Status, resp.Body)
	}

	if err := <-errCh2; !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("abandoned request err = %v, want ErrRequestTimeout", err)
	}
}

func TestLateCompletionAfterTimeoutIsDiscarded(t *testing.T) {
	sess := newFakeSession()
	c := NewCorrelator(sess, "localhost:4433", nil)
	c.SetTimeout(20 * time.Millisecond)

	_, errCh, streamID := startRequest(t, c, sess, "/late")
	if err := <-errCh; !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("err = %v, want ErrRequestTimeout", err)
	}

	// The stream completes on the wire after the waiter is gone: the state
	// is discarded, nothing resolves, nothing panics.
	c.OnEvent(HeadersReceived{StreamID: streamID, Headers: []hpack.HeaderField{{Name: ":status", Value: "200"}}})
	c.OnEvent(DataReceived{StreamID: streamID, Data: []byte("too late"), StreamEnded: true})

	if c.table.Len() != 0 {
		t.Errorf("late-completed stream still resident, table length = %d", c.table.Len())
	}
}

func TestContextCancellation(t *testing.T) {
	sess := newFakeSession()
	c := NewCorrelator(sess, "localhost:4433", nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	before := sess.sentHeaderCount()
	go func() {
		_, err := c.Get(ctx, "/cancelled")
		errCh <- err
	}()
	if !waitFor(func() bool { return sess.sentHeaderCount() > before }) {
		t.Fatal("request headers were never sent")
	}
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if c.PendingWaiters() != 0 {
		t.Errorf("cancelled waiter still registered")
	}
}

func TestStreamIDsMonotonic(t *testing.T) {
	sess := newFakeSession()
	c := NewCorrelator(sess, "localhost:4433", nil)
	c.SetTimeout(10 * time.Millisecond)

	var ids []uint32
	for i := 0; i < 3; i++ {
		_, errCh, id := startRequest(t, c, sess, "/seq")
		ids = append(ids, id)
		<-errCh
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Errorf("stream ids not monotonically increasing: %v", ids)
		}
	}
}
