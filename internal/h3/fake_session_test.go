package h3

import (
	"sync"
	"time"

	"golang.org/x/net/http2/hpack"
)

// fakeSession records every logical send for assertion. It implements
// Session.
type fakeSession struct {
	mu        sync.Mutex
	nextID    uint32
	headers   []sentHeaders
	data      []sentData
	order     []string // "headers"/"data"/"transmit" in call order
	transmits int

	openErr     error
	headersErr  error
	dataErr     error
	transmitErr error
}

type sentHeaders struct {
	streamID  uint32
	headers   []hpack.HeaderField
	endStream bool
}

type sentData struct {
	streamID  uint32
	data      []byte
	endStream bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{nextID: 1}
}

func (f *fakeSession) OpenStream() (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return 0, f.openErr
	}
	id := f.nextID
	f.nextID += 2
	return id, nil
}

func (f *fakeSession) SendHeaders(streamID uint32, headers []hpack.HeaderField, endStream bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headersErr != nil {
		return f.headersErr
	}
	f.headers = append(f.headers, sentHeaders{streamID, headers, endStream})
	f.order = append(f.order, "headers")
	return nil
}

func (f *fakeSession) SendData(streamID uint32, data []byte, endStream bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dataErr != nil {
		return f.dataErr
	}
	f.data = append(f.data, sentData{streamID, append([]byte(nil), data...), endStream})
	f.order = append(f.order, "data")
	return nil
}

func (f *fakeSession) Transmit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transmitErr != nil {
		return f.transmitErr
	}
	f.transmits++
	f.order = append(f.order, "transmit")
	return nil
}

func (f *fakeSession) sentHeaderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.headers)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}
