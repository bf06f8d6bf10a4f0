package h3

import (
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/net/http2/hpack"
)

// ServerHeaderValue is sent in the server header of every response.
const ServerHeaderValue = "h3mux/1.0"

// ResponseFramer serializes a status, content type, and body back onto a
// response stream as two ordered logical sends: the header block with
// end-of-stream clear, then the body with end-of-stream set, followed by an
// explicit transmit. The transport does not flush logical writes on its
// own, so reordering the sends or omitting the transmit leaves the peer
// waiting indefinitely.
type ResponseFramer struct {
	sess Session
}

// NewResponseFramer creates a framer sending responses over sess.
func NewResponseFramer(sess Session) *ResponseFramer {
	return &ResponseFramer{sess: sess}
}

// Send frames one complete response onto streamID. The content-length
// header is computed from the body's byte length, which stays correct for
// multi-byte encodings. Errors are returned for the caller to log and
// contain; a failed send must never abort the connection's event loop.
func (f *ResponseFramer) Send(streamID uint32, status int, contentType string, body []byte) error {
	headers := []hpack.HeaderField{
		{Name: ":status", Value: strconv.Itoa(status)},
		{Name: "content-type", Value: contentType},
		{Name: "content-length", Value: strconv.Itoa(len(body))},
		{Name: "server", Value: ServerHeaderValue},
	}

	if err := f.sess.SendHeaders(streamID, headers, false); err != nil {
		return errors.Wrapf(err, "failed to send response headers on stream %d", streamID)
	}
	if err := f.sess.SendData(streamID, body, true); err != nil {
		return errors.Wrapf(err, "failed to send response body on stream %d", streamID)
	}
	if err := f.sess.Transmit(); err != nil {
		return errors.Wrapf(err, "failed to transmit response on stream %d", streamID)
	}
	return nil
}
