package h3

import "errors"

// ErrRequestTimeout is returned by Correlator.Do when no complete response
// arrived within the request's timeout. The stream is abandoned: its
// waiter is removed but the transport stream is not reset.
var ErrRequestTimeout = errors.New("request timed out awaiting complete response")

// ErrSessionClosed is returned when an operation is attempted on a session
// whose connection has already shut down.
var ErrSessionClosed = errors.New("transport session closed")
