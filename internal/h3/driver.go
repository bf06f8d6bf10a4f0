package h3

import (
	"context"
	"errors"
	"io"
	"net"

	"example.com/h3mux/internal/logger"
)

// Driver is the per-connection event loop glue: it reads one inbound event
// at a time from the transport and hands it to the connection's sink (the
// initiator's Correlator or the responder's dispatcher). One event is fully
// processed before the next is read, so all per-connection state is
// single-owner and needs no cross-stream coordination.
type Driver struct {
	src  EventSource
	sink EventSink
	log  *logger.Logger
}

// NewDriver creates a Driver feeding sink from src. The logger may be nil.
func NewDriver(src EventSource, sink EventSink, log *logger.Logger) *Driver {
	return &Driver{src: src, sink: sink, log: log}
}

// Run processes events until the peer closes the connection, the transport
// fails, or ctx is done. A clean peer close returns nil. Cancellation is
// cooperative: the caller is expected to close the underlying connection
// when cancelling ctx so the blocking read unblocks.
func (d *Driver) Run(ctx context.Context) error {
	for {
		ev, err := d.src.ReadEvent()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || isClosedConn(err) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			d.log.Error("transport read failed", logger.LogFields{"error": err.Error()})
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}

		d.sink.OnEvent(ev)
	}
}

// isClosedConn reports whether err is the expected noise of a connection
// torn down during shutdown rather than a transport failure. Closing a
// net.Pipe surfaces io.ErrClosedPipe; closing a socket mid-read surfaces
// net.ErrClosed.
func isClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
