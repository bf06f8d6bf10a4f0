// Package client wires the initiator side together: a TLS connection, a
// framed transport session, a background event loop, and the request
// correlator that callers issue requests through.
package client

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/http2/hpack"

	"example.com/h3mux/internal/config"
	"example.com/h3mux/internal/h3"
	"example.com/h3mux/internal/logger"
	"example.com/h3mux/internal/transport"
)

// Client issues requests over one multiplexed connection. It is safe for
// concurrent use: requests from multiple goroutines interleave on the
// shared connection, each on its own stream.
type Client struct {
	conn net.Conn
	sess *transport.Session
	corr *h3.Correlator
	log  *logger.Logger
	done chan struct{}
}

// Dial establishes a TLS connection per the client configuration and
// returns a ready Client. Establishment failures (refused connection, bad
// address) are fatal to this attempt only.
func Dial(cfg *config.ClientConfig, log *logger.Logger) (*Client, error) {
	timeout, err := cfg.ParsedRequestTimeout()
	if err != nil {
		return nil, err
	}

	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.InsecureSkipVerify != nil && *cfg.InsecureSkipVerify {
		// Development servers run on self-signed certificates.
		tlsCfg.InsecureSkipVerify = true
	}

	conn, err := tls.Dial("tcp", cfg.Address, tlsCfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", cfg.Address)
	}

	c := New(conn, cfg.Authority, log)
	c.corr.SetTimeout(timeout)
	return c, nil
}

// New builds a Client over an already-established connection and starts
// its event loop. Exposed separately so tests can drive a client over
// in-memory pipes.
func New(conn net.Conn, authority string, log *logger.Logger) *Client {
	sess := transport.NewSession(conn, true)
	c := &Client{
		conn: conn,
		sess: sess,
		corr: h3.NewCorrelator(sess, authority, log),
		log:  log,
		done: make(chan struct{}),
	}

	driver := h3.NewDriver(sess, c.corr, log)
	go func() {
		defer close(c.done)
		if err := driver.Run(context.Background()); err != nil {
			log.Error("client event loop terminated abnormally", logger.LogFields{"error": err.Error()})
		}
	}()
	return c
}

// Do issues one request and waits for its complete response.
func (c *Client) Do(ctx context.Context, method, path string, extra []hpack.HeaderField) (*h3.Response, error) {
	return c.corr.Do(ctx, method, path, extra)
}

// Get issues a GET request for path.
func (c *Client) Get(ctx context.Context, path string) (*h3.Response, error) {
	return c.corr.Get(ctx, path)
}

// SetTimeout overrides the per-request timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.corr.SetTimeout(d)
}

// Close shuts the connection down and waits for the event loop to exit.
func (c *Client) Close() error {
	err := c.sess.Close()
	<-c.done
	return err
}
