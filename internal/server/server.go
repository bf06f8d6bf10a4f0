// Package server wires the responder side together: a TLS listener, one
// framed transport session and event loop per accepted connection, and the
// shared route table. Connections are fully isolated from one another; a
// failure on one never affects the rest.
package server

import (
	"context"
	"crypto/tls"
	"net"
	"sync"

	"github.com/pkg/errors"

	"example.com/h3mux/internal/config"
	"example.com/h3mux/internal/h3"
	"example.com/h3mux/internal/logger"
	"example.com/h3mux/internal/router"
	"example.com/h3mux/internal/transport"
)

// Server accepts connections and serves requests from the configured route
// table.
type Server struct {
	cfg    *config.ServerConfig
	router *router.Router
	log    *logger.Logger

	mu     sync.Mutex
	ln     net.Listener
	closed bool
	wg     sync.WaitGroup
}

// New creates a Server. The logger may be nil.
func New(cfg *config.ServerConfig, rt *router.Router, log *logger.Logger) *Server {
	return &Server{cfg: cfg, router: rt, log: log}
}

// ListenAndServe binds the configured TLS listener and serves until Close.
// Establishment failures (missing certificate files, port already bound)
// are reported here once and are fatal to this attempt only.
func (s *Server) ListenAndServe() error {
	cert, err := tls.LoadX509KeyPair(s.cfg.CertFile, s.cfg.KeyFile)
	if err != nil {
		return errors.Wrapf(err, "failed to load certificate pair (%s, %s)", s.cfg.CertFile, s.cfg.KeyFile)
	}
	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	ln, err := tls.Listen("tcp", s.cfg.Address, tlsCfg)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.cfg.Address)
	}
	return s.Serve(ln)
}

// Serve accepts connections from ln until the listener is closed. Each
// connection gets its own goroutine, session, stream table, and event
// loop.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return errors.New("server is closed")
	}
	s.ln = ln
	s.mu.Unlock()

	s.log.Info("server listening", logger.LogFields{"address": ln.Addr().String()})

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				s.wg.Wait()
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				s.log.Warn("transient accept failure", logger.LogFields{"error": err.Error()})
				continue
			}
			return errors.Wrap(err, "accept failed")
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeConn(conn)
		}()
	}
}

// ServeConn serves a single already-established connection to completion.
// Exposed separately so tests can drive the server over in-memory pipes.
func (s *Server) ServeConn(conn net.Conn) {
	connLog := s.log.With(logger.LogFields{"remote": conn.RemoteAddr().String()})
	connLog.Info("connection accepted")

	sess := transport.NewSession(conn, false)
	defer sess.Close()

	responder := NewResponder(sess, s.router, connLog)
	driver := h3.NewDriver(sess, responder, connLog)
	if err := driver.Run(context.Background()); err != nil {
		connLog.Error("connection terminated abnormally", logger.LogFields{"error": err.Error()})
		return
	}
	connLog.Info("connection closed")
}

// Close stops accepting and closes the listener, then waits for in-flight
// connections to wind down.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	ln := s.ln
	s.mu.Unlock()

	if ln != nil {
		return ln.Close()
	}
	return nil
}
