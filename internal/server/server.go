// Package server exposes the reservation engine over a line-delimited TCP
// protocol: comma-separated commands, keyword first, one goroutine per
// connection. A logged-in connection doubles as the live notification
// channel for its user.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/example/classroom-reservation/internal/application"
	"github.com/example/classroom-reservation/internal/identity"
	"github.com/example/classroom-reservation/internal/logging"
	"github.com/example/classroom-reservation/internal/notify"
)

// Server accepts client connections and dispatches protocol commands to the
// reservation, catalog, and identity services.
type Server struct {
	addr       string
	maxClients int

	identity     *identity.Service
	reservations *application.ReservationService
	rooms        *application.CatalogService
	dispatcher   *notify.Dispatcher
	logger       *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	sessions map[string]*session
	wg       sync.WaitGroup
}

// New wires the protocol surface. maxClients limits concurrent logged-in
// users; zero means unlimited.
func New(addr string, maxClients int, id *identity.Service, reservations *application.ReservationService, rooms *application.CatalogService, dispatcher *notify.Dispatcher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:         addr,
		maxClients:   maxClients,
		identity:     id,
		reservations: reservations,
		rooms:        rooms,
		dispatcher:   dispatcher,
		logger:       logger,
		sessions:     make(map[string]*session),
	}
}

// Addr reports the bound listen address, usable once ListenAndServe has
// started accepting.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// ListenAndServe accepts connections until the context is cancelled, then
// closes the listener and waits for in-flight sessions to finish.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("server listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}

	s.wg.Wait()
	return nil
}

func (s *Server) bindSession(userID string, sess *session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[userID]; ok {
		return errAlreadyLoggedIn
	}
	if s.maxClients > 0 && len(s.sessions) >= s.maxClients {
		return errServerBusy
	}
	s.sessions[userID] = sess
	return nil
}

func (s *Server) releaseSession(userID string, sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.sessions[userID]; ok && current == sess {
		delete(s.sessions, userID)
	}
}

var (
	errAlreadyLoggedIn = errors.New("server: user already logged in")
	errServerBusy      = errors.New("server: client limit reached")
)

// session is one client connection. It implements notify.Channel so the
// dispatcher can push notifications over the same socket; the write mutex
// keeps pushed lines from interleaving with command replies.
type session struct {
	conn net.Conn

	writeMu sync.Mutex
	user    identity.User
	bound   bool
}

func (c *session) writeLine(line string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	fmt.Fprintf(c.conn, "%s\n", line)
}

// Send implements notify.Channel.
func (c *session) Send(n notify.Notification) error {
	c.writeLine(fmt.Sprintf("NOTIFICATION,%s,%s,%s,%s,%s,%s",
		n.Type, n.Message, n.Room, n.Date, n.Weekday, n.Slot))
	return nil
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	logger := s.logger.With("remote", conn.RemoteAddr().String())
	ctx = logging.ContextWithLogger(ctx, logger)

	sess := &session{conn: conn}
	defer s.unbind(sess)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "EXIT" {
			return
		}
		s.dispatch(ctx, sess, line)
	}
	if err := scanner.Err(); err != nil {
		logger.Debug("connection read ended", "error", err)
	}
}

func (s *Server) unbind(sess *session) {
	if !sess.bound {
		return
	}
	s.dispatcher.Unregister(sess.user.ID, sess)
	s.releaseSession(sess.user.ID, sess)
	sess.bound = false
}
