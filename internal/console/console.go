// Package console serves a small RESP endpoint on the hub so a run can be
// inspected (and killed) with redis-cli while it executes.
package console

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/tidwall/redcon"
)

// Server accepts RESP connections and dispatches console commands against
// the board.
type Server struct {
	addr    string
	handler *Handler
	log     *slog.Logger

	mu       sync.RWMutex
	server   *redcon.Server
	listener net.Listener
	clients  map[redcon.Conn]struct{}
}

func NewServer(addr string, board Board, logger *slog.Logger) *Server {
	return &Server{
		addr:    addr,
		handler: NewHandler(board),
		log:     logger,
		clients: make(map[redcon.Conn]struct{}),
	}
}

// Start listens on the configured address and serves until Stop. It blocks.
func (s *Server) Start() error {
	s.log.Info("console starting", "addr", s.addr)

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	srv := redcon.NewServer(s.addr,
		s.handleCommand,
		s.handleAccept,
		s.handleClose,
	)

	s.mu.Lock()
	s.listener = ln
	s.server = srv
	s.mu.Unlock()

	return srv.Serve(ln)
}

func (s *Server) Stop() error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Close()
}

// Addr returns the bound address, which matters when listening on port 0.
func (s *Server) Addr() string {
	s.mu.RLock()
	ln := s.listener
	s.mu.RUnlock()
	if ln != nil {
		return ln.Addr().String()
	}
	return s.addr
}

func (s *Server) handleAccept(conn redcon.Conn) bool {
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	s.log.Debug("console client connected", "remote", conn.RemoteAddr())
	return true
}

func (s *Server) handleClose(conn redcon.Conn, err error) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()

	s.log.Debug("console client disconnected", "remote", conn.RemoteAddr())
}

func (s *Server) handleCommand(conn redcon.Conn, cmd redcon.Command) {
	if len(cmd.Args) == 0 {
		conn.WriteError("ERR empty command")
		return
	}

	ctx := context.Background()
	s.handler.ExecuteBytes(ctx, conn, cmd.Args[0], cmd.Args[1:])

	pipeline := conn.ReadPipeline()
	if len(pipeline) == 0 {
		return
	}

	for _, p := range pipeline {
		if len(p.Args) == 0 {
			continue
		}
		s.handler.ExecuteBytes(ctx, conn, p.Args[0], p.Args[1:])
	}
}
