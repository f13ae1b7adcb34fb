package feed

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
)

// Server accepts TCP subscribers. Anything a client sends is ignored.
type Server struct {
	Addr string
	Hub  *Hub

	log  *zap.Logger
	mu   sync.Mutex
	ln   net.Listener
	wg   sync.WaitGroup
	done bool
}

func NewServer(addr string, hub *Hub, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{Addr: addr, Hub: hub, log: log.Named("tcp-feed")}
}

// Listen binds the address; Addr is updated with the bound port.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listen tcp feed: %w", err)
	}
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return ln.Close()
	}
	s.ln = ln
	s.Addr = ln.Addr().String()
	s.mu.Unlock()
	s.log.Info("listening", zap.String("addr", s.Addr))
	return nil
}

// Serve accepts clients until Close. It returns nil after Close.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln, done := s.ln, s.done
	s.mu.Unlock()
	if done {
		return nil
	}
	if ln == nil {
		return errors.New("tcp feed: Serve called before Listen")
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			done := s.done
			s.mu.Unlock()
			if done || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("accept failed", zap.Error(err))
			continue
		}

		s.Hub.Welcome(conn)
		s.Hub.Add(conn)
		s.log.Info("client connected", zap.Stringer("remote", conn.RemoteAddr()))

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer func() {
				s.Hub.Remove(c)
				s.log.Info("client disconnected", zap.Stringer("remote", c.RemoteAddr()))
			}()

			sc := bufio.NewScanner(c)
			for sc.Scan() {
			}
		}(conn)
	}
}

// Run is Listen followed by Serve.
func (s *Server) Run() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Close stops accepting, disconnects every TCP client and waits for their
// goroutines.
func (s *Server) Close() error {
	s.mu.Lock()
	s.done = true
	ln := s.ln
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}

	s.Hub.mu.Lock()
	for c := range s.Hub.clients {
		_ = c.Close()
	}
	s.Hub.mu.Unlock()

	s.wg.Wait()
	return err
}
