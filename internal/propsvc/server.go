package propsvc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/syspropkit/sysprop/internal/propmem"
)

// AllowFunc decides whether a requested property write is permitted.
// A nil AllowFunc permits everything.
type AllowFunc func(name string) bool

// ServerConfig configures the property service.
type ServerConfig struct {
	// SocketPath is the unix socket the daemon listens on.
	SocketPath string

	// Allow is consulted per request before any mutation.
	Allow AllowFunc

	// Logger receives structured request/error logs.
	Logger zerolog.Logger
}

// Server owns the writable property area and serializes every write onto
// it. The daemon process embodies the area's single-writer role; all other
// processes reach it through Client.
type Server struct {
	area *propmem.Writable
	cfg  ServerConfig
	ln   net.Listener

	// mu serializes writes to the area across connections.
	mu sync.Mutex
}

// NewServer returns a server applying requests to area.
func NewServer(area *propmem.Writable, cfg ServerConfig) *Server {
	return &Server{area: area, cfg: cfg}
}

// Listen binds the daemon socket, replacing a stale socket file left by a
// previous instance.
func (s *Server) Listen() error {
	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale socket %s: %w", s.cfg.SocketPath, err)
	}
	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.SocketPath, err)
	}
	s.ln = ln
	s.cfg.Logger.Info().Str("socket", s.cfg.SocketPath).Msg("property service listening")
	return nil
}

// Serve accepts and handles connections until ctx is canceled or the
// listener fails. Listen must have been called first.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return errors.New("server is not listening")
	}

	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		go s.handleConn(conn)
	}
}

// Close releases the listener and removes the socket file. The area itself
// belongs to the caller.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	if rmErr := os.Remove(s.cfg.SocketPath); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}

// handleConn processes set requests from one client until it disconnects.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	for {
		name, value, err := readSetRequest(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.cfg.Logger.Warn().Err(err).Msg("dropping property connection")
			}
			return
		}

		applyErr := s.apply(name, value)
		if applyErr != nil {
			s.cfg.Logger.Warn().Err(applyErr).Str("name", name).Msg("property set rejected")
		} else {
			s.cfg.Logger.Debug().Str("name", name).Int("value_len", len(value)).Msg("property set")
		}

		if err := writeStatus(conn, statusFor(applyErr)); err != nil {
			s.cfg.Logger.Warn().Err(err).Msg("failed to write property response")
			return
		}
	}
}

// apply validates and performs one write under the server's write lock.
func (s *Server) apply(name, value string) error {
	if !utf8.ValidString(name) || !utf8.ValidString(value) {
		return ErrInvalidEncoding
	}
	if err := propmem.CheckName(name); err != nil {
		return err
	}
	if len(value) > propmem.MaxValueLen {
		return fmt.Errorf("%w: %d bytes", propmem.ErrValueTooLong, len(value))
	}
	if s.cfg.Allow != nil && !s.cfg.Allow(name) {
		return ErrPermissionDenied
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.area.SetValue(name, value)
}
