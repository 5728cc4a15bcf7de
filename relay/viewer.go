package relay

import (
	"context"
	"errors"
	"log"
	"net"
	"time"
)

// acceptPoll bounds Accept and viewer reads so shutdown is noticed within
// about a second.
const acceptPoll = 1 * time.Second

// ViewerServer accepts raw TCP viewers. Each viewer is registered for
// broadcast, receives the cached frame right away if there is one, and is
// then only read to detect it going away.
type ViewerServer struct {
	addr     string
	registry *Registry
	cache    *Cache
	ln       *net.TCPListener
}

func NewViewerServer(addr string, registry *Registry, cache *Cache) *ViewerServer {
	return &ViewerServer{addr: addr, registry: registry, cache: cache}
}

// Listen binds the viewer port. A bind failure is fatal to the relay and is
// returned to the caller rather than retried.
func (s *ViewerServer) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln.(*net.TCPListener)
	log.Printf("Client server listening on %s", s.ln.Addr())
	return nil
}

// Addr returns the bound listen address. Listen must have succeeded.
func (s *ViewerServer) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve runs the accept loop until ctx is cancelled.
func (s *ViewerServer) Serve(ctx context.Context) error {
	defer s.ln.Close()
	for {
		s.ln.SetDeadline(time.Now().Add(acceptPoll))
		conn, err := s.ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if ctx.Err() != nil {
					return nil
				}
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("Error accepting client: %v", err)
			continue
		}
		go s.handle(ctx, conn)
	}
}

func (s *ViewerServer) handle(ctx context.Context, conn net.Conn) {
	client := s.registry.Register(conn, s.cache.Latest())
	defer s.registry.Deregister(client)

	// Viewers never send application data. Reading serves only to notice
	// the peer closing, with a deadline so shutdown is observed too.
	buf := make([]byte, 1)
	for {
		conn.SetReadDeadline(time.Now().Add(acceptPoll))
		if _, err := conn.Read(buf); err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			return
		}
	}
}
