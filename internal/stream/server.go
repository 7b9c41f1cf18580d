package stream

import (
	"context"
	"errors"
	"log"
	"net"

	"github.com/banshee-data/eventcam/internal/events"
)

// Source supplies containers to forward; device sessions satisfy it.
type Source interface {
	NextContainer(ctx context.Context) (*events.EventPacketContainer, error)
}

// Server forwards a container source to TCP subscribers. Each connection
// gets its own preamble and then every container the source produces while
// the connection lives.
type Server struct {
	ln       net.Listener
	sourceID int16
	src      Source
}

// NewServer listens on addr.
func NewServer(addr string, sourceID int16, src Source) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{ln: ln, sourceID: sourceID, src: src}, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve accepts subscribers until ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
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
			return err
		}
		log.Printf("stream: subscriber connected from %s", conn.RemoteAddr())
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	w, err := NewWriter(conn, s.sourceID)
	if err != nil {
		log.Printf("stream: %s: %v", conn.RemoteAddr(), err)
		return
	}
	for {
		c, err := s.src.NextContainer(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Printf("stream: %s: source finished: %v", conn.RemoteAddr(), err)
			}
			return
		}
		if err := w.WriteContainer(c); err != nil {
			log.Printf("stream: %s: subscriber dropped: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

// Dial connects to a stream server and validates its preamble.
func Dial(addr string) (*Reader, net.Conn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	r, err := NewReader(conn)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return r, conn, nil
}
