package upstream

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"time"

	"strzcam.com/relay/frame"
)

// Listener accepts inbound connections from a camera that pushes its
// stream, the mode used when the camera sits behind NAT and the relay has
// the public address. Each connection is scanned for frames independently;
// when the camera drops it simply re-dials, the listener persists.
type Listener struct {
	addr          string
	maxBufferSize int
}

func NewListener(addr string) *Listener {
	return &Listener{addr: addr, maxBufferSize: frame.MaxPushBufferSize}
}

func (l *Listener) Run(ctx context.Context, frames chan<- []byte) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	tln := ln.(*net.TCPListener)
	log.Printf("Camera server listening on %s", tln.Addr())
	for {
		tln.SetDeadline(time.Now().Add(acceptPoll))
		conn, err := tln.Accept()
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
			log.Printf("Error accepting camera: %v", err)
			continue
		}
		go l.handle(ctx, conn, frames)
	}
}

func (l *Listener) handle(ctx context.Context, conn net.Conn, frames chan<- []byte) {
	addr := conn.RemoteAddr()
	log.Printf("Camera connected from %s", addr)
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	ex := frame.NewExtractor(l.maxBufferSize)
	buf := make([]byte, readChunkSize)
	count := 0
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, f := range ex.Feed(buf[:n]) {
				count++
				if !push(ctx, frames, f) {
					return
				}
			}
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				log.Printf("Camera %s read error: %v", addr, err)
			}
			log.Printf("Camera %s disconnected. Frames received: %d", addr, count)
			return
		}
	}
}
