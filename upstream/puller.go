package upstream

import (
	"context"
	"errors"
	"log"
	"net"
	"time"

	"strzcam.com/relay/frame"
)

// Puller dials out to the camera and reads its stream with the strict
// policy: the camera sends one JPEG at a time, so a frame is complete when
// the accumulated bytes end with the JPEG end marker. Any I/O error or
// oversized frame drops the connection and redials after a backoff.
type Puller struct {
	addr           string
	connectTimeout time.Duration
	backoff        time.Duration
	maxFrameSize   int
}

func NewPuller(addr string) *Puller {
	return &Puller{
		addr:           addr,
		connectTimeout: DefaultConnectTimeout,
		backoff:        DefaultBackoff,
		maxFrameSize:   frame.MaxPullFrameSize,
	}
}

func (p *Puller) Run(ctx context.Context, frames chan<- []byte) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("Connecting to camera at %s", p.addr)
		d := net.Dialer{Timeout: p.connectTimeout}
		conn, err := d.DialContext(ctx, "tcp", p.addr)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("Camera connect failed: %v", err)
			if !sleep(ctx, p.backoff) {
				return nil
			}
			continue
		}
		log.Printf("Connected to camera at %s", p.addr)
		p.stream(ctx, conn, frames)
		conn.Close()
		if !sleep(ctx, p.backoff) {
			return nil
		}
	}
}

// stream reads frames until the connection drops or the relay stops.
func (p *Puller) stream(ctx context.Context, conn net.Conn, frames chan<- []byte) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	r := frame.NewReader(conn, p.maxFrameSize)
	for {
		f, err := r.ReadFrame()
		if err != nil {
			switch {
			case errors.Is(err, frame.ErrInvalid):
				log.Printf("Invalid JPEG data received: %v", err)
				continue
			case errors.Is(err, frame.ErrTooLarge):
				log.Printf("Frame too large, resetting camera connection")
				return
			default:
				if ctx.Err() == nil {
					log.Printf("Camera read error: %v", err)
				}
				return
			}
		}
		if !push(ctx, frames, f) {
			return
		}
	}
}
