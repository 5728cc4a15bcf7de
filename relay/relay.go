// Package relay fans JPEG frames from one camera source out to any number
// of TCP viewers. The wire contract on both sides is a raw byte stream of
// concatenated JPEGs, bounded only by the FF D8 / FF D9 markers.
package relay

import (
	"context"
	"log"
	"sync"
	"time"
)

// Source produces JPEG frames from some acquisition strategy and delivers
// them on the provided channel until ctx is cancelled. Exactly one source
// runs per relay process.
type Source interface {
	Run(ctx context.Context, frames chan<- []byte) error
}

// Config addresses the relay. Zero values fall back to defaults.
type Config struct {
	// ViewerAddr is the host:port viewers connect to.
	ViewerAddr string
	// WriteTimeout bounds each viewer write during a broadcast.
	WriteTimeout time.Duration
	// Debug enables the per-frame log line.
	Debug bool
}

// Relay owns the frame cache, the viewer registry and the viewer server,
// and publishes every frame a source produces. In-process consumers (the
// HTTP preview server) get frames via Subscribe instead of the registry.
type Relay struct {
	cfg      Config
	cache    *Cache
	registry *Registry
	stats    *Stats
	viewer   *ViewerServer
	frames   chan []byte

	mu      sync.Mutex
	subs    map[uint64]chan []byte
	nextSub uint64
}

func New(cfg Config) *Relay {
	r := &Relay{
		cfg:      cfg,
		cache:    &Cache{},
		registry: NewRegistry(cfg.WriteTimeout),
		stats:    NewStats(),
		frames:   make(chan []byte, 1),
		subs:     make(map[uint64]chan []byte),
	}
	r.viewer = NewViewerServer(cfg.ViewerAddr, r.registry, r.cache)
	return r
}

// Listen binds the viewer port. Must be called before Run; a failure here
// means the relay cannot fulfil its contract at all.
func (r *Relay) Listen() error {
	return r.viewer.Listen()
}

// ViewerAddr returns the bound viewer address. Listen must have succeeded.
func (r *Relay) ViewerAddr() string {
	return r.viewer.Addr().String()
}

// Run starts the source and the publish loop, then serves viewers until
// ctx is cancelled. When the accept loop exits all remaining viewer
// connections are closed.
func (r *Relay) Run(ctx context.Context, src Source) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srcDone := make(chan error, 1)
	go func() {
		err := src.Run(ctx, r.frames)
		srcDone <- err
		if err != nil && ctx.Err() == nil {
			// Typically a bind failure in push mode; the relay cannot
			// fulfil its contract without a source, so shut down.
			log.Printf("Upstream source failed: %v", err)
			cancel()
		}
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case f := <-r.frames:
				r.Publish(f)
			}
		}
	}()

	err := r.viewer.Serve(ctx)
	cancel()
	r.registry.CloseAll()
	r.closeSubscribers()
	if err == nil {
		select {
		case srcErr := <-srcDone:
			err = srcErr
		default:
		}
	}
	return err
}

// Publish stores f as the latest frame and fans it out to every viewer and
// subscriber. Frames are immutable once extracted, so they are handed over
// by reference everywhere.
func (r *Relay) Publish(f []byte) {
	seq := r.stats.AddFrame(len(f))
	if r.cfg.Debug {
		log.Printf("Frame #%d: %d bytes (%.1f KB)", seq, len(f), float64(len(f))/1024)
	}
	r.cache.Store(f)
	r.registry.Broadcast(f)

	r.mu.Lock()
	for _, ch := range r.subs {
		select {
		case ch <- f:
		default:
			// Subscriber is slow, drop its oldest frame. The channel
			// holds 2 so a concurrent read cannot deadlock this swap.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- f:
			default:
			}
		}
	}
	r.mu.Unlock()
}

// Subscribe returns a channel of frames for an in-process consumer and a
// cancel function that must be called when done. Slow consumers lose old
// frames rather than stalling the relay.
func (r *Relay) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 2)
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.mu.Unlock()
	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

func (r *Relay) closeSubscribers() {
	r.mu.Lock()
	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
	r.mu.Unlock()
}

// Latest returns the cached frame, or nil before the first frame arrives.
func (r *Relay) Latest() []byte {
	return r.cache.Latest()
}

// Stats returns the relay's traffic counters.
func (r *Relay) Stats() *Stats {
	return r.stats
}

// ClientCount returns the number of connected TCP viewers.
func (r *Relay) ClientCount() int {
	return r.registry.Count()
}

// Summary renders the periodic stats line.
func (r *Relay) Summary() string {
	return r.stats.Summary(r.registry.Count())
}
