// Package web serves a browser-friendly preview of the relayed stream:
// MJPEG over multipart, single-frame snapshots, and raw JPEG messages over
// WebSocket. It consumes frames through relay subscriptions, never through
// the TCP viewer registry.
package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

// FrameSource is the part of the relay the preview server needs.
type FrameSource interface {
	Subscribe() (<-chan []byte, func())
	Latest() []byte
}

type Server struct {
	src      FrameSource
	upgrader websocket.Upgrader
}

func NewServer(src FrameSource) *Server {
	return &Server{
		src: src,
		upgrader: websocket.Upgrader{
			// The preview page may be served from anywhere.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the preview routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveIndex)
	mux.HandleFunc("/stream", s.serveStream)
	mux.HandleFunc("/snapshot", s.serveSnapshot)
	mux.HandleFunc("/ws", s.serveWS)
	return mux
}

// Run serves the preview endpoints until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	log.Printf("Preview server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	html := `
<!DOCTYPE html>
<html>
<head>
    <title>Camera Relay</title>
</head>
<body>
    <h1>Live Camera Stream</h1>
    <img src="/stream" alt="stream">
    <p><a href="/snapshot">Snapshot</a></p>
</body>
</html>`
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(html))
}

func (s *Server) serveSnapshot(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w)
	latest := s.src.Latest()
	if latest == nil {
		http.Error(w, "no frame received yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(latest)))
	w.Write(latest)
}

func (s *Server) serveStream(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w)
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "close")

	mw := multipart.NewWriter(w)
	mw.SetBoundary("frame")
	defer mw.Close()

	frames, cancel := s.src.Subscribe()
	defer cancel()

	// Start with the cached frame so the image shows up immediately.
	if latest := s.src.Latest(); latest != nil {
		if err := writeJPEGPart(mw, latest); err != nil {
			return
		}
		flush(w)
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if err := writeJPEGPart(mw, f); err != nil {
				return
			}
			flush(w)
		}
	}
}

func writeJPEGPart(mw *multipart.Writer, f []byte) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", "image/jpeg")
	header.Set("Content-Length", fmt.Sprintf("%d", len(f)))
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = part.Write(f)
	return err
}

func flush(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Reads serve only to detect the browser going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	frames, cancel := s.src.Subscribe()
	defer cancel()

	if latest := s.src.Latest(); latest != nil {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.BinaryMessage, latest); err != nil {
			return
		}
	}
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, f); err != nil {
				return
			}
		}
	}
}
