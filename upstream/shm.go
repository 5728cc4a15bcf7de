package upstream

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"strzcam.com/relay/frame"
)

// SharedMemory reads frames from a file that a co-located camera process
// overwrites with each JPEG, typically under /dev/shm. Write events on the
// file trigger a read; a rewrite with identical bytes is skipped because
// the same write tends to fire two events.
type SharedMemory struct {
	path string
}

func NewSharedMemory(path string) *SharedMemory {
	return &SharedMemory{path: path}
}

func (s *SharedMemory) Run(ctx context.Context, frames chan<- []byte) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	// Watch the directory, not the file: the writer may replace the file
	// rather than write in place.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return err
	}
	log.Printf("Watching %s for frames", s.path)

	var last []byte
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != s.path ||
				(event.Op&fsnotify.Write != fsnotify.Write && event.Op&fsnotify.Create != fsnotify.Create) {
				continue
			}
			data, err := os.ReadFile(s.path)
			if err != nil {
				log.Printf("Error reading frame from %s: %v", s.path, err)
				continue
			}
			if !frame.Valid(data) {
				log.Printf("Invalid JPEG data in %s (first bytes: % X)", s.path, data[:min(4, len(data))])
				continue
			}
			if bytes.Equal(data, last) {
				continue
			}
			last = data
			if !push(ctx, frames, data) {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("Watcher error: %v", err)
		}
	}
}
