package upstream

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFrameFile(t *testing.T, path string, data []byte) {
	t.Helper()
	file, err := os.Create(path)
	if err != nil {
		t.Fatal("Failed to create frame file:", err)
	}
	defer file.Close()
	file.Write(data)
	file.Sync()
}

func TestSharedMemoryReceivesFrame(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "video_frame")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSharedMemory(path)
	frames := make(chan []byte, 1)
	go s.Run(ctx, frames)
	time.Sleep(10 * time.Millisecond)

	writeFrameFile(t, path, frameOne)

	select {
	case f := <-frames:
		if !bytes.Equal(f, frameOne) {
			t.Errorf("Expected frame % X, got % X", frameOne, f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("No frame received from shared memory")
	}
}

func TestSharedMemoryIgnoresInvalidData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "video_frame")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSharedMemory(path)
	frames := make(chan []byte, 2)
	go s.Run(ctx, frames)
	time.Sleep(10 * time.Millisecond)

	writeFrameFile(t, path, []byte("not a jpeg"))
	writeFrameFile(t, path, frameTwo)

	select {
	case f := <-frames:
		if !bytes.Equal(f, frameTwo) {
			t.Errorf("Invalid data must be skipped, got % X", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("No frame received from shared memory")
	}
}

func TestSharedMemoryIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "video_frame")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSharedMemory(path)
	frames := make(chan []byte, 1)
	go s.Run(ctx, frames)
	time.Sleep(10 * time.Millisecond)

	writeFrameFile(t, filepath.Join(dir, "unrelated"), frameOne)

	select {
	case f := <-frames:
		t.Errorf("Expected no frame from an unrelated file, got % X", f)
	case <-time.After(200 * time.Millisecond):
	}
}
