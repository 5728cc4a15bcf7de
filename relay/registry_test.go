package relay

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"
)

var testFrame = []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}

// reader pulls n bytes off conn in the background.
func reader(conn net.Conn, n int) chan []byte {
	out := make(chan []byte, 1)
	go func() {
		buf := make([]byte, n)
		if _, err := io.ReadFull(conn, buf); err != nil {
			out <- nil
			return
		}
		out <- buf
	}()
	return out
}

func TestBroadcastDeliversToAllViewers(t *testing.T) {
	r := NewRegistry(time.Second)
	serverA, viewerA := net.Pipe()
	serverB, viewerB := net.Pipe()
	defer viewerA.Close()
	defer viewerB.Close()

	r.Register(serverA, nil)
	r.Register(serverB, nil)
	gotA := reader(viewerA, len(testFrame))
	gotB := reader(viewerB, len(testFrame))

	r.Broadcast(testFrame)

	for name, got := range map[string]chan []byte{"A": gotA, "B": gotB} {
		select {
		case f := <-got:
			if !bytes.Equal(f, testFrame) {
				t.Errorf("Viewer %s: expected % X, got % X", name, testFrame, f)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Viewer %s did not receive the frame", name)
		}
	}
}

func TestBroadcastKeepsFrameOrder(t *testing.T) {
	r := NewRegistry(time.Second)
	server, viewer := net.Pipe()
	defer viewer.Close()
	r.Register(server, nil)

	frames := [][]byte{
		{0xFF, 0xD8, 0x01, 0xFF, 0xD9},
		{0xFF, 0xD8, 0x02, 0xFF, 0xD9},
		{0xFF, 0xD8, 0x03, 0xFF, 0xD9},
	}
	var expected []byte
	for _, f := range frames {
		expected = append(expected, f...)
	}
	got := reader(viewer, len(expected))

	for _, f := range frames {
		r.Broadcast(f)
	}

	select {
	case stream := <-got:
		if !bytes.Equal(stream, expected) {
			t.Errorf("Expected stream % X, got % X", expected, stream)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Viewer did not receive all frames")
	}
}

func TestBroadcastPrunesDeadViewer(t *testing.T) {
	r := NewRegistry(time.Second)
	serverA, viewerA := net.Pipe()
	serverB, viewerB := net.Pipe()
	defer viewerB.Close()

	r.Register(serverA, nil)
	r.Register(serverB, nil)
	viewerA.Close()
	gotB := reader(viewerB, len(testFrame))

	r.Broadcast(testFrame)

	select {
	case f := <-gotB:
		if !bytes.Equal(f, testFrame) {
			t.Errorf("Healthy viewer got wrong bytes: % X", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("A dead viewer must not block delivery to the others")
	}
	if r.Count() != 1 {
		t.Errorf("Expected the dead viewer to be removed, count is %d", r.Count())
	}
}

func TestRegisterWritesCachedFrame(t *testing.T) {
	r := NewRegistry(time.Second)
	server, viewer := net.Pipe()
	defer viewer.Close()
	got := reader(viewer, len(testFrame))

	r.Register(server, testFrame)

	select {
	case f := <-got:
		if !bytes.Equal(f, testFrame) {
			t.Errorf("Expected cached frame % X, got % X", testFrame, f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("New viewer did not receive the cached frame")
	}
}

func TestDeregisterIsIdempotent(t *testing.T) {
	r := NewRegistry(time.Second)
	server, viewer := net.Pipe()
	defer viewer.Close()
	c := r.Register(server, nil)
	r.Deregister(c)
	r.Deregister(c)
	if r.Count() != 0 {
		t.Errorf("Expected empty registry, count is %d", r.Count())
	}
}

func TestCloseAllEmptiesRegistry(t *testing.T) {
	r := NewRegistry(time.Second)
	serverA, viewerA := net.Pipe()
	serverB, viewerB := net.Pipe()
	defer viewerA.Close()
	defer viewerB.Close()
	r.Register(serverA, nil)
	r.Register(serverB, nil)
	r.CloseAll()
	if r.Count() != 0 {
		t.Errorf("Expected empty registry, count is %d", r.Count())
	}
}
