package upstream

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"
)

func datagram(frameID uint32, fragIdx, totalFrags uint16, totalSize uint32, payload []byte) []byte {
	pkt := make([]byte, udpHeaderSize+len(payload))
	binary.BigEndian.PutUint32(pkt[0:4], frameID)
	binary.BigEndian.PutUint16(pkt[4:6], fragIdx)
	binary.BigEndian.PutUint16(pkt[6:8], totalFrags)
	binary.BigEndian.PutUint32(pkt[8:12], totalSize)
	copy(pkt[udpHeaderSize:], payload)
	return pkt
}

func TestAssemblerSingleFragment(t *testing.T) {
	payload := []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9}
	a := newAssembler(1024)
	f := a.add(datagram(1, 0, 1, uint32(len(payload)), payload))
	if !bytes.Equal(f, payload) {
		t.Errorf("Expected % X, got % X", payload, f)
	}
}

func TestAssemblerReassemblesInOrder(t *testing.T) {
	a := newAssembler(1024)
	if f := a.add(datagram(7, 0, 2, 4, []byte{0xFF, 0xD8})); f != nil {
		t.Fatal("Frame must not complete with a fragment missing")
	}
	f := a.add(datagram(7, 1, 2, 4, []byte{0xFF, 0xD9}))
	expected := []byte{0xFF, 0xD8, 0xFF, 0xD9}
	if !bytes.Equal(f, expected) {
		t.Errorf("Expected % X, got % X", expected, f)
	}
}

func TestAssemblerReassemblesOutOfOrder(t *testing.T) {
	a := newAssembler(1024)
	a.add(datagram(7, 1, 2, 4, []byte{0xFF, 0xD9}))
	f := a.add(datagram(7, 0, 2, 4, []byte{0xFF, 0xD8}))
	expected := []byte{0xFF, 0xD8, 0xFF, 0xD9}
	if !bytes.Equal(f, expected) {
		t.Errorf("Expected % X, got % X", expected, f)
	}
}

func TestAssemblerIgnoresDuplicateFragment(t *testing.T) {
	a := newAssembler(1024)
	a.add(datagram(7, 0, 2, 4, []byte{0xFF, 0xD8}))
	if f := a.add(datagram(7, 0, 2, 4, []byte{0xFF, 0xD8})); f != nil {
		t.Error("A duplicate fragment must not complete the frame")
	}
}

func TestAssemblerRejectsBadHeader(t *testing.T) {
	a := newAssembler(1024)
	if f := a.add([]byte{1, 2, 3}); f != nil {
		t.Error("A short packet must be dropped")
	}
	if f := a.add(datagram(1, 5, 2, 4, []byte{0x00})); f != nil {
		t.Error("A fragment index past the total must be dropped")
	}
	if f := a.add(datagram(1, 0, 0, 4, []byte{0x00})); f != nil {
		t.Error("Zero total fragments must be dropped")
	}
	if f := a.add(datagram(1, 0, 1, 2048, []byte{0x00})); f != nil {
		t.Error("An oversized frame must be dropped")
	}
}

func TestAssemblerExpiresStaleFrames(t *testing.T) {
	a := newAssembler(1024)
	a.add(datagram(1, 0, 2, 4, []byte{0xFF, 0xD8}))
	a.pending[1].created = time.Now().Add(-2 * fragmentTimeout)
	// A new frame id triggers the sweep.
	a.add(datagram(2, 0, 2, 4, []byte{0xFF, 0xD8}))
	if _, ok := a.pending[1]; ok {
		t.Error("Expected the stale frame to be expired")
	}
}

func TestAssemblerBoundsPendingFrames(t *testing.T) {
	a := newAssembler(1024)
	for id := uint32(1); id <= maxPendingFrames+2; id++ {
		a.add(datagram(id, 0, 2, 4, []byte{0xFF, 0xD8}))
	}
	if len(a.pending) > maxPendingFrames {
		t.Errorf("Expected at most %d pending frames, got %d", maxPendingFrames, len(a.pending))
	}
}
