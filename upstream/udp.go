package upstream

import (
	"context"
	"encoding/binary"
	"log"
	"net"
	"time"

	"strzcam.com/relay/frame"
)

// The camera fragments each JPEG into datagrams with a 12 byte header:
// frame id u32, fragment index u16, total fragments u16, total size u32,
// all big endian.
const (
	udpHeaderSize    = 12
	maxDatagramSize  = 1500
	fragmentTimeout  = 500 * time.Millisecond
	maxPendingFrames = 3
)

type pendingFrame struct {
	fragments [][]byte
	received  int
	totalSize int
	created   time.Time
}

func newPendingFrame(totalFragments, totalSize int) *pendingFrame {
	return &pendingFrame{
		fragments: make([][]byte, totalFragments),
		totalSize: totalSize,
		created:   time.Now(),
	}
}

func (p *pendingFrame) addFragment(index int, data []byte) {
	if p.fragments[index] != nil {
		return
	}
	p.fragments[index] = data
	p.received++
}

func (p *pendingFrame) complete() bool {
	return p.received == len(p.fragments)
}

func (p *pendingFrame) expired() bool {
	return time.Since(p.created) > fragmentTimeout
}

func (p *pendingFrame) assemble() []byte {
	out := make([]byte, 0, p.totalSize)
	for _, frag := range p.fragments {
		out = append(out, frag...)
	}
	return out
}

// assembler rebuilds frames from fragments. It tolerates loss by expiring
// incomplete frames and bounds memory by keeping at most a few in flight.
type assembler struct {
	pending      map[uint32]*pendingFrame
	maxFrameSize int
}

func newAssembler(maxFrameSize int) *assembler {
	return &assembler{
		pending:      make(map[uint32]*pendingFrame),
		maxFrameSize: maxFrameSize,
	}
}

// add consumes one datagram and returns a completed frame, or nil.
func (a *assembler) add(pkt []byte) []byte {
	if len(pkt) < udpHeaderSize {
		return nil
	}
	frameID := binary.BigEndian.Uint32(pkt[0:4])
	fragIdx := int(binary.BigEndian.Uint16(pkt[4:6]))
	totalFrags := int(binary.BigEndian.Uint16(pkt[6:8]))
	totalSize := int(binary.BigEndian.Uint32(pkt[8:12]))
	if totalFrags == 0 || fragIdx >= totalFrags || totalSize > a.maxFrameSize {
		return nil
	}

	pf, ok := a.pending[frameID]
	if !ok {
		for id, old := range a.pending {
			if old.expired() {
				delete(a.pending, id)
			}
		}
		if len(a.pending) >= maxPendingFrames {
			a.dropOldest()
		}
		pf = newPendingFrame(totalFrags, totalSize)
		a.pending[frameID] = pf
	}
	if fragIdx >= len(pf.fragments) {
		return nil
	}
	data := make([]byte, len(pkt)-udpHeaderSize)
	copy(data, pkt[udpHeaderSize:])
	pf.addFragment(fragIdx, data)
	if !pf.complete() {
		return nil
	}
	delete(a.pending, frameID)
	return pf.assemble()
}

func (a *assembler) dropOldest() {
	var oldestID uint32
	var oldest *pendingFrame
	for id, pf := range a.pending {
		if oldest == nil || pf.created.Before(oldest.created) {
			oldestID = id
			oldest = pf
		}
	}
	if oldest != nil {
		delete(a.pending, oldestID)
	}
}

// UDPReceiver accepts fragmented frames pushed over UDP, for cameras on
// links where TCP head-of-line blocking hurts too much. Lost fragments cost
// the frame, never the stream.
type UDPReceiver struct {
	addr         string
	maxFrameSize int
}

func NewUDPReceiver(addr string) *UDPReceiver {
	return &UDPReceiver{addr: addr, maxFrameSize: frame.MaxPushBufferSize}
}

func (u *UDPReceiver) Run(ctx context.Context, frames chan<- []byte) error {
	pc, err := net.ListenPacket("udp", u.addr)
	if err != nil {
		return err
	}
	defer pc.Close()
	log.Printf("UDP receiver listening on %s", pc.LocalAddr())

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			pc.Close()
		case <-done:
		}
	}()

	asm := newAssembler(u.maxFrameSize)
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("UDP read error: %v", err)
			continue
		}
		f := asm.add(buf[:n])
		if f == nil {
			continue
		}
		if !frame.Valid(f) {
			log.Printf("Invalid JPEG data from %s (first bytes: % X)", addr, f[:min(4, len(f))])
			continue
		}
		if !push(ctx, frames, f) {
			return nil
		}
	}
}
