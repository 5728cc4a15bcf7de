package frame

import "bytes"

// Extractor scans a pushed byte stream for JPEG frames. The camera writes
// frames back to back with no framing envelope, and the network chunks the
// stream arbitrarily, so the extractor keeps a rolling buffer across reads.
// A single read may complete zero, one or several frames.
type Extractor struct {
	buf []byte
	max int
}

// NewExtractor returns an extractor whose scan buffer is capped at max
// bytes. A cap of zero or less uses MaxPushBufferSize.
func NewExtractor(max int) *Extractor {
	if max <= 0 {
		max = MaxPushBufferSize
	}
	return &Extractor{max: max}
}

// Feed appends p to the scan buffer and returns every complete frame found.
// Returned frames are copies and stay valid across further feeds. Bytes
// preceding a start marker are dropped; a frame span larger than the cap is
// discarded without being emitted.
func (e *Extractor) Feed(p []byte) [][]byte {
	e.buf = append(e.buf, p...)
	var frames [][]byte
	for {
		start := bytes.Index(e.buf, StartMarker)
		if start == -1 {
			// Keep the last byte, it may be the first half of a marker
			// split across reads.
			if len(e.buf) > 1 {
				e.buf = e.buf[len(e.buf)-1:]
			}
			break
		}
		rel := bytes.Index(e.buf[start+2:], EndMarker)
		if rel == -1 {
			// Incomplete frame, wait for more data. Noise before the
			// start marker is dropped now so the buffer cannot grow
			// from it.
			e.buf = e.buf[start:]
			break
		}
		end := start + 2 + rel + 2
		if end-start <= e.max {
			f := make([]byte, end-start)
			copy(f, e.buf[start:end])
			frames = append(frames, f)
		}
		e.buf = e.buf[end:]
	}
	if len(e.buf) > e.max {
		e.buf = nil
	}
	return frames
}

// Pending returns the number of buffered bytes not yet part of a complete
// frame.
func (e *Extractor) Pending() int {
	return len(e.buf)
}
