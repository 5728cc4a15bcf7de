package frame

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrInvalid means a completed buffer did not begin with a JPEG start
	// marker. The caller should drop it and keep reading.
	ErrInvalid = errors.New("buffer does not start with a JPEG marker")
	// ErrTooLarge means the accumulator grew past its cap without seeing
	// an end marker. The caller should reset the connection.
	ErrTooLarge = errors.New("frame exceeds maximum size")
)

const readChunkSize = 4096

// Reader reads frames from a pulled camera stream. The ESP32-CAM sends one
// JPEG at a time, so a frame is complete exactly when the accumulated bytes
// end with the JPEG end marker.
type Reader struct {
	src   io.Reader
	max   int
	chunk []byte
}

// NewReader returns a strict frame reader over src. Accumulation is capped
// at max bytes; a cap of zero or less uses MaxPullFrameSize.
func NewReader(src io.Reader, max int) *Reader {
	if max <= 0 {
		max = MaxPullFrameSize
	}
	return &Reader{src: src, max: max, chunk: make([]byte, readChunkSize)}
}

// ReadFrame blocks until a complete frame has been accumulated and returns
// it. A buffer that completes without a leading start marker yields
// ErrInvalid. Any read error discards the partial accumulation, so a
// disconnect mid-frame never surfaces a partial frame.
func (r *Reader) ReadFrame() ([]byte, error) {
	var acc []byte
	for {
		n, err := r.src.Read(r.chunk)
		if n > 0 {
			acc = append(acc, r.chunk[:n]...)
			if len(acc) >= 4 && bytes.HasSuffix(acc, EndMarker) {
				if !bytes.HasPrefix(acc, StartMarker) {
					return nil, fmt.Errorf("%w (first bytes: % X)", ErrInvalid, acc[:min(4, len(acc))])
				}
				return acc, nil
			}
			if len(acc) > r.max {
				return nil, ErrTooLarge
			}
		}
		if err != nil {
			return nil, err
		}
	}
}
