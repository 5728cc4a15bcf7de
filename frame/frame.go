package frame

import "bytes"

var (
	StartMarker = []byte{0xFF, 0xD8}
	EndMarker   = []byte{0xFF, 0xD9}
)

const (
	// MaxPullFrameSize caps a single accumulated frame when pulling from
	// the camera.
	MaxPullFrameSize = 1024 * 1024
	// MaxPushBufferSize caps the scan buffer when the camera pushes its
	// stream to us.
	MaxPushBufferSize = 500 * 1024
)

// Valid reports whether b is a complete JPEG image, i.e. bounded by the
// start and end markers.
func Valid(b []byte) bool {
	return len(b) >= 4 && bytes.HasPrefix(b, StartMarker) && bytes.HasSuffix(b, EndMarker)
}
