// Package upstream implements the camera-side acquisition strategies. Every
// variant produces validated JPEG frames on a channel; the relay does not
// care which one is running.
package upstream

import (
	"context"
	"time"
)

const (
	// DefaultConnectTimeout bounds a single dial attempt when pulling.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultBackoff is the pause before retrying a failed or dropped
	// camera connection.
	DefaultBackoff = 5 * time.Second

	acceptPoll    = 1 * time.Second
	readChunkSize = 4096
)

// push hands a frame to the relay unless shutdown wins first.
func push(ctx context.Context, frames chan<- []byte, f []byte) bool {
	select {
	case frames <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

// sleep waits d or until ctx is cancelled, reporting whether to keep going.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
