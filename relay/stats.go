package relay

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Stats counts relayed traffic. All counters are atomic so sources and the
// periodic printer never contend.
type Stats struct {
	frames atomic.Uint64
	bytes  atomic.Uint64
	start  time.Time
}

func NewStats() *Stats {
	return &Stats{start: time.Now()}
}

// AddFrame records one relayed frame of n bytes and returns its sequence
// number, counted from 1.
func (s *Stats) AddFrame(n int) uint64 {
	s.bytes.Add(uint64(n))
	return s.frames.Add(1)
}

func (s *Stats) Frames() uint64 {
	return s.frames.Load()
}

func (s *Stats) Bytes() uint64 {
	return s.bytes.Load()
}

// FPS returns the average frame rate since start.
func (s *Stats) FPS() float64 {
	elapsed := time.Since(s.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.frames.Load()) / elapsed
}

// Summary renders a one-line report for the periodic stats log.
func (s *Stats) Summary(activeClients int) string {
	frames := s.frames.Load()
	bytes := s.bytes.Load()
	avgSize := 0.0
	if frames > 0 {
		avgSize = float64(bytes) / float64(frames) / 1024
	}
	return fmt.Sprintf("Uptime %.1f min | %d frames | %.2f MB | %.2f fps avg | %.1f KB avg frame | %d clients",
		time.Since(s.start).Minutes(), frames, float64(bytes)/1024/1024, s.FPS(), avgSize, activeClients)
}
