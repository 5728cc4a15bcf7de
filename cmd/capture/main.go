// Capture is a small test client for the relay (or the camera directly):
// it grabs a single JPEG to a file, or captures continuously at a fixed
// rate into a directory. The wire protocol is the raw relayed byte stream,
// so it scans for the JPEG markers like any other viewer.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"time"

	"strzcam.com/relay/frame"
)

var (
	flagHost       = flag.String("host", "127.0.0.1", "Relay or camera host")
	flagPort       = flag.Int("port", 8080, "Relay or camera port")
	flagOutput     = flag.String("output", "frame.jpg", "Output file (single capture)")
	flagContinuous = flag.Bool("continuous", false, "Capture continuously into -dir")
	flagDir        = flag.String("dir", "./captures", "Output directory (continuous capture)")
	flagFPS        = flag.Float64("fps", 1, "Captures per second (continuous capture)")
	flagCount      = flag.Int("count", 0, "Stop after this many frames, 0 for unlimited")
	flagTimeout    = flag.Duration("timeout", 10*time.Second, "Connect and read timeout")
)

func main() {
	flag.Parse()
	addr := net.JoinHostPort(*flagHost, strconv.Itoa(*flagPort))

	if !*flagContinuous {
		data, err := captureFrame(addr, *flagTimeout)
		if err != nil {
			log.Fatalf("Capture failed: %v", err)
		}
		if err := os.WriteFile(*flagOutput, data, 0644); err != nil {
			log.Fatalf("Cannot write %s: %v", *flagOutput, err)
		}
		log.Printf("Saved %d bytes to %s", len(data), *flagOutput)
		return
	}

	if err := os.MkdirAll(*flagDir, 0755); err != nil {
		log.Fatalf("Cannot create directory: %v", err)
	}
	interval := time.Duration(float64(time.Second) / *flagFPS)
	log.Printf("Capturing to %s every %v", *flagDir, interval)
	captured := 0
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		data, err := captureFrame(addr, *flagTimeout)
		if err != nil {
			log.Printf("Capture failed: %v", err)
			continue
		}
		i, err := nextFrameIndex(*flagDir)
		if err != nil {
			log.Fatalf("Cannot index %s: %v", *flagDir, err)
		}
		path := fmt.Sprintf("%s/frame%d.jpg", *flagDir, i)
		if err := os.WriteFile(path, data, 0644); err != nil {
			log.Fatalf("Cannot write %s: %v", path, err)
		}
		captured++
		log.Printf("Saved %d bytes to %s", len(data), path)
		if *flagCount > 0 && captured >= *flagCount {
			return
		}
	}
}

// captureFrame connects and reads until one complete JPEG has arrived. The
// relay keeps the connection open, a camera in single-shot mode closes it;
// both end one capture.
func captureFrame(addr string, timeout time.Duration) ([]byte, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(timeout))

	var data []byte
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
			if frame.Valid(data) {
				return data, nil
			}
			if len(data) > frame.MaxPullFrameSize {
				return nil, errors.New("data too large without a complete frame")
			}
		}
		if err != nil {
			if frame.Valid(data) {
				return data, nil
			}
			return nil, fmt.Errorf("no complete frame received: %w", err)
		}
	}
}

// nextFrameIndex returns one past the highest frame number already in dir.
func nextFrameIndex(dir string) (int, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	maxNum := -1
	for _, file := range files {
		if file.Type().IsRegular() {
			var num int
			if _, err := fmt.Sscanf(file.Name(), "frame%d.jpg", &num); err == nil && num > maxNum {
				maxNum = num
			}
		}
	}
	return maxNum + 1, nil
}
