package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"strzcam.com/relay/relay"
	"strzcam.com/relay/upstream"
	"strzcam.com/relay/web"
)

const statsInterval = 30 * time.Second

var (
	flagMode       = flag.String("mode", "pull", "Frame acquisition mode: pull, push, udp or shm")
	flagCameraHost = flag.String("camera-host", "", "Camera address to pull frames from (pull mode)")
	flagCameraPort = flag.Int("camera-port", 1234, "Camera port to pull frames from (pull mode)")
	flagSenderHost = flag.String("sender-host", "0.0.0.0", "Interface to listen on for the camera (push mode)")
	flagSenderPort = flag.Int("sender-port", 4444, "Port for the camera to connect to (push mode)")
	flagUDPPort    = flag.Int("udp-port", 8081, "Port for fragmented UDP frames (udp mode)")
	flagShmPath    = flag.String("shm-path", "/dev/shm/video_frame", "Frame file to watch (shm mode)")
	flagClientHost = flag.String("client-host", "0.0.0.0", "Interface to listen on for viewers")
	flagClientPort = flag.Int("client-port", 8080, "Port for viewers to connect to")
	flagHTTPPort   = flag.Int("http-port", 0, "Port for the HTTP preview server (0 disables it)")
	flagDebug      = flag.Bool("debug", false, "Log every relayed frame")
)

func main() {
	flag.Parse()

	var src relay.Source
	switch *flagMode {
	case "pull":
		if *flagCameraHost == "" {
			log.Fatal("-camera-host is required in pull mode")
		}
		src = upstream.NewPuller(net.JoinHostPort(*flagCameraHost, strconv.Itoa(*flagCameraPort)))
	case "push":
		src = upstream.NewListener(net.JoinHostPort(*flagSenderHost, strconv.Itoa(*flagSenderPort)))
	case "udp":
		src = upstream.NewUDPReceiver(net.JoinHostPort(*flagSenderHost, strconv.Itoa(*flagUDPPort)))
	case "shm":
		src = upstream.NewSharedMemory(*flagShmPath)
	default:
		log.Fatalf("Unknown mode %q", *flagMode)
	}

	r := relay.New(relay.Config{
		ViewerAddr: net.JoinHostPort(*flagClientHost, strconv.Itoa(*flagClientPort)),
		Debug:      *flagDebug,
	})
	if err := r.Listen(); err != nil {
		log.Fatalf("Cannot listen for viewers: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *flagHTTPPort > 0 {
		preview := web.NewServer(r)
		go func() {
			addr := net.JoinHostPort(*flagClientHost, strconv.Itoa(*flagHTTPPort))
			if err := preview.Run(ctx, addr); err != nil {
				log.Printf("Preview server failed: %v", err)
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if r.Stats().Frames() > 0 {
					log.Print(r.Summary())
				}
			}
		}
	}()

	log.Printf("Starting camera relay in %s mode", *flagMode)
	if err := r.Run(ctx, src); err != nil {
		log.Fatalf("Relay failed: %v", err)
	}
	log.Println("Server stopped")
}
