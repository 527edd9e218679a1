// Command virtgpu-sim runs the full driver stack against the
// in-process device model: it opens the device, sets up a framebuffer
// on scanout 0, animates a color gradient with a moving cursor, and
// prints round-trip metrics on exit.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/calder-f/go-virtgpu"
	"github.com/calder-f/go-virtgpu/internal/logging"
)

func main() {
	var (
		frames  = flag.Int("frames", 60, "Number of frames to render")
		latency = flag.Duration("latency", 50*time.Microsecond, "Simulated device latency per command")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	sim := virtgpu.NewSimTransport()
	sim.SetQueueLatency(virtgpu.ControlQueueIndex, *latency)
	defer sim.Close()

	dev, err := virtgpu.Open(sim, virtgpu.Config{Logger: logger})
	if err != nil {
		log.Fatalf("open device: %v", err)
	}
	defer dev.Close()

	w, h, err := dev.Resolution()
	if err != nil {
		logger.Error("query resolution", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Display: %dx%d\n", w, h)

	if dev.EDIDSupported() {
		if blob, err := dev.RequestEDIDInfo(0); err == nil {
			fmt.Printf("EDID: %d bytes\n", len(blob))
		}
	}

	fb, err := dev.SetupFramebuffer(0, w, h)
	if err != nil {
		logger.Error("setup framebuffer", "error", err)
		os.Exit(1)
	}

	cursor, err := dev.SetupCursor(arrowCursor(), 0, w/2, h/2, 0, 0)
	if err != nil {
		logger.Error("setup cursor", "error", err)
		os.Exit(1)
	}

	start := time.Now()
	for frame := 0; frame < *frames; frame++ {
		drawGradient(fb, frame)
		if err := fb.Flush(); err != nil {
			logger.Error("flush", "frame", frame, "error", err)
			os.Exit(1)
		}
		if err := cursor.Move(0, uint32(frame*7)%w, uint32(frame*3)%h); err != nil {
			logger.Error("move cursor", "frame", frame, "error", err)
			os.Exit(1)
		}
	}
	elapsed := time.Since(start)

	snap := dev.Metrics().Snapshot()
	fmt.Printf("Rendered %d frames in %v (%.1f fps)\n",
		*frames, elapsed.Round(time.Millisecond),
		float64(*frames)/elapsed.Seconds())
	fmt.Printf("Control ops: %d (%d errors)\n", snap.ControlOps, snap.ControlErrors)
	fmt.Printf("Cursor ops:  %d (%d errors)\n", snap.CursorOps, snap.CursorErrors)
	fmt.Printf("Transferred: %d bytes\n", snap.TransferredBytes)
	fmt.Printf("Latency: avg %v, p50 %v, p99 %v\n",
		time.Duration(snap.AvgLatencyNs),
		time.Duration(snap.LatencyP50Ns),
		time.Duration(snap.LatencyP99Ns))
}

// drawGradient fills the framebuffer with a gradient that shifts each
// frame, so successive flushes carry different pixels.
func drawGradient(fb *virtgpu.Framebuffer, frame int) {
	p := fb.Bytes()
	shift := byte(frame * 4)
	for y := uint32(0); y < fb.Height; y++ {
		row := int(y) * int(fb.Width) * 4
		g := byte(y) + shift
		for x := uint32(0); x < fb.Width; x++ {
			off := row + int(x)*4
			p[off+0] = byte(x) + shift
			p[off+1] = g
			p[off+2] = 0x40
			p[off+3] = 0xff
		}
	}
}

// arrowCursor builds a solid white 64x64 square with a black border,
// good enough to see against the gradient.
func arrowCursor() []byte {
	const dim = virtgpu.CursorDim
	img := make([]byte, dim*dim*4)
	for y := 0; y < dim; y++ {
		for x := 0; x < dim; x++ {
			off := (y*dim + x) * 4
			edge := x == 0 || y == 0 || x == dim-1 || y == dim-1
			if edge {
				img[off+3] = 0xff
			} else {
				img[off+0] = 0xff
				img[off+1] = 0xff
				img[off+2] = 0xff
				img[off+3] = 0xff
			}
		}
	}
	return img
}
