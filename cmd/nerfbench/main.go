// Command nerfbench submits render requests to a NeRF rendering controller
// and reports per-task timings and device memory usage.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/turbonerf"
	_ "github.com/gogpu/turbonerf/gpu"
)

func main() {
	var (
		width   = flag.Int("width", 1920, "frame width in pixels")
		height  = flag.Int("height", 1080, "frame height in pixels")
		samples = flag.Int("samples", turbonerf.DefaultSamplesPerRay, "march samples per ray")
		batch   = flag.Int("batch", 0, "execution contexts (0 = auto)")
		pattern = flag.String("pattern", "linear", "chunking pattern: linear, interleaved, tiles")
		frames  = flag.Int("frames", 1, "number of frames to render")
		verbose = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	turbonerf.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	var p turbonerf.RenderPattern
	switch *pattern {
	case "linear":
		p = turbonerf.LinearChunks
	case "interleaved":
		p = turbonerf.InterleavedLines
	case "tiles":
		p = turbonerf.RectangularTiles
	default:
		log.Fatalf("unknown pattern %q", *pattern)
	}

	ctrl, err := turbonerf.New(
		turbonerf.WithPattern(p),
		turbonerf.WithBatchSize(*batch),
	)
	if err != nil {
		log.Fatalf("controller: %v", err)
	}
	defer ctrl.Close()

	cam := turbonerf.Camera{
		Transform: [12]float32{
			1, 0, 0, 0,
			0, 1, 0, 0,
			0, 0, 1, -4,
		},
		FocalX: float32(*width) / 2,
		FocalY: float32(*width) / 2,
	}

	log.Printf("rendering %d frame(s) at %dx%d, %s over %d contexts",
		*frames, *width, *height, ctrl.Pattern(), ctrl.BatchSize())

	for f := 0; f < *frames; f++ {
		req := turbonerf.NewRenderRequest(uint32(*width), uint32(*height), cam)
		req.SamplesPerRay = uint32(*samples)

		start := time.Now()
		if err := ctrl.Submit(req); err != nil {
			log.Fatalf("frame %d: submit: %v", f, err)
		}

		var peak uint64
		for _, m := range ctrl.DeviceMemoryAllocated() {
			peak += m
		}

		for done := 0; done < ctrl.BatchSize(); done++ {
			res := <-ctrl.Completions()
			if res.Err != nil {
				log.Fatalf("frame %d: task on context %d: %v", f, res.Slot, res.Err)
			}
		}
		log.Printf("frame %d: %d rays in %v, %d MB device memory",
			f, req.RayCount(), time.Since(start).Round(time.Millisecond), peak/(1024*1024))
	}
}
