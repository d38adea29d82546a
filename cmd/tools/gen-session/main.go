// Command gen-session writes a synthetic SLAM session for replay testing.
package main

import (
	"flag"
	"log"

	"github.com/banshee-data/slam.viewer/internal/recorder"
)

func main() {
	def := recorder.DefaultSynthConfig()
	output := flag.String("o", "sample-session", "output session directory")
	frames := flag.Int("n", def.KeyFrames, "number of keyframes")
	width := flag.Int("width", def.Width, "depth map width")
	height := flag.Int("height", def.Height, "depth map height")
	interval := flag.Float64("interval", def.FrameInterval, "seconds between keyframes")
	graphEvery := flag.Int("graph-every", def.GraphEvery, "emit a graph update every n keyframes")
	flag.Parse()

	if *frames <= 0 || *width < 3 || *height < 3 {
		log.Fatal("need at least one keyframe and a depth map of at least 3x3")
	}

	cfg := def
	cfg.KeyFrames = *frames
	cfg.Width = *width
	cfg.Height = *height
	cfg.FrameInterval = *interval
	cfg.GraphEvery = *graphEvery

	rec, err := recorder.NewRecorder(nil, *output, "gen-session")
	if err != nil {
		log.Fatalf("failed to create recorder: %v", err)
	}
	entries := recorder.Synthesize(cfg)
	if err := recorder.WriteSession(rec, entries); err != nil {
		log.Fatalf("failed to write session: %v", err)
	}
	log.Printf("Created %s: %d entries (%d keyframes)", *output, len(entries), cfg.KeyFrames)
}
