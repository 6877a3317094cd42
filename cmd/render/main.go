// Command render plays a script offline at a fixed frame rate and writes one
// JSON line per frame. Output depends only on the script and the frame rate.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/okian/pulse/internal/adapters/scheduler"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/player"
	"github.com/okian/pulse/internal/domain/script"
	"github.com/okian/pulse/pkg/logger"
)

const (
	defaultFPS = 30
	maxFPS     = 240
)

var errInvalidFPS = errors.New("fps must be between 1 and 240")

// frame is one rendered line.
type frame struct {
	Frame   int               `json:"frame"`
	Time    float64           `json:"time"`
	SceneID string            `json:"scene_id"`
	State   model.PlayerState `json:"state"`
}

func main() {
	if err := logger.InitWithWriter(os.Stderr, "text"); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := run(); err != nil {
		logger.Get().Error(context.Background(), "render failed", logger.Error(err))
		os.Exit(1)
	}
}

func run() error {
	var (
		scriptPath = flag.String("script", "", "TOML file with id, title and goal")
		id         = flag.String("id", "", "Script id (generated when empty)")
		title      = flag.String("title", "", "Script title")
		goal       = flag.String("goal", "", "Script goal; adds the premise scene")
		fps        = flag.Int("fps", defaultFPS, "Frames per second")
		out        = flag.String("out", "", "Output file (default stdout)")
	)
	flag.Parse()

	in := script.Input{ID: *id, Title: *title, Goal: *goal}
	if *scriptPath != "" {
		loaded, err := script.LoadInput(*scriptPath)
		if err != nil {
			return err
		}
		in = loaded
	}

	w := io.Writer(os.Stdout)
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	buf := bufio.NewWriter(w)
	frames, err := render(buf, script.Build(in), *fps, logger.Get().Named("render"))
	if err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	logger.Get().Info(context.Background(), "render complete", logger.Int("frames", frames))
	return nil
}

// render drives a manual-mode player over scenes at fps and writes every
// frame, including frame zero. It returns the number of frames written.
func render(w io.Writer, scenes []model.SceneDescriptor, fps int, lg logger.Logger) (int, error) {
	if fps < 1 || fps > maxFPS {
		return 0, errInvalidFPS
	}
	sched := scheduler.NewManual(time.Time{})
	p, err := player.New(scenes, sched, player.WithManualMode(true), player.WithLogger(lg))
	if err != nil {
		return 0, fmt.Errorf("build player: %w", err)
	}

	lastScene := -1
	unsubscribe := p.Subscribe(func(s model.PlayerState) {
		if s.SceneIndex != lastScene {
			lastScene = s.SceneIndex
			lg.Debug(context.Background(), "scene", logger.Int("index", s.SceneIndex), logger.Float64("at", s.TotalElapsed))
		}
	})
	defer unsubscribe()

	enc := json.NewEncoder(w)
	delta := 1 / float64(fps)
	limit := int(math.Ceil(p.TotalDuration()*float64(fps))) + 1

	p.Start()
	for n := 0; n <= limit; n++ {
		state := p.State()
		f := frame{Frame: n, Time: float64(n) * delta, State: state}
		if scene, ok := p.CurrentScene(); ok {
			f.SceneID = scene.ID
		}
		if err := enc.Encode(f); err != nil {
			return n, fmt.Errorf("write frame %d: %w", n, err)
		}
		if state.Complete {
			return n + 1, nil
		}
		p.Tick(delta)
	}
	return limit + 1, nil
}
