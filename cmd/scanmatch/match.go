package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/banshee-data/scanmatch/internal/blockgrid"
	"github.com/banshee-data/scanmatch/internal/config"
	"github.com/banshee-data/scanmatch/internal/linalg"
	"github.com/banshee-data/scanmatch/internal/monitor"
	"github.com/banshee-data/scanmatch/internal/scanmatch"
)

// matchOutput is what match prints.
type matchOutput struct {
	scanmatch.Result
	MapID     string  `json:"map_id,omitempty"`
	RunID     string  `json:"run_id,omitempty"`
	ElapsedMs float64 `json:"elapsed_ms"`
}

func (e *env) match(args []string) error {
	fs := e.newFlagSet("match")
	src := mapFlags(fs)
	scanPath := fs.String("scan", "", "CSV scan in robot coordinates (required)")
	poseStr := fs.String("pose", "0,0,0", "Initial pose x,y,theta (metres, radians)")
	optimizer := fs.String("optimizer", "", "Override the configured optimizer (newton, montecarlo, qmc, hybrid)")
	withTrace := fs.Bool("with-trace", false, "Include every iteration in the JSON output")
	chart := fs.String("chart", "", "Write a convergence chart (HTML) to this file")
	record := fs.Bool("record", false, "Record the run in the store (needs -db and -map-id)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *scanPath == "" {
		fmt.Fprintln(e.stderr, "Error: -scan is required")
		fs.Usage()
		return errUsage
	}
	prior, err := parsePose(*poseStr)
	if err != nil {
		return err
	}
	if *record && src.mapID == "" {
		return errors.New("-record needs -db and -map-id")
	}
	scan, err := readPoints(*scanPath)
	if err != nil {
		return err
	}

	cfg := e.cfg
	if *optimizer != "" {
		cfg = withOptimizer(cfg, *optimizer)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	pm, store, err := e.loadMap(src)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	opt, err := scanmatch.NewOptimizer(cfg, pm, e.log.Indent())
	if err != nil {
		return err
	}
	if err := opt.Begin(prior, scanmatch.InitialCovariance(cfg)); err != nil {
		return err
	}
	opt.SetScan(scan)

	start := e.clock.Now()
	res, err := scanmatch.Run(opt, scanmatch.RunOptionsFromConfig(cfg, e.log))
	if err != nil {
		return err
	}
	elapsed := e.clock.Since(start)

	out := matchOutput{Result: res, MapID: src.mapID, ElapsedMs: float64(elapsed) / float64(time.Millisecond)}
	if *record {
		if out.RunID, err = store.RecordRun(src.mapID, res, elapsed); err != nil {
			return err
		}
	}
	if *chart != "" {
		if err := writeFile(*chart, func(w io.Writer) error { return monitor.RenderConvergenceChart(w, res) }); err != nil {
			return err
		}
	}
	if !*withTrace {
		out.Trace = nil
	}

	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// withOptimizer returns a copy of cfg with the optimizer replaced.
func withOptimizer(cfg *config.TuningConfig, name string) *config.TuningConfig {
	c := *cfg
	c.Optimizer = &name
	return &c
}

func (e *env) plot(args []string) error {
	fs := e.newFlagSet("plot")
	src := mapFlags(fs)
	kind := fs.String("kind", "heatmap", "Plot kind: heatmap (PNG) or scatter (HTML)")
	scanPath := fs.String("scan", "", "CSV scan in robot coordinates (required for heatmap)")
	poseStr := fs.String("pose", "0,0,0", "Pose x,y,theta the plot is centred on")
	extent := fs.Float64("extent", 1, "Heatmap half-width around the pose (metres)")
	step := fs.Float64("step", 0.02, "Heatmap lattice spacing (metres)")
	out := fs.String("out", "", "Output file (required)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *out == "" {
		fmt.Fprintln(e.stderr, "Error: -out is required")
		fs.Usage()
		return errUsage
	}
	pose, err := parsePose(*poseStr)
	if err != nil {
		return err
	}

	var scan []linalg.Vec2
	if *scanPath != "" {
		if scan, err = readPoints(*scanPath); err != nil {
			return err
		}
	}

	pm, store, err := e.loadMap(src)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	switch *kind {
	case "heatmap":
		if len(scan) == 0 {
			return errors.New("heatmap needs -scan")
		}
		eval := scanmatch.NewEvaluator(pm, e.cfg.GetPositionGain())
		eval.SetScan(scan)
		lo := blockgrid.Point{X: pose.X - *extent, Y: pose.Y - *extent}
		hi := blockgrid.Point{X: pose.X + *extent, Y: pose.Y + *extent}
		field, err := monitor.SampleLikelihood(eval, pose.Theta, lo, hi, *step)
		if err != nil {
			return err
		}
		peak := field.Peak()
		e.log.Diagf("likelihood peak %.6g at (%.4f, %.4f)", peak.Value, peak.X, peak.Y)
		title := fmt.Sprintf("Likelihood at θ=%.2f°", pose.Theta*180/math.Pi)
		return writeFile(*out, func(w io.Writer) error {
			return monitor.RenderLikelihoodHeatmap(w, field, title, pose)
		})
	case "scatter":
		return writeFile(*out, func(w io.Writer) error {
			return monitor.RenderMapScatter(w, pm, scan, pose)
		})
	default:
		return fmt.Errorf("unknown plot kind %q", *kind)
	}
}

// writeFile creates path and hands it to render, removing it again if
// rendering fails.
func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
