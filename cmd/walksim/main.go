// ------------------------------------------------------------
// Closed-loop walk with the preview walking pattern generator
// ------------------------------------------------------------
// Each control cycle:
//   - solves the jerk/footstep QP (decoupled or coupled strategy)
//   - integrates the first jerk sample of every axis
//   - advances the selection matrices and the support deque
//
// Outputs (relative to the configured out_dir):
//   walk_log.csv     one row per cycle (CoM, ZMP, placed foot, support)
//   com_x.png        CoM and ZMP along x
//   com_y.png        CoM and ZMP along y
//   footprints.png   CoM path, ZMP path and placed footsteps in the plane
// ------------------------------------------------------------

package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/mohammadijoo/WalkingPG_Go/internal/config"
	"github.com/mohammadijoo/WalkingPG_Go/internal/log"
	"github.com/mohammadijoo/WalkingPG_Go/pkg/footstep"
	"github.com/mohammadijoo/WalkingPG_Go/pkg/generator"
)

// ------------------------------------------------------------
// CSV writer
// ------------------------------------------------------------

func writeCSV(filename string, header []string, cols [][]float64) error {
	if len(cols) == 0 {
		return errors.New("CSV: no columns")
	}
	if len(header) != len(cols) {
		return errors.New("CSV: header size mismatch")
	}
	n := len(cols[0])
	for _, c := range cols {
		if len(c) != n {
			return errors.New("CSV: column size mismatch")
		}
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("CSV: cannot create directory: %w", err)
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("CSV: cannot open %s: %w", filename, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("CSV: cannot write header: %w", err)
	}
	row := make([]string, len(cols))
	for r := 0; r < n; r++ {
		for c := range cols {
			row[c] = fmt.Sprintf("%.15g", cols[c][r])
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("CSV: cannot write row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// ------------------------------------------------------------
// Walk trace (one entry per cycle)
// ------------------------------------------------------------

type trace struct {
	T          []float64
	ComX, ComY []float64
	ComQ       []float64
	ZmpX, ZmpY []float64
	FootX      []float64
	FootY      []float64
	FootQ      []float64
	Support    []float64 // 0 left, 1 right
}

func newTrace(n int) *trace {
	mk := func() []float64 { return make([]float64, 0, n) }
	return &trace{
		T: mk(), ComX: mk(), ComY: mk(), ComQ: mk(),
		ZmpX: mk(), ZmpY: mk(),
		FootX: mk(), FootY: mk(), FootQ: mk(),
		Support: mk(),
	}
}

// record appends the generator state. The ZMP is that of the current CoM
// state, p - (h/g) a.
func (tr *trace) record(g *generator.Generator) {
	cx, cy, cq := g.CoM()
	ratio := g.Model().HeightRatio()
	fx, fy, fq := g.Foot()

	tr.T = append(tr.T, g.Time())
	tr.ComX = append(tr.ComX, cx.AtVec(0))
	tr.ComY = append(tr.ComY, cy.AtVec(0))
	tr.ComQ = append(tr.ComQ, cq.AtVec(0))
	tr.ZmpX = append(tr.ZmpX, cx.AtVec(0)-ratio*cx.AtVec(2))
	tr.ZmpY = append(tr.ZmpY, cy.AtVec(0)-ratio*cy.AtVec(2))
	tr.FootX = append(tr.FootX, fx)
	tr.FootY = append(tr.FootY, fy)
	tr.FootQ = append(tr.FootQ, fq)
	side := 0.0
	if g.CurrentSupport().Foot == footstep.Right {
		side = 1
	}
	tr.Support = append(tr.Support, side)
}

func (tr *trace) Len() int { return len(tr.T) }

func (tr *trace) writeCSV(filename string) error {
	return writeCSV(filename,
		[]string{"t", "com_x", "com_y", "com_q", "zmp_x", "zmp_y", "foot_x", "foot_y", "foot_q", "support"},
		[][]float64{tr.T, tr.ComX, tr.ComY, tr.ComQ, tr.ZmpX, tr.ZmpY, tr.FootX, tr.FootY, tr.FootQ, tr.Support},
	)
}

// walk runs the closed loop for the configured number of cycles. The trace
// holds the initial state plus one entry per completed cycle, also when a
// solve fails part way.
func walk(ctx context.Context, gc generator.Config, sim config.SimulationConfig, l *slog.Logger) (*trace, error) {
	g, err := generator.New(gc, generator.WithLogger(l))
	if err != nil {
		return nil, err
	}
	g.SetVelocityReference(sim.Velocity.X, sim.Velocity.Y, sim.Velocity.Q)

	tr := newTrace(sim.Cycles + 1)
	tr.record(g)

	every := max(1, sim.Cycles/10)
	for cycle := 0; cycle < sim.Cycles; cycle++ {
		if err := g.Cycle(ctx); err != nil {
			return tr, fmt.Errorf("cycle %d: %w", cycle, err)
		}
		tr.record(g)

		if cycle%every == 0 {
			i := tr.Len() - 1
			l.Info("cycle",
				"n", cycle,
				"t", tr.T[i],
				"com_x", tr.ComX[i],
				"com_y", tr.ComY[i],
				"support", g.CurrentSupport().Foot,
			)
		}
	}
	return tr, nil
}

// ------------------------------------------------------------
// Plotting helpers (high-resolution PNG with 300 DPI)
// ------------------------------------------------------------

func limitedTicker(maxLabels int, labelFmt string) plot.Ticker {
	if maxLabels < 2 {
		maxLabels = 2
	}
	return plot.TickerFunc(func(min, max float64) []plot.Tick {
		if math.IsNaN(min) || math.IsNaN(max) || math.IsInf(min, 0) || math.IsInf(max, 0) {
			return nil
		}
		if min == max {
			return []plot.Tick{{Value: min, Label: fmt.Sprintf(labelFmt, min)}}
		}
		step := (max - min) / float64(maxLabels-1)
		ticks := make([]plot.Tick, 0, maxLabels)
		for i := 0; i < maxLabels; i++ {
			v := min + float64(i)*step
			ticks = append(ticks, plot.Tick{Value: v, Label: fmt.Sprintf(labelFmt, v)})
		}
		return ticks
	})
}

func stylePlot(p *plot.Plot) {
	p.Title.TextStyle.Font.Size = vg.Points(22)
	p.Title.Padding = vg.Points(12)

	p.X.Label.TextStyle.Font.Size = vg.Points(18)
	p.Y.Label.TextStyle.Font.Size = vg.Points(18)
	p.X.Label.Padding = vg.Points(10)
	p.Y.Label.Padding = vg.Points(10)

	p.X.LineStyle.Width = vg.Points(2.2)
	p.Y.LineStyle.Width = vg.Points(2.2)
	p.X.Padding = vg.Points(20)
	p.Y.Padding = vg.Points(20)

	p.X.Tick.LineStyle.Width = vg.Points(2.0)
	p.Y.Tick.LineStyle.Width = vg.Points(2.0)
	p.X.Tick.Length = vg.Points(8)
	p.Y.Tick.Length = vg.Points(8)

	p.X.Tick.Label.Font.Size = vg.Points(14)
	p.Y.Tick.Label.Font.Size = vg.Points(14)

	// metres and seconds of a walk need more than one decimal
	p.X.Tick.Marker = limitedTicker(8, "%.2f")
	p.Y.Tick.Marker = limitedTicker(8, "%.3f")

	p.Legend.TextStyle.Font.Size = vg.Points(14)
	p.Legend.Top = true
}

func savePlotPNG(p *plot.Plot, widthIn, heightIn float64, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	w := vg.Length(widthIn) * vg.Inch
	h := vg.Length(heightIn) * vg.Inch

	c := vgimg.NewWith(
		vgimg.UseWH(w, h),
		vgimg.UseDPI(300),
	)
	p.Draw(draw.New(c))

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("cannot create png: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	pngc := vgimg.PngCanvas{Canvas: c}
	if _, err := pngc.WriteTo(bw); err != nil {
		return fmt.Errorf("cannot write png: %w", err)
	}
	return bw.Flush()
}

// series is one named curve of a line plot.
type series struct {
	Name string
	X, Y []float64
}

func xys(xs, ys []float64) plotter.XYs {
	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i].X = xs[i]
		pts[i].Y = ys[i]
	}
	return pts
}

func saveLinePlot(filename, title, xlabel, ylabel string, curves ...series) error {
	if len(curves) == 0 {
		return errors.New("plot data invalid: no curves")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel
	stylePlot(p)

	for i, s := range curves {
		if len(s.X) != len(s.Y) || len(s.X) == 0 {
			return fmt.Errorf("plot data invalid: %q", s.Name)
		}
		line, err := plotter.NewLine(xys(s.X, s.Y))
		if err != nil {
			return err
		}
		line.LineStyle.Width = vg.Points(3.0)
		line.LineStyle.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(s.Name, line)
	}
	return savePlotPNG(p, 8.0, 6.0, filename)
}

// saveFootprints draws the CoM and ZMP paths in the plane with one marker
// per placed foot.
func saveFootprints(filename string, tr *trace) error {
	p := plot.New()
	p.Title.Text = "Walk in the plane"
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"
	stylePlot(p)

	for i, s := range []series{
		{Name: "CoM", X: tr.ComX, Y: tr.ComY},
		{Name: "ZMP", X: tr.ZmpX, Y: tr.ZmpY},
	} {
		line, err := plotter.NewLine(xys(s.X, s.Y))
		if err != nil {
			return err
		}
		line.LineStyle.Width = vg.Points(3.0)
		line.LineStyle.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(s.Name, line)
	}

	steps := footprints(tr)
	if len(steps) > 0 {
		sc, err := plotter.NewScatter(steps)
		if err != nil {
			return err
		}
		sc.GlyphStyle.Shape = draw.BoxGlyph{}
		sc.GlyphStyle.Radius = vg.Points(5)
		sc.GlyphStyle.Color = plotutil.Color(2)
		p.Add(sc)
		p.Legend.Add("footsteps", sc)
	}
	return savePlotPNG(p, 8.0, 6.0, filename)
}

// footprints returns each distinct placed foot of the trace once.
func footprints(tr *trace) plotter.XYs {
	var pts plotter.XYs
	for i := range tr.FootX {
		if i > 0 && tr.FootX[i] == tr.FootX[i-1] && tr.FootY[i] == tr.FootY[i-1] {
			continue
		}
		pts = append(pts, plotter.XY{X: tr.FootX[i], Y: tr.FootY[i]})
	}
	return pts
}

func savePlots(outDir string, tr *trace) error {
	if err := saveLinePlot(filepath.Join(outDir, "com_x.png"), "CoM and ZMP along x", "time (s)", "x (m)",
		series{Name: "CoM", X: tr.T, Y: tr.ComX},
		series{Name: "ZMP", X: tr.T, Y: tr.ZmpX},
		series{Name: "foot", X: tr.T, Y: tr.FootX},
	); err != nil {
		return err
	}
	if err := saveLinePlot(filepath.Join(outDir, "com_y.png"), "CoM and ZMP along y", "time (s)", "y (m)",
		series{Name: "CoM", X: tr.T, Y: tr.ComY},
		series{Name: "ZMP", X: tr.T, Y: tr.ZmpY},
		series{Name: "foot", X: tr.T, Y: tr.FootY},
	); err != nil {
		return err
	}
	return saveFootprints(filepath.Join(outDir, "footprints.png"), tr)
}

func main() {
	cfgPath := flag.String("config", "", "walkgen YAML configuration (defaults when empty)")
	cycles := flag.Int("cycles", 0, "control cycles, overrides simulation.cycles when > 0")
	strategy := flag.String("strategy", "", "decoupled or coupled, overrides solver.strategy")
	outDir := flag.String("out", "", "output directory, overrides simulation.out_dir")
	flag.Parse()

	if err := run(*cfgPath, *cycles, *strategy, *outDir); err != nil {
		log.Error("walksim failed", "err", err)
		os.Exit(1)
	}
}

func run(cfgPath string, cycles int, strategy, outDir string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if cycles > 0 {
		cfg.Simulation.Cycles = cycles
	}
	if strategy != "" {
		cfg.Solver.Strategy = strategy
	}
	if outDir != "" {
		cfg.Simulation.OutDir = outDir
	}
	log.Init(cfg.Simulation.LogLevel)

	gc, err := cfg.Generator()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	l := log.With("component", "walksim", "strategy", gc.Strategy)
	l.Info("walking",
		"cycles", cfg.Simulation.Cycles,
		"vx", cfg.Simulation.Velocity.X,
		"vy", cfg.Simulation.Velocity.Y,
		"vq", cfg.Simulation.Velocity.Q,
	)

	tr, walkErr := walk(ctx, gc, cfg.Simulation, l)
	if tr == nil {
		return walkErr
	}
	if walkErr != nil {
		l.Warn("walk stopped early, saving partial trace", "err", walkErr)
	}

	out := cfg.Simulation.OutDir
	if err := tr.writeCSV(filepath.Join(out, "walk_log.csv")); err != nil {
		return err
	}
	if cfg.Simulation.Plots {
		l.Info("saving plots", "dir", out)
		if err := savePlots(out, tr); err != nil {
			return fmt.Errorf("plot saving failed: %w", err)
		}
	}
	l.Info("done", "dir", out, "cycles", tr.Len()-1)
	return walkErr
}
