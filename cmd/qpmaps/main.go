// ------------------------------------------------------------
// Heatmaps of the walking QP matrices
// ------------------------------------------------------------
// Runs the generator for a few cycles, then renders:
//   - the ZMP constraint matrix (rows per sample and edge)
//   - the foot reachability matrix
//   - the position and orientation Hessians
//
// Each matrix is also written as CSV (row, col, value) for inspection.
//
// Output folder (relative to where you run the program):
//   output/qpmaps/
// ------------------------------------------------------------

package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/mohammadijoo/WalkingPG_Go/internal/config"
	"github.com/mohammadijoo/WalkingPG_Go/internal/log"
	"github.com/mohammadijoo/WalkingPG_Go/pkg/generator"
)

// writeMatrixCSV saves the non-zero entries of m as (row, col, value).
func writeMatrixCSV(filename string, m mat.Matrix) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("CSV write error: cannot create directory: %w", err)
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("CSV write error: cannot open file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"row", "col", "value"}); err != nil {
		return fmt.Errorf("CSV write error: cannot write header: %w", err)
	}
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if v == 0 {
				continue
			}
			row := []string{fmt.Sprint(i), fmt.Sprint(j), fmt.Sprintf("%.15g", v)}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("CSV write error: cannot write row: %w", err)
			}
		}
	}
	w.Flush()
	return w.Error()
}

// limitedTicker returns a tick generator with at most maxLabels integer
// labels, for row and column indices.
func limitedTicker(maxLabels int) plot.Ticker {
	if maxLabels < 2 {
		maxLabels = 2
	}
	return plot.TickerFunc(func(min, max float64) []plot.Tick {
		if math.IsNaN(min) || math.IsNaN(max) || math.IsInf(min, 0) || math.IsInf(max, 0) {
			return nil
		}
		lo, hi := math.Ceil(min), math.Floor(max)
		if hi <= lo {
			return []plot.Tick{{Value: lo, Label: fmt.Sprintf("%.0f", lo)}}
		}
		step := math.Max(1, math.Ceil((hi-lo)/float64(maxLabels-1)))
		ticks := make([]plot.Tick, 0, maxLabels)
		for v := lo; v <= hi; v += step {
			ticks = append(ticks, plot.Tick{Value: v, Label: fmt.Sprintf("%.0f", v)})
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

	p.X.Tick.Marker = limitedTicker(10)
	p.Y.Tick.Marker = limitedTicker(10)
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
	png := vgimg.PngCanvas{Canvas: c}
	if _, err := png.WriteTo(bw); err != nil {
		return fmt.Errorf("cannot write png: %w", err)
	}
	return bw.Flush()
}

// matGrid exposes a matrix as a GridXYZ. Columns map to x, rows to y with
// row 0 at the top.
type matGrid struct {
	m mat.Matrix
}

func (g matGrid) Dims() (c, r int) {
	r, c = g.m.Dims()
	return c, r
}

func (g matGrid) Z(c, r int) float64 {
	rows, _ := g.m.Dims()
	return g.m.At(rows-1-r, c)
}

func (g matGrid) X(c int) float64 { return float64(c) }

func (g matGrid) Y(r int) float64 {
	rows, _ := g.m.Dims()
	return float64(rows - 1 - r)
}

// saveHeatmap renders m with the Kindlmann palette. Constant matrices have
// no colour range and are skipped.
func saveHeatmap(filename, title string, m mat.Matrix) (bool, error) {
	lo, hi := mat.Min(m), mat.Max(m)
	if lo == hi {
		return false, nil
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "column"
	p.Y.Label.Text = "row"
	stylePlot(p)

	pal := moreland.Kindlmann().Palette(255)
	hm := plotter.NewHeatMap(matGrid{m: m}, pal)
	p.Add(hm)

	return true, savePlotPNG(p, 8.0, 6.5, filename)
}

type matrixOut struct {
	name  string
	title string
	m     mat.Matrix
}

func matrices(g *generator.Generator) []matrixOut {
	return []matrixOut{
		{"cop", "ZMP constraints A_cop", g.CoPConstraints().A},
		{"foot", "Foot constraints A_foot", g.FootConstraints().A},
		{"hessian_position", "Position Hessian Q", g.PositionObjective().Q},
		{"hessian_orientation", "Orientation Hessian Q", g.OrientationObjective().Q},
	}
}

func main() {
	cfgPath := flag.String("config", "", "walkgen YAML configuration (defaults when empty)")
	cycles := flag.Int("cycles", 4, "control cycles to run before drawing")
	outDir := flag.String("out", filepath.Join("output", "qpmaps"), "output directory")
	flag.Parse()

	if err := run(*cfgPath, *cycles, *outDir); err != nil {
		log.Error("qpmaps failed", "err", err)
		os.Exit(1)
	}
}

func run(cfgPath string, cycles int, outDir string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	log.Init(cfg.Simulation.LogLevel)

	gc, err := cfg.Generator()
	if err != nil {
		return err
	}
	l := log.With("component", "qpmaps")
	g, err := generator.New(gc, generator.WithLogger(l))
	if err != nil {
		return err
	}
	v := cfg.Simulation.Velocity
	g.SetVelocityReference(v.X, v.Y, v.Q)

	ctx := context.Background()
	for i := 0; i < cycles; i++ {
		if err := g.Cycle(ctx); err != nil {
			return fmt.Errorf("cycle %d: %w", i, err)
		}
	}

	for _, mo := range matrices(g) {
		png := filepath.Join(outDir, mo.name+".png")
		drawn, err := saveHeatmap(png, mo.title, mo.m)
		if err != nil {
			return fmt.Errorf("cannot save heatmap %s: %w", mo.name, err)
		}
		if err := writeMatrixCSV(filepath.Join(outDir, mo.name+".csv"), mo.m); err != nil {
			return err
		}
		r, c := mo.m.Dims()
		l.Info("saved", "matrix", mo.name, "rows", r, "cols", c, "heatmap", drawn)
	}

	l.Info("qpmaps finished", "dir", outDir, "t", g.Time())
	return nil
}
