// Package render draws fitted and simulated trajectories as PNG files.
// It owns plot file naming and the cleanup of stale plots in its output
// directory.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"kinfit/internal/model"
)

const (
	plotWidth   = 1024
	plotHeight  = 640
	panelHeight = 320
)

var stateLabels = []string{"Biomass", "Substrate", "Product"}

var stateColors = []drawing.Color{
	chart.ColorBlue,
	chart.ColorRed,
	chart.ColorGreen,
}

// WriteEstimatePlot removes stale plots from dir and writes one chart with
// the observed points and the fitted curves. It returns the written path.
func WriteEstimatePlot(dir string, data model.Dataset, fitted model.Trajectory) (string, error) {
	graph := chart.Chart{
		Title:  "Observed vs fitted",
		Width:  plotWidth,
		Height: plotHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20},
		},
	}
	observed := data.Observed()
	var xs, ys []float64
	for i := range observed {
		name := stateLabel(i)
		if x, y := finitePoints(data.Time, observed[i]); len(x) > 0 {
			graph.Series = append(graph.Series, chart.ContinuousSeries{
				Name:    name + " (observed)",
				XValues: x,
				YValues: y,
				Style: chart.Style{
					StrokeWidth: chart.Disabled,
					DotColor:    stateColor(i),
					DotWidth:    4,
				},
			})
			xs, ys = append(xs, x...), append(ys, y...)
		}
		if x, y := finitePoints(fitted.Time, fitted.Series(i)); len(x) > 0 {
			graph.Series = append(graph.Series, chart.ContinuousSeries{
				Name:    name + " (fitted)",
				XValues: x,
				YValues: y,
				Style: chart.Style{
					StrokeColor: stateColor(i),
					StrokeWidth: 2,
				},
			})
			xs, ys = append(xs, x...), append(ys, y...)
		}
	}
	if len(graph.Series) == 0 {
		return "", fmt.Errorf("nothing to plot: no finite values")
	}
	graph.XAxis = chart.XAxis{Name: "Time", Range: paddedRange(xs)}
	graph.YAxis = chart.YAxis{Name: "Concentration", Range: paddedRange(ys)}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return "", fmt.Errorf("render estimate plot: %w", err)
	}
	return writePlot(dir, buf.Bytes())
}

// WriteSimulationPlot removes stale plots from dir and writes three stacked
// panels, one per state variable.
func WriteSimulationPlot(dir string, traj model.Trajectory) (string, error) {
	canvas := image.NewRGBA(image.Rect(0, 0, plotWidth, panelHeight*model.StateCount))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	for i := 0; i < model.StateCount; i++ {
		x, y := finitePoints(traj.Time, traj.Series(i))
		if len(x) == 0 {
			continue
		}
		graph := chart.Chart{
			Title:  stateLabel(i),
			Width:  plotWidth,
			Height: panelHeight,
			Background: chart.Style{
				Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 10},
			},
			XAxis: chart.XAxis{Name: "Time", Range: paddedRange(x)},
			YAxis: chart.YAxis{Name: "Concentration", Range: paddedRange(y)},
			Series: []chart.Series{
				chart.ContinuousSeries{
					Name:    stateLabel(i),
					XValues: x,
					YValues: y,
					Style: chart.Style{
						StrokeColor: stateColor(i),
						StrokeWidth: 2,
					},
				},
			},
		}
		var buf bytes.Buffer
		if err := graph.Render(chart.PNG, &buf); err != nil {
			return "", fmt.Errorf("render %s panel: %w", stateLabel(i), err)
		}
		panel, err := png.Decode(&buf)
		if err != nil {
			return "", fmt.Errorf("decode %s panel: %w", stateLabel(i), err)
		}
		offset := image.Pt(0, i*panelHeight)
		draw.Draw(canvas, panel.Bounds().Add(offset), panel, panel.Bounds().Min, draw.Src)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return "", fmt.Errorf("encode simulation plot: %w", err)
	}
	return writePlot(dir, buf.Bytes())
}

// RemoveStale deletes every .png file directly under dir and reports how
// many were removed. A missing directory is not an error.
func RemoveStale(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".png") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("remove stale plot: %w", err)
		}
		removed++
	}
	return removed, nil
}

func writePlot(dir string, data []byte) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", fmt.Errorf("plot directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if _, err := RemoveStale(dir); err != nil {
		return "", err
	}
	path := filepath.Join(dir, uuid.NewString()+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func finitePoints(xs, ys []float64) ([]float64, []float64) {
	n := min(len(xs), len(ys))
	outX := make([]float64, 0, n)
	outY := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if isFinite(xs[i]) && isFinite(ys[i]) {
			outX = append(outX, xs[i])
			outY = append(outY, ys[i])
		}
	}
	return outX, outY
}

// paddedRange widens a degenerate range so the chart never sees zero width.
func paddedRange(values []float64) *chart.ContinuousRange {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo > hi {
		return &chart.ContinuousRange{Min: 0, Max: 1}
	}
	if hi-lo < 1e-12 {
		pad := math.Max(math.Abs(lo)*0.1, 1)
		return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
	}
	pad := (hi - lo) * 0.05
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

func stateLabel(i int) string {
	if i < len(stateLabels) {
		return stateLabels[i]
	}
	return fmt.Sprintf("State %d", i)
}

func stateColor(i int) drawing.Color {
	return stateColors[i%len(stateColors)]
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
