package monitor

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/scanmatch/internal/blockgrid"
	"github.com/banshee-data/scanmatch/internal/linalg"
	"github.com/banshee-data/scanmatch/internal/scanmatch"
	"github.com/banshee-data/scanmatch/internal/statmap"
)

// AssetsHost is where rendered pages load the echarts scripts from.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// RenderConvergenceChart writes an HTML page with the likelihood and step
// size of every iteration in res.
func RenderConvergenceChart(w io.Writer, res scanmatch.Result) error {
	iters := make([]int, len(res.Trace))
	likelihood := make([]opts.LineData, len(res.Trace))
	dist := make([]opts.LineData, len(res.Trace))
	angle := make([]opts.LineData, len(res.Trace))
	for i, s := range res.Trace {
		iters[i] = s.Iteration
		likelihood[i] = opts.LineData{Value: s.Likelihood}
		dist[i] = opts.LineData{Value: s.Delta.Distance()}
		angle[i] = opts.LineData{Value: math.Abs(s.Delta.Theta) * 180 / math.Pi}
	}
	subtitle := fmt.Sprintf("optimizer=%s iterations=%d failures=%d converged=%t", res.Optimizer, res.Iterations, res.Failures, res.Converged)

	lk := charts.NewLine()
	lk.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Likelihood", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "iteration", NameLocation: "middle", NameGap: 25}),
	)
	lk.SetXAxis(iters).AddSeries("likelihood", likelihood,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))

	steps := charts.NewLine()
	steps.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Step size"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "iteration", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "log"}),
	)
	steps.SetXAxis(iters).
		AddSeries("translation (m)", dist).
		AddSeries("rotation (deg)", angle)

	page := components.NewPage()
	page.SetAssetsHost(AssetsHost)
	page.SetPageTitle("Scan match convergence")
	page.AddCharts(lk, steps)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	return nil
}

// RenderMapScatter writes an HTML scatter of the Gaussian means in m,
// coloured by cell weight, with scan overlaid at pose. scan may be empty.
func RenderMapScatter(w io.Writer, m *statmap.ProbabilityMap, scan []linalg.Vec2, pose scanmatch.Pose) error {
	if m == nil {
		return fmt.Errorf("%w: nil map", scanmatch.ErrInvalidArgument)
	}
	var cells []opts.ScatterData
	maxWeight := 0.0
	m.Range(func(_ int, core blockgrid.Point, c *statmap.ProbabilityCell) bool {
		if c.Weight <= 0 {
			return true
		}
		cells = append(cells, opts.ScatterData{Value: []interface{}{core.X + c.Mean[0], core.Y + c.Mean[1], c.Weight}})
		maxWeight = math.Max(maxWeight, c.Weight)
		return true
	})
	points := make([]opts.ScatterData, len(scan))
	for i, p := range scan {
		q := pose.Apply(p)
		points[i] = opts.ScatterData{Value: []interface{}{q[0], q[1], maxWeight}}
	}

	lo, hi := m.Bounds()
	if len(cells) == 0 {
		lo, hi = blockgrid.Point{}, blockgrid.Point{X: 1, Y: 1}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Probability map", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Probability map", Subtitle: fmt.Sprintf("cells=%d scan=%d pose=%v", len(cells), len(points), pose)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: lo.X, Max: hi.X, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: lo.Y, Max: hi.Y, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxWeight),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("cells", cells, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	if len(points) > 0 {
		scatter.AddSeries("scan", points, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	}

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	return nil
}
