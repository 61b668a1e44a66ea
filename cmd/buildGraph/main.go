package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// BenchmarkResult holds one benchmark result using the bench report schema.
type BenchmarkResult struct {
	Implementation      string  `json:"implementation"`
	Scenario            string  `json:"scenario,omitempty"`
	Capacity            uint64  `json:"capacity"`
	NumProducers        int     `json:"num_producers"`
	NumConsumers        int     `json:"num_consumers"`
	NumMessages         int64   `json:"num_messages"`          // produced count
	NumMessagesConsumed int64   `json:"num_messages_consumed"` // consumed count
	TestDuration        string  `json:"test_duration"`         // e.g. "10s"
	ActualElapsed       string  `json:"actual_elapsed"`        // measured time
	Throughput          float64 `json:"throughput_msgs_sec"`   // based on consumed count
	Timestamp           int64   `json:"timestamp"`
	GoVersion           string  `json:"go_version"`
}

// SystemInfo holds system information.
type SystemInfo struct {
	NumCPU            int     `json:"num_cpu"`
	TrueCPU           int     `json:"true_cpu,omitempty"`
	SimulatedCPUCount int     `json:"simulated_cpu_count,omitempty"`
	CPUModel          string  `json:"cpu_model,omitempty"`
	CPUSpeedMHz       float64 `json:"cpu_speed_mhz,omitempty"`
	GOARCH            string  `json:"go_arch"`
	TotalMemory       uint64  `json:"total_memory_bytes,omitempty"`
}

// FullReport represents a complete test session.
type FullReport struct {
	SessionID   string            `json:"session_id"`
	SessionTime string            `json:"session_time"`
	SystemInfo  SystemInfo        `json:"system_info"`
	Benchmarks  []BenchmarkResult `json:"benchmarks"`
}

// metric selects one Y-axis quantity to render from a benchmark result. The
// bench tool records both totals and elapsed time, so latency per message and
// throughput are derivable from the same sessions.
type metric struct {
	name     string // filename component
	yLabel   string
	value    func(b BenchmarkResult) (float64, bool)
	formatY  func(float64) string
	logScale bool
}

func metrics() []metric {
	return []metric{
		{
			name:   "latency",
			yLabel: "Time per Msg (ns) [log scale]",
			value: func(b BenchmarkResult) (float64, bool) {
				dur, err := time.ParseDuration(b.ActualElapsed)
				if err != nil || b.NumMessagesConsumed == 0 {
					return 0, false
				}
				return float64(dur.Nanoseconds()) / float64(b.NumMessagesConsumed), true
			},
			formatY:  formatNs,
			logScale: true,
		},
		{
			name:   "throughput",
			yLabel: "Throughput (msgs/sec)",
			value: func(b BenchmarkResult) (float64, bool) {
				if b.Throughput <= 0 {
					return 0, false
				}
				return b.Throughput, true
			},
			formatY: formatCount,
		},
	}
}

// concurrencyStats holds "5%-avg-min", median, and "5%-avg-max" for each concurrency level.
type concurrencyStats struct {
	concurrency float64 // replaced with category index
	orig        float64 // original concurrency value
	min         float64 // "average of bottom 5%"
	median      float64
	max         float64 // "average of top 5%"
}

// statsPoints implements XYer and YErrorer for concurrencyStats, so we can plot lines + error bars.
type statsPoints []concurrencyStats

func (s statsPoints) Len() int                { return len(s) }
func (s statsPoints) XY(i int) (x, y float64) { return s[i].concurrency, s[i].median }
func (s statsPoints) YError(i int) (low, high float64) {
	low = s[i].median - s[i].min
	high = s[i].max - s[i].median
	return low, high
}

// categoryTicks implements a categorical X-axis: 0,1,2,... => labels for concurrency.
type categoryTicks struct {
	positions []float64
	labels    []string
}

func (ct categoryTicks) Ticks(min, max float64) []plot.Tick {
	var ticks []plot.Tick
	for i, pos := range ct.positions {
		if pos >= min && pos <= max {
			ticks = append(ticks, plot.Tick{Value: pos, Label: ct.labels[i]})
		}
	}
	return ticks
}

// denseTicks spreads evenly spaced labeled ticks over the Y range, stepping in
// log space when the metric calls for it.
type denseTicks struct {
	format func(float64) string
	log    bool
}

func (dt denseTicks) Ticks(min, max float64) []plot.Tick {
	// Estimate final height (e.g. 9 inches -> 648 px) and put a labeled tick
	// roughly every 30 px.
	const pxHeight = 648.0
	const pxSpacing = 30.0
	nTicks := pxHeight / pxSpacing

	var ticks []plot.Tick
	if dt.log {
		if min <= 0 {
			min = 1e-9
		}
		start := math.Log10(min)
		end := math.Log10(max)
		step := (end - start) / nTicks
		for i := 0.0; i <= nTicks; i++ {
			y := math.Pow(10, start+i*step)
			ticks = append(ticks, plot.Tick{Value: y, Label: dt.format(y)})
		}
		return ticks
	}
	step := (max - min) / nTicks
	for i := 0.0; i <= nTicks; i++ {
		y := min + i*step
		ticks = append(ticks, plot.Tick{Value: y, Label: dt.format(y)})
	}
	return ticks
}

func main() {
	jsonFile := flag.String("jsonfile", "test-results.json", "Path to JSON file containing test sessions")
	outputPrefix := flag.String("out", "benchmark_graph", "Output graph image filename prefix")
	flag.Parse()

	sessions, err := loadSessions(*jsonFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	// One plot per (metric, CPU count) pair. The plots are independent of each
	// other, so they render in parallel; the first failure aborts the batch.
	var g errgroup.Group
	for _, m := range metrics() {
		m := m
		pointsByCPU := groupByCPU(sessions, m)
		for cpus, implMap := range pointsByCPU {
			cpus, implMap := cpus, implMap
			g.Go(func() error {
				filename := fmt.Sprintf("%s_%s_%d.png", *outputPrefix, m.name, cpus)
				if err := renderPlot(m, cpus, implMap, filename); err != nil {
					return errors.Wrapf(err, "rendering %s", filename)
				}
				fmt.Printf("Graph for %d CPU(s) saved to %s\n", cpus, filename)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadSessions(path string) ([]FullReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading JSON file %q", path)
	}
	var sessions []FullReport
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, errors.Wrap(err, "unmarshalling JSON")
	}
	if len(sessions) == 0 {
		return nil, errors.Errorf("no sessions found in %q", path)
	}
	return sessions, nil
}

// groupByCPU arranges the sessions as CPU count -> Implementation ->
// concurrency -> metric samples.
func groupByCPU(sessions []FullReport, m metric) map[int]map[string]map[float64][]float64 {
	pointsByCPU := make(map[int]map[string]map[float64][]float64)

	for _, session := range sessions {
		cpus := session.SystemInfo.SimulatedCPUCount
		if cpus == 0 {
			cpus = session.SystemInfo.NumCPU
		}

		if _, ok := pointsByCPU[cpus]; !ok {
			pointsByCPU[cpus] = make(map[string]map[float64][]float64)
		}

		for _, b := range session.Benchmarks {
			x := float64(b.NumProducers + b.NumConsumers)
			val, ok := m.value(b)
			if !ok {
				continue
			}

			implMap := pointsByCPU[cpus]
			if _, ok := implMap[b.Implementation]; !ok {
				implMap[b.Implementation] = make(map[float64][]float64)
			}
			implMap[b.Implementation][x] = append(implMap[b.Implementation][x], val)
		}
	}
	return pointsByCPU
}

func renderPlot(m metric, cpus int, implMap map[string]map[float64][]float64, filename string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s (5%%-avg-min / Median / 5%%-avg-max) vs. Concurrency for %d CPU(s)", m.name, cpus)
	p.X.Label.Text = "NumProducers + NumConsumers"
	p.Y.Label.Text = m.yLabel
	p.Y.Scale = plot.LinearScale{}

	// Dark theme.
	p.BackgroundColor = color.RGBA{R: 30, G: 30, B: 30, A: 255}
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	p.Title.TextStyle.Color = white
	p.X.Label.TextStyle.Color = white
	p.Y.Label.TextStyle.Color = white
	p.X.Color = white
	p.Y.Color = white
	p.X.Tick.Label.Color = white
	p.Y.Tick.Label.Color = white
	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.TextStyle.Color = white

	p.Y.Tick.Marker = denseTicks{format: m.formatY, log: m.logScale}

	p.Add(plotter.NewGrid())

	// Build union of concurrency values for this CPU group.
	concurrencySet := make(map[float64]struct{})
	for _, implData := range implMap {
		for conc := range implData {
			concurrencySet[conc] = struct{}{}
		}
	}
	var concValues []float64
	for val := range concurrencySet {
		concValues = append(concValues, val)
	}
	sort.Float64s(concValues)

	// Map concurrency => category index.
	concMapping := make(map[float64]float64)
	var positions []float64
	var labels []string
	for i, val := range concValues {
		concMapping[val] = float64(i)
		positions = append(positions, float64(i))
		labels = append(labels, strconv.FormatFloat(val, 'f', -1, 64))
	}
	p.X.Tick.Marker = categoryTicks{positions: positions, labels: labels}

	// Sort implementations alphabetically for consistent legend ordering.
	var implNames []string
	for implName := range implMap {
		implNames = append(implNames, implName)
	}
	sort.Strings(implNames)

	colors := plotutil.SoftColors
	shapes := []draw.GlyphDrawer{
		draw.CircleGlyph{},
		draw.SquareGlyph{},
		draw.TriangleGlyph{},
		draw.CrossGlyph{},
		draw.PlusGlyph{},
	}

	// Slight offset so each implementation is visually separated.
	offsetRange := 0.4
	offsetStep := offsetRange / float64(len(implNames))
	startOffset := -offsetRange/2 + offsetStep/2

	for i, impl := range implNames {
		stats := buildStats(implMap[impl])
		if len(stats) == 0 {
			continue
		}
		for j := range stats {
			baseX := concMapping[stats[j].orig]
			stats[j].concurrency = baseX + startOffset + float64(i)*offsetStep
		}
		sort.Slice(stats, func(a, b int) bool {
			return stats[a].concurrency < stats[b].concurrency
		})
		sp := statsPoints(stats)

		line, err := plotter.NewLine(sp)
		if err != nil {
			return errors.Wrap(err, "creating line")
		}
		line.Color = colors[i%len(colors)]

		points, err := plotter.NewScatter(sp)
		if err != nil {
			return errors.Wrap(err, "creating scatter")
		}
		points.GlyphStyle.Radius = vg.Points(5)
		points.Color = colors[i%len(colors)]
		points.Shape = shapes[i%len(shapes)]

		yErrBars, err := plotter.NewYErrorBars(sp)
		if err != nil {
			return errors.Wrap(err, "creating error bars")
		}
		yErrBars.Color = colors[i%len(colors)]

		p.Add(line, points, yErrBars)
		p.Legend.Add(impl, line, points)
	}

	return p.Save(12*vg.Inch, 9*vg.Inch, filename)
}

// buildStats computes "average of bottom 5%", median, and "average of top 5%".
func buildStats(concurrencyMap map[float64][]float64) []concurrencyStats {
	var out []concurrencyStats
	for x, vals := range concurrencyMap {
		if len(vals) == 0 {
			continue
		}
		sort.Float64s(vals)
		min5 := averageOfRange(vals, 0.0, 0.05)
		max5 := averageOfRange(vals, 0.95, 1.0)
		med := median(vals)

		out = append(out, concurrencyStats{
			concurrency: x,
			orig:        x,
			min:         min5,
			median:      med,
			max:         max5,
		})
	}
	return out
}

// averageOfRange returns the average of sortedVals in [startFrac, endFrac] of its length.
// E.g. averageOfRange(vals, 0, 0.05) is the average of the bottom 5%.
func averageOfRange(sortedVals []float64, startFrac, endFrac float64) float64 {
	n := len(sortedVals)
	if n == 0 {
		return 0
	}
	startIndex := int(float64(n) * startFrac)
	endIndex := int(float64(n) * endFrac)
	if startIndex < 0 {
		startIndex = 0
	}
	if endIndex > n {
		endIndex = n
	}
	if startIndex >= endIndex {
		// fallback to median if 5% slice is too small
		return median(sortedVals)
	}
	sum := 0.0
	for i := startIndex; i < endIndex; i++ {
		sum += sortedVals[i]
	}
	return sum / float64(endIndex-startIndex)
}

func median(sorted []float64) float64 {
	n := len(sorted)
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return 0.5 * (sorted[mid-1] + sorted[mid])
}

// formatNs nicely formats a nanoseconds value in ns, µs, ms, or s.
func formatNs(ns float64) string {
	switch {
	case ns < 1e3:
		return fmt.Sprintf("%.0fns", ns)
	case ns < 1e6:
		return fmt.Sprintf("%.1fµs", ns/1e3)
	case ns < 1e9:
		return fmt.Sprintf("%.1fms", ns/1e6)
	default:
		return fmt.Sprintf("%.2fs", ns/1e9)
	}
}

// formatCount formats a message count with k/M suffixes.
func formatCount(v float64) string {
	switch {
	case v < 1e3:
		return fmt.Sprintf("%.0f", v)
	case v < 1e6:
		return fmt.Sprintf("%.1fk", v/1e3)
	default:
		return fmt.Sprintf("%.2fM", v/1e6)
	}
}
