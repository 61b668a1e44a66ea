package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/lumberjack"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/i5heu/GoBlockingQueue/internal/testbench"
	"github.com/i5heu/GoBlockingQueue/pkg/chanqueue"
	"github.com/i5heu/GoBlockingQueue/pkg/qlog"
	"github.com/i5heu/GoBlockingQueue/pkg/ringqueue"
	"github.com/i5heu/GoBlockingQueue/pkg/semaring"
)

// benchQueue is the queue surface the bench harness drives; every registry
// entry produces a value satisfying it.
type benchQueue = interface {
	Push(*int)
	Pop() *int
	FreeSlots() uint64
	UsedSlots() uint64
}

// BenchmarkResult holds results for one test run.
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

// Implementation represents a queue implementation.
type Implementation[T any, Q interface {
	Push(T)
	Pop() T
	FreeSlots() uint64
	UsedSlots() uint64
}] struct {
	name        string
	description string
	pkgName     string
	authors     []string
	features    []string
	newQueue    func(capacity uint64) Q
}

// runSpec is one fully resolved benchmark configuration, either derived from
// flags or loaded from a scenario file.
type runSpec struct {
	scenario string
	capacity uint64
	cfg      testbench.Config
	duration time.Duration
}

// eventLogger feeds the logged registry entry. It stays nil (and qlog falls
// back to a no-op logger) unless -logfile is given.
var eventLogger *zap.Logger

func fail(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

// outputMarkdownTable loads the JSON file and outputs a Markdown table.
func outputMarkdownTable(jsonFile string) {
	data, err := os.ReadFile(jsonFile)
	if err != nil {
		fail(errors.Wrapf(err, "reading JSON file %q", jsonFile))
	}
	var sessions []FullReport
	if err := json.Unmarshal(data, &sessions); err != nil {
		fail(errors.Wrap(err, "unmarshalling JSON"))
	}
	if len(sessions) == 0 {
		fail(errors.Errorf("no sessions found in %q", jsonFile))
	}
	// Use the last session for the table.
	lastSession := sessions[len(sessions)-1]
	// Build a map of implementation meta info.
	implMetaMap := make(map[string]Implementation[*int, benchQueue])
	for _, impl := range getImplementations() {
		implMetaMap[impl.name] = impl
	}
	// Build table rows.
	type tableRow struct {
		implementation string
		pkgName        string
		features       string
		author         string
		throughput     float64
	}
	var rows []tableRow
	for _, bench := range lastSession.Benchmarks {
		meta, ok := implMetaMap[bench.Implementation]
		var pkgName, features, authors string
		if ok {
			pkgName = meta.pkgName
			features = strings.Join(meta.features, ", ")
			authors = strings.Join(meta.authors, ", ")
		}
		rows = append(rows, tableRow{
			implementation: bench.Implementation,
			pkgName:        pkgName,
			features:       features,
			author:         authors,
			throughput:     bench.Throughput,
		})
	}
	// Sort rows by throughput descending.
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].throughput > rows[j].throughput
	})
	fmt.Println("## Last Session Benchmark Summary")
	fmt.Println()
	fmt.Println("| Implementation           | Package         | Features                    | Author                      | Throughput (msgs/sec) |")
	fmt.Println("|--------------------------|-----------------|-----------------------------|-----------------------------|-----------------------|")
	for _, r := range rows {
		fmt.Printf("| %-24s | %-15s | %-27s | %-27s | %21.0f |\n",
			r.implementation, r.pkgName, r.features, r.author, r.throughput)
	}
}

// newEventLogger builds a debug-level JSON logger writing to a rotating file,
// so a long soak run with per-operation logging cannot fill the disk.
func newEventLogger(path string) *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    100, // megabytes per file
			MaxBackups: 3,
		}),
		zap.DebugLevel,
	)
	return zap.New(core)
}

func main() {
	// Flags.
	testIterations := flag.Int("iter", 5, "Number of test iterations per concurrency setting")
	cpuMaxFlag := flag.Int("cpu", 0, "If non-zero, test only that GOMAXPROCS value; if 0, test common CPU/vCPU values up to runtime.NumCPU()")
	capacityFlag := flag.Uint64("capacity", 1024, "Queue capacity for flag-driven runs (scenario files carry their own)")
	jsonExport := flag.Bool("json", false, "Export results as JSON to test-results.json")
	highConcurrency := flag.Bool("high-concurrency", false, "Include high concurrency configurations")
	markdownTable := flag.Bool("markdown-table", false, "Output markdown table from test-results.json and exit")
	jsonFileForMarkdown := flag.String("jsonfile", "test-results.json", "Path to JSON file for markdown table")
	progressFlag := flag.Bool("progress", false, "Display a progress bar with ETA")
	configFile := flag.String("config", "", "YAML scenario file; overrides the built-in concurrency configurations")
	logFile := flag.String("logfile", "", "Rotating file for per-operation event logs from the logged implementation")
	flag.Parse()

	if *markdownTable {
		outputMarkdownTable(*jsonFileForMarkdown)
		return
	}

	if *logFile != "" {
		eventLogger = newEventLogger(*logFile)
		defer eventLogger.Sync()
	}

	trueCpuCount := runtime.NumCPU()
	var cpuSettings []int
	// Define the common CPU/vCPU settings.
	commonCPUs := []int{1, 2, 3, 4, 6, 8, 12, 16, 32, 48, 56, 64, 96, 128, 192, 256, 384, 512}

	if *cpuMaxFlag > 0 {
		desired := *cpuMaxFlag
		if desired > trueCpuCount {
			desired = trueCpuCount
		}
		cpuSettings = []int{desired}
	} else {
		for _, v := range commonCPUs {
			if v <= trueCpuCount {
				cpuSettings = append(cpuSettings, v)
			}
		}
	}

	// Resolve the benchmark configurations: scenario file if given, otherwise
	// the built-in concurrency ladder at the flag-selected capacity.
	var specs []runSpec
	if *configFile != "" {
		scenarios, err := testbench.LoadScenarios(*configFile)
		if err != nil {
			fail(err)
		}
		for _, s := range scenarios {
			specs = append(specs, runSpec{
				scenario: s.Name,
				capacity: s.Capacity,
				cfg:      s.Config(),
				duration: time.Duration(s.Duration),
			})
		}
	} else {
		concurrencyConfigs := []testbench.Config{
			{NumProducers: 2, NumConsumers: 2},
			{NumProducers: 10, NumConsumers: 10},
			{NumProducers: 50, NumConsumers: 50},
		}
		if *highConcurrency {
			concurrencyConfigs = append(concurrencyConfigs,
				testbench.Config{NumProducers: 100, NumConsumers: 100},
				testbench.Config{NumProducers: 250, NumConsumers: 250},
				testbench.Config{NumProducers: 500, NumConsumers: 500},
			)
		}
		for _, cfg := range concurrencyConfigs {
			specs = append(specs, runSpec{
				capacity: *capacityFlag,
				cfg:      cfg,
				duration: 5 * time.Second,
			})
		}
	}

	// Calculate total number of tests for progress tracking.
	impls := getImplementations()
	totalTests := len(cpuSettings) * len(specs) * (*testIterations) * len(impls)

	var bar *progressbar.ProgressBar
	if *progressFlag {
		bar = progressbar.NewOptions(totalTests,
			progressbar.OptionSetDescription("benchmarks"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
	}

	var allSessions []FullReport

	// Iterate over the desired GOMAXPROCS settings.
	for _, cpus := range cpuSettings {
		runtime.GOMAXPROCS(cpus)
		sysInfo := gatherSystemInfo()
		sysInfo.NumCPU = cpus
		sysInfo.TrueCPU = trueCpuCount
		sysInfo.SimulatedCPUCount = cpus

		// Print CPU header to stdout.
		fmt.Printf("\n=============================\n")
		fmt.Printf("GOMAXPROCS = %d\n", cpus)
		fmt.Printf("=============================\n")

		var results []BenchmarkResult

		for _, spec := range specs {
			label := spec.scenario
			if label == "" {
				label = "default"
			}
			fmt.Printf("  [%s: capacity=%d, producers=%d, consumers=%d]                                  \n",
				label, spec.capacity, spec.cfg.NumProducers, spec.cfg.NumConsumers)
			for iteration := 1; iteration <= *testIterations; iteration++ {
				fmt.Printf("    iteration %d/%d                                                      \n", iteration, *testIterations)
				// For each iteration, run each queue implementation.
				for _, impl := range impls {
					runtime.GC()
					q := impl.newQueue(spec.capacity)
					time.Sleep(250 * time.Millisecond)

					produced, consumed, actualTime := testbench.RunTimedTest(
						q,
						spec.cfg,
						spec.duration,
						func(i int) *int {
							v := i
							return &v
						},
						nil,
						func(v *int) bool { return v == nil },
					)
					throughput := float64(consumed) / actualTime.Seconds()
					timestamp := time.Now().Unix()

					// Print test result to stdout.
					fmt.Printf("    %s => produced=%d, consumed=%d, throughput=%.0f msg/s, took=%v\n",
						impl.name, produced, consumed, throughput, actualTime)

					if bar != nil {
						_ = bar.Add(1)
					}

					results = append(results, BenchmarkResult{
						Implementation:      impl.name,
						Scenario:            spec.scenario,
						Capacity:            spec.capacity,
						NumProducers:        spec.cfg.NumProducers,
						NumConsumers:        spec.cfg.NumConsumers,
						NumMessages:         produced,
						NumMessagesConsumed: consumed,
						TestDuration:        spec.duration.String(),
						ActualElapsed:       actualTime.String(),
						Throughput:          throughput,
						Timestamp:           timestamp,
						GoVersion:           runtime.Version(),
					})
				}
			}
		}

		allSessions = append(allSessions, FullReport{
			SessionID:   uuid.NewString(),
			SessionTime: time.Now().Format(time.RFC3339),
			SystemInfo:  sysInfo,
			Benchmarks:  results,
		})
	}

	// After all tests, finish the progress bar line so it is not overwritten.
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}

	// If JSON export is requested, append the new sessions to test-results.json.
	if *jsonExport {
		const filename = "test-results.json"
		previous, err := loadPreviousSessions(filename)
		if err != nil {
			fail(err)
		}
		updated := append(previous, allSessions...)
		data, err := json.MarshalIndent(updated, "", "  ")
		if err != nil {
			fail(errors.Wrap(err, "marshalling JSON"))
		}
		if err = os.WriteFile(filename, data, 0644); err != nil {
			fail(errors.Wrapf(err, "writing JSON file %s", filename))
		}
		fmt.Printf("\nWrote results to %s\n", filename)
	}
}

// loadPreviousSessions reads earlier sessions from the results file so a new
// run appends rather than overwrites. A missing file is an empty history; an
// unreadable or corrupt file is an error, so prior results are never silently
// dropped.
func loadPreviousSessions(filename string) ([]FullReport, error) {
	if _, err := os.Stat(filename); err != nil {
		return nil, nil
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "reading existing %s", filename)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var previous []FullReport
	if err := json.Unmarshal(data, &previous); err != nil {
		return nil, errors.Wrapf(err, "unmarshalling existing %s", filename)
	}
	return previous, nil
}

// gatherSystemInfo collects basic CPU and memory details.
func gatherSystemInfo() SystemInfo {
	numCPU := runtime.NumCPU()
	goArch := runtime.GOARCH

	var cpuModel string
	var cpuSpeed float64
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		cpuModel = infos[0].ModelName
		cpuSpeed = infos[0].Mhz
	}

	var totalMemory uint64
	if vm, err := mem.VirtualMemory(); err == nil {
		totalMemory = vm.Total
	}

	return SystemInfo{
		NumCPU:      numCPU,
		CPUModel:    cpuModel,
		CPUSpeedMHz: cpuSpeed,
		GOARCH:      goArch,
		TotalMemory: totalMemory,
	}
}

// getImplementations enumerates our different queue implementations.
func getImplementations() []Implementation[*int, benchQueue] {
	return []Implementation[*int, benchQueue]{
		{
			name:        "RingQueue",
			pkgName:     "ringqueue",
			description: "Circular buffer guarded by one mutex and two condition variables; producers and consumers park instead of spinning.",
			authors:     []string{"Mia Heidenstedt <heidenstedt.org>"},
			features:    []string{"MPMC", "FIFO", "Blocking", "Clone"},
			newQueue: func(capacity uint64) benchQueue {
				return ringqueue.New[*int](capacity)
			},
		},
		{
			name:        "RingQueue (logged)",
			pkgName:     "qlog",
			description: "RingQueue behind the event-logging decorator; measures the cost of per-operation observation.",
			authors:     []string{"Mia Heidenstedt <heidenstedt.org>"},
			features:    []string{"MPMC", "FIFO", "Blocking", "Logged"},
			newQueue: func(capacity uint64) benchQueue {
				return qlog.Wrap[*int](ringqueue.New[*int](capacity), eventLogger)
			},
		},
		{
			name:        "SemaRing",
			pkgName:     "semaring",
			description: "Circular buffer with two counting semaphores doing the parking and a mutex doing the bookkeeping.",
			authors:     []string{"Mia Heidenstedt <heidenstedt.org>"},
			features:    []string{"MPMC", "FIFO", "Blocking", "Clone"},
			newQueue: func(capacity uint64) benchQueue {
				return semaring.New[*int](capacity)
			},
		},
		{
			name:        "Golang Buffered Channel",
			pkgName:     "chanqueue",
			description: "Buffered channel as the baseline; the runtime provides the blocking semantics natively.",
			authors:     []string{"Mia Heidenstedt <heidenstedt.org>"},
			features:    []string{"MPMC", "FIFO", "Blocking"},
			newQueue: func(capacity uint64) benchQueue {
				return chanqueue.New[*int](capacity)
			},
		},
	}
}
