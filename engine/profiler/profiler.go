package profiler

import (
	"log/slog"
	"runtime"
	"time"
)

// Summary is the whole-run view the benchmark mode prints on exit.
type Summary struct {
	Frames     uint64
	Elapsed    time.Duration
	AvgFPS     float64
	AvgDraws   float64
	Instances  uint64
	MinFrame   time.Duration
	MaxFrame   time.Duration
	HeapMB     float64
	GCs        uint32
	Throughput float64 // instances per second
}

// Profiler tracks frame rate, submitted work and memory statistics.
// Outputs stats to the logger at a configurable interval.
type Profiler struct {
	logger         *slog.Logger
	now            func() time.Time
	updateInterval time.Duration

	start     time.Time
	lastTime  time.Time
	lastFrame time.Time

	frameCount int
	draws      int
	instances  uint64

	total          Summary
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
}

// Option configures a Profiler.
type Option func(*Profiler)

// WithLogger sets the logger interval reports go to.
func WithLogger(l *slog.Logger) Option {
	return func(p *Profiler) {
		p.logger = l
	}
}

// WithInterval sets how often Tick reports. Defaults to one second.
func WithInterval(d time.Duration) Option {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

// WithClock replaces the time source. Tests drive the profiler with a fake clock.
func WithClock(now func() time.Time) Option {
	return func(p *Profiler) {
		p.now = now
	}
}

// NewProfiler creates a new Profiler. The run starts now.
//
// Parameters:
//   - options: logger, interval and clock
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...Option) *Profiler {
	p := &Profiler{
		logger:         slog.Default(),
		now:            time.Now,
		updateInterval: time.Second,
	}
	for _, opt := range options {
		opt(p)
	}
	p.logger = p.logger.With("component", "profiler")
	p.start = p.now()
	p.lastTime = p.start
	p.lastFrame = p.start
	return p
}

// Tick should be called once per rendered frame with what the frame submitted.
// Logs FPS, draws per frame, instances per second, heap usage, allocation rate and GC pauses when
// the update interval has elapsed.
//
// Parameters:
//   - draws: draw commands the frame issued
//   - instances: instances the frame asked for
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick(draws int, instances uint64) bool {
	currentTime := p.now()
	frameTime := currentTime.Sub(p.lastFrame)
	p.lastFrame = currentTime

	p.frameCount++
	p.draws += draws
	p.instances += instances

	p.total.Frames++
	p.total.Instances += instances
	p.total.AvgDraws += float64(draws)
	if p.total.MinFrame == 0 || frameTime < p.total.MinFrame {
		p.total.MinFrame = frameTime
	}
	if frameTime > p.total.MaxFrame {
		p.total.MaxFrame = frameTime
	}

	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()

	// Alloc is live heap, TotalAlloc only grows and tracks churn, Sys is the process footprint.
	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 pauses.
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			if pause := p.memStats.PauseNs[i%256] / 1000; pause > maxPauseUs {
				maxPauseUs = pause
			}
		}
	}

	p.logger.Info("frame stats",
		"fps", fps,
		"draws_per_frame", float64(p.draws)/float64(p.frameCount),
		"instances_per_sec", float64(p.instances)/elapsed.Seconds(),
		"heap_mb", allocMB,
		"alloc_rate_mb_s", allocRateMB,
		"gc", gcCount,
		"gc_last_us", lastPauseUs,
		"gc_max_us", maxPauseUs,
		"sys_mb", sysMB)

	p.frameCount = 0
	p.draws = 0
	p.instances = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	p.total.HeapMB = allocMB
	p.total.GCs = gcCount
	return true
}

// Summary returns the totals since NewProfiler.
func (p *Profiler) Summary() Summary {
	s := p.total
	s.Elapsed = p.lastFrame.Sub(p.start)
	if s.Frames > 0 {
		s.AvgDraws /= float64(s.Frames)
	}
	if secs := s.Elapsed.Seconds(); secs > 0 {
		s.AvgFPS = float64(s.Frames) / secs
		s.Throughput = float64(s.Instances) / secs
	}
	return s
}

// LogSummary writes Summary as one record.
func (p *Profiler) LogSummary() {
	s := p.Summary()
	p.logger.Info("run summary",
		"frames", s.Frames,
		"elapsed", s.Elapsed,
		"avg_fps", s.AvgFPS,
		"avg_draws", s.AvgDraws,
		"instances_per_sec", s.Throughput,
		"min_frame", s.MinFrame,
		"max_frame", s.MaxFrame)
}
