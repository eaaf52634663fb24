package core

import "sync"

// Frame time average window, in frames.
const frameWindow = 30

type frameStats struct {
	samples [frameWindow]float64
	cursor  int
	avgMS   float64

	frames  int32
	accumMS float64
	fps     float64
}

var onceMetrics sync.Once
var stats *frameStats

func MetricsInitialize() {
	onceMetrics.Do(func() {
		stats = &frameStats{}
	})
}

// MetricsUpdate records one frame of delta seconds.
func MetricsUpdate(delta float64) {
	ms := delta * 1000.0
	stats.samples[stats.cursor] = ms
	stats.cursor++
	if stats.cursor == frameWindow {
		stats.cursor = 0
		sum := 0.0
		for _, s := range stats.samples {
			sum += s
		}
		stats.avgMS = sum / frameWindow
	}

	stats.accumMS += ms
	stats.frames++
	if stats.accumMS > 1000 {
		stats.fps = float64(stats.frames)
		stats.accumMS -= 1000
		stats.frames = 0
	}
}

// MetricsFrame returns frames per second and the windowed average frame
// time in milliseconds.
func MetricsFrame() (float64, float64) {
	return stats.fps, stats.avgMS
}
