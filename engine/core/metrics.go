package core

import "sync"

const AVG_COUNT uint8 = 30

type MetricsState struct {
	FrameAVGCounter    uint8
	MStimes            [AVG_COUNT]float64
	MSavg              float64
	Frames             int32
	AccumulatedFrameMS float64
	FPS                float64
	// Set when FPS was recomputed by the last update.
	Refreshed bool
}

var metricsMu sync.Mutex
var metricsState *MetricsState = nil

func MetricsInitialize() error {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	metricsState = &MetricsState{}
	return nil
}

// MetricsUpdate records the duration of one frame in seconds.
func MetricsUpdate(frameElapsedTime float64) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if metricsState == nil {
		metricsState = &MetricsState{}
	}

	// Calculate frame ms average
	frameMS := frameElapsedTime * 1000.0
	metricsState.MStimes[metricsState.FrameAVGCounter] = frameMS
	if metricsState.FrameAVGCounter == AVG_COUNT-1 {
		sum := 0.0
		for i := uint8(0); i < AVG_COUNT; i++ {
			sum += metricsState.MStimes[i]
		}
		metricsState.MSavg = sum / float64(AVG_COUNT)
	}
	metricsState.FrameAVGCounter++
	metricsState.FrameAVGCounter %= AVG_COUNT

	// Count all frames, then calculate frames per second.
	metricsState.Frames++
	metricsState.Refreshed = false
	metricsState.AccumulatedFrameMS += frameMS
	if metricsState.AccumulatedFrameMS >= 1000 {
		metricsState.FPS = float64(metricsState.Frames)
		metricsState.AccumulatedFrameMS -= 1000
		metricsState.Frames = 0
		metricsState.Refreshed = true
	}
}

func MetricsFPS() float64 {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if metricsState == nil {
		return 0
	}
	return metricsState.FPS
}

func MetricsFrameTime() float64 {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if metricsState == nil {
		return 0
	}
	return metricsState.MSavg
}

// MetricsFrame returns the frames per second and the averaged milliseconds per frame.
// The last value reports whether the numbers were refreshed by the latest update,
// which happens about once per second.
func MetricsFrame() (float64, float64, bool) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if metricsState == nil {
		return 0, 0, false
	}
	return metricsState.FPS, metricsState.MSavg, metricsState.Refreshed
}
