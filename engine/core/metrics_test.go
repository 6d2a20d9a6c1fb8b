package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsReportsOncePerSecond(t *testing.T) {
	require.NoError(t, MetricsInitialize())

	refreshes := 0
	// 0.1s frames: the counter crosses one second on the tenth frame.
	for i := 0; i < 30; i++ {
		MetricsUpdate(0.1)
		if _, _, ok := MetricsFrame(); ok {
			refreshes++
		}
	}
	fps, ms, _ := MetricsFrame()
	assert.Equal(t, 3, refreshes)
	assert.InDelta(t, 10, fps, 1e-9)
	assert.InDelta(t, 100, ms, 1e-6)
	assert.InDelta(t, 100, MetricsFrameTime(), 1e-6)
	assert.InDelta(t, 10, MetricsFPS(), 1e-9)
}
