package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrameMetricsAverage(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.010)
	}
	assert.InDelta(t, 10.0, m.FrameTime(), 1e-9)

	// A second window replaces the first instead of adding to it.
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.020)
	}
	assert.InDelta(t, 20.0, m.FrameTime(), 1e-9)
}

func TestFrameMetricsFPS(t *testing.T) {
	m := NewFrameMetrics()
	// 125ms frames: the ninth one crosses the one second mark.
	for i := 0; i < 9; i++ {
		m.Update(0.125)
	}
	fps, _ := m.Frame()
	assert.Equal(t, 8.0, fps)
	assert.Equal(t, fps, m.FPS())
}

func TestFrameMetricsPacerWaits(t *testing.T) {
	m := NewFrameMetrics()
	m.AddPacerWait(2 * time.Millisecond)
	m.AddPacerWait(3 * time.Millisecond)

	n, d := m.PacerWaits()
	assert.Equal(t, uint64(2), n)
	assert.Equal(t, 5*time.Millisecond, d)
}

func TestClock(t *testing.T) {
	c := NewClock()
	c.Update()
	assert.Zero(t, c.Elapsed())

	c.Start()
	time.Sleep(5 * time.Millisecond)
	c.Update()
	elapsed := c.Elapsed()
	assert.Greater(t, elapsed, 0.0)

	c.Stop()
	time.Sleep(5 * time.Millisecond)
	c.Update()
	assert.Equal(t, elapsed, c.Elapsed())
}
