package perfmonitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewPerformanceMonitor(t *testing.T) {
	pm := NewPerformanceMonitor()

	assert.NotNil(t, pm)
	assert.True(t, pm.startTime.IsZero())
	assert.True(t, pm.endTime.IsZero())
	assert.Equal(t, time.Duration(0), pm.Elapsed())
}

func TestStartStop(t *testing.T) {
	t.Run("stop without start is ignored", func(t *testing.T) {
		pm := NewPerformanceMonitor()
		pm.Stop()

		assert.True(t, pm.endTime.IsZero())
		assert.Equal(t, 0.0, pm.ElapsedMilliseconds())
	})

	t.Run("open interval reports zero", func(t *testing.T) {
		pm := NewPerformanceMonitor()
		pm.Start()

		assert.Equal(t, 0.0, pm.ElapsedMilliseconds())
	})

	t.Run("restart clears the previous stop", func(t *testing.T) {
		pm := NewPerformanceMonitor()
		pm.Start()
		pm.Stop()
		pm.Start()

		assert.True(t, pm.endTime.IsZero())
	})

	t.Run("stop after reset is ignored", func(t *testing.T) {
		pm := NewPerformanceMonitor()
		pm.Start()
		pm.Reset()
		pm.Stop()

		assert.True(t, pm.startTime.IsZero())
		assert.True(t, pm.endTime.IsZero())
	})
}

func TestElapsed(t *testing.T) {
	t.Run("measures the interval", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		pm.Start()
		time.Sleep(50 * time.Millisecond)
		pm.Stop()

		assert.GreaterOrEqual(t, pm.Elapsed(), 50*time.Millisecond)
		assert.Greater(t, pm.ElapsedMilliseconds(), 45.0)
		assert.Less(t, pm.ElapsedMilliseconds(), 150.0)
	})

	t.Run("second stop extends the interval", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		pm.Start()
		time.Sleep(20 * time.Millisecond)
		pm.Stop()
		first := pm.Elapsed()

		time.Sleep(20 * time.Millisecond)
		pm.Stop()

		assert.Greater(t, pm.Elapsed(), first)
	})

	t.Run("reset allows reuse", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		pm.Start()
		time.Sleep(10 * time.Millisecond)
		pm.Stop()
		pm.Reset()
		assert.Equal(t, 0.0, pm.ElapsedMilliseconds())

		pm.Start()
		time.Sleep(10 * time.Millisecond)
		pm.Stop()
		assert.Greater(t, pm.ElapsedMilliseconds(), 5.0)
	})
}
