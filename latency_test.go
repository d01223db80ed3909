package concurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLatencyRecorderEmpty(t *testing.T) {
	assert.Equal(t, LatencyStats{}, newLatencyRecorder().stats())
}

func TestLatencyRecorderPercentiles(t *testing.T) {
	l := newLatencyRecorder()
	for i := 1; i <= 100; i++ {
		l.record(time.Duration(i) * time.Millisecond)
	}

	s := l.stats()
	assert.Equal(t, int64(100), s.Count)
	assert.InDelta(t, float64(time.Millisecond), float64(s.Min), float64(50*time.Microsecond))
	assert.InDelta(t, float64(100*time.Millisecond), float64(s.Max), float64(time.Millisecond))
	assert.InDelta(t, float64(50*time.Millisecond), float64(s.P50), float64(time.Millisecond))
	assert.InDelta(t, float64(99*time.Millisecond), float64(s.P99), float64(time.Millisecond))
	assert.InDelta(t, float64(50500*time.Microsecond), float64(s.Mean), float64(time.Millisecond))
}

func TestLatencyRecorderClampsRange(t *testing.T) {
	l := newLatencyRecorder()
	l.record(0)
	l.record(2 * time.Minute)

	s := l.stats()
	assert.Equal(t, int64(2), s.Count)
	assert.Equal(t, time.Microsecond, s.Min)
	assert.InDelta(t, float64(60*time.Second), float64(s.Max), float64(100*time.Millisecond))
}
