package concurrence

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// LatencyStats summarizes the wall-clock duration of every attempt made
// during a run, successful or not. All fields are zero when nothing ran.
type LatencyStats struct {
	Count int64
	Min   time.Duration
	Max   time.Duration
	Mean  time.Duration
	P50   time.Duration
	P90   time.Duration
	P99   time.Duration
}

// latencyRecorder tracks attempt durations in microseconds,
// from 1µs up to 60s with 3 significant figures.
type latencyRecorder struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

func newLatencyRecorder() *latencyRecorder {
	return &latencyRecorder{hist: hdrhistogram.New(1, 60_000_000, 3)}
}

func (l *latencyRecorder) record(d time.Duration) {
	us := d.Microseconds()

	l.mu.Lock()
	defer l.mu.Unlock()

	if us < l.hist.LowestTrackableValue() {
		us = l.hist.LowestTrackableValue()
	}
	if us > l.hist.HighestTrackableValue() {
		us = l.hist.HighestTrackableValue()
	}
	_ = l.hist.RecordValue(us)
}

func (l *latencyRecorder) stats() LatencyStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.hist.TotalCount()
	if n == 0 {
		return LatencyStats{}
	}
	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return LatencyStats{
		Count: n,
		Min:   us(l.hist.Min()),
		Max:   us(l.hist.Max()),
		Mean:  time.Duration(l.hist.Mean() * float64(time.Microsecond)),
		P50:   us(l.hist.ValueAtQuantile(50)),
		P90:   us(l.hist.ValueAtQuantile(90)),
		P99:   us(l.hist.ValueAtQuantile(99)),
	}
}
