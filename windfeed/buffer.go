package windfeed

import (
	"context"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/w1xm/lidar_scan/rotator"
	"github.com/w1xm/lidar_scan/trigger"
)

// Sample is one wind vector from a point sensor.
type Sample struct {
	Speed     float64   `json:"speed"`
	Direction float64   `json:"direction"`
	Timestamp time.Time `json:"timestamp"`
}

// Buffer keeps the samples of the last MaxAge and averages them into a
// vector summary.
type Buffer struct {
	MaxAge time.Duration
	Now    func() time.Time

	mu      sync.Mutex
	samples []Sample
}

func NewBuffer(maxAge time.Duration) *Buffer {
	return &Buffer{MaxAge: maxAge, Now: time.Now}
}

func (b *Buffer) Add(s Sample) {
	if math.IsNaN(s.Speed) || math.IsNaN(s.Direction) {
		return
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = b.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = append(b.samples, s)
	b.prune()
}

func (b *Buffer) prune() {
	cutoff := b.Now().Add(-b.MaxAge)
	i := 0
	for _, s := range b.samples {
		if !s.Timestamp.Before(cutoff) {
			b.samples[i] = s
			i++
		}
	}
	b.samples = b.samples[:i]
}

// Last returns the most recent sample.
func (b *Buffer) Last() (Sample, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.samples) == 0 {
		return Sample{}, false
	}
	return b.samples[len(b.samples)-1], true
}

// Summary averages the buffered samples: speed arithmetically and direction
// as a circular mean. An empty buffer yields an empty summary.
func (b *Buffer) Summary(ctx context.Context) (trigger.WindSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune()
	now := b.Now()
	if len(b.samples) == 0 {
		return trigger.WindSummary{Time: now}, nil
	}
	speeds := make([]float64, len(b.samples))
	dirs := make([]float64, len(b.samples))
	for i, s := range b.samples {
		speeds[i] = s.Speed
		dirs[i] = rotator.Deg2Rad(s.Direction)
	}
	return trigger.WindSummary{
		Time: now,
		Vector: &trigger.Vector{
			Speed:     stat.Mean(speeds, nil),
			Direction: rotator.NormalizeAzimuth(rotator.Rad2Deg(stat.CircularMean(dirs, nil))),
		},
	}, nil
}
