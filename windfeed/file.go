// Package windfeed supplies wind summaries to the decision cycle.
package windfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/w1xm/lidar_scan/trigger"
)

// level is the JSON form of trigger.Level; null marks a missing value.
type level struct {
	Height         *float64   `json:"height"`
	Speed          *float64   `json:"speed"`
	Direction      *float64   `json:"direction"`
	RadialVelocity []*float64 `json:"radial_velocity,omitempty"`
}

type vector struct {
	Speed     *float64 `json:"speed"`
	Direction *float64 `json:"direction"`
}

type summary struct {
	Time   time.Time `json:"time"`
	Levels []level   `json:"levels"`
	Vector *vector   `json:"vector,omitempty"`
}

func value(f *float64) float64 {
	if f == nil {
		return math.NaN()
	}
	return *f
}

// Decode parses a JSON wind summary as written by the wind retrieval.
func Decode(data []byte) (trigger.WindSummary, error) {
	var s summary
	if err := json.Unmarshal(data, &s); err != nil {
		return trigger.WindSummary{}, err
	}
	out := trigger.WindSummary{Time: s.Time}
	for _, l := range s.Levels {
		tl := trigger.Level{
			Height:    value(l.Height),
			Speed:     value(l.Speed),
			Direction: value(l.Direction),
		}
		for _, v := range l.RadialVelocity {
			tl.RadialVelocity = append(tl.RadialVelocity, value(v))
		}
		out.Levels = append(out.Levels, tl)
	}
	if s.Vector != nil {
		out.Vector = &trigger.Vector{Speed: value(s.Vector.Speed), Direction: value(s.Vector.Direction)}
	}
	return out, nil
}

// File reads the summary from a JSON file on every call.
type File struct {
	Path string
	// MaxAge rejects summaries older than this; zero disables the check.
	MaxAge time.Duration
	Now    func() time.Time
}

func (f *File) Summary(ctx context.Context) (trigger.WindSummary, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return trigger.WindSummary{}, err
	}
	s, err := Decode(data)
	if err != nil {
		return trigger.WindSummary{}, fmt.Errorf("parsing %q: %w", f.Path, err)
	}
	if f.MaxAge > 0 {
		now := time.Now
		if f.Now != nil {
			now = f.Now
		}
		if age := now().Sub(s.Time); age > f.MaxAge {
			return trigger.WindSummary{}, fmt.Errorf("%q is %v old: %w", f.Path, age.Round(time.Second), trigger.ErrDataUnavailable)
		}
	}
	return s, nil
}
