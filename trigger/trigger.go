// Package trigger decides which scan the lidar should run next from a
// summary of the recent wind field.
package trigger

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/w1xm/lidar_scan/rotator"
	"github.com/w1xm/lidar_scan/scan"
)

// ErrDataUnavailable is returned when a summary has no usable samples in
// the policy's height band. The accompanying Decision is always
// IdleBackground.
var ErrDataUnavailable = errors.New("wind data unavailable")

type State int

const (
	IdleBackground State = iota
	TriggeredDirected
)

func (s State) String() string {
	switch s {
	case IdleBackground:
		return "IDLE_BACKGROUND"
	case TriggeredDirected:
		return "TRIGGERED_DIRECTED"
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}

// Level is the wind retrieved at one height. Missing values are NaN.
type Level struct {
	Height    float64
	Speed     float64
	Direction float64
	// RadialVelocity holds the raw radial velocities at this height,
	// used by TKE policies.
	RadialVelocity []float64
}

// Vector is a single wind measurement, e.g. from a sonic anemometer.
type Vector struct {
	Speed     float64
	Direction float64
}

func (v Vector) valid() bool {
	return !math.IsNaN(v.Speed) && !math.IsNaN(v.Direction)
}

// WindSummary is the wind field of one retrieval window.
type WindSummary struct {
	Time   time.Time
	Levels []Level
	// Vector, when present, is used by Sonic and Remote policies in
	// preference to Levels.
	Vector *Vector
}

// Decision is the result of one evaluation.
type Decision struct {
	State State
	// Magnitude and Direction are NaN when no data was available.
	// Direction is after any upwind flip.
	Magnitude float64
	Direction float64
	// Height of the level the magnitude came from; NaN for vectors.
	Height  float64
	Flipped bool
	// Shear is the direction at the top of the band minus the direction
	// at the bottom, in (-180, 180]. NaN with fewer than two levels.
	Shear    float64
	Geometry scan.Geometry
}

// Evaluate applies p to s. It returns a ConfigurationError if p is invalid,
// and ErrDataUnavailable together with an IdleBackground decision if s has
// no usable data.
func Evaluate(s WindSummary, p Policy) (Decision, error) {
	if err := p.Validate(); err != nil {
		return Decision{}, err
	}
	levels := p.Band.levels(s.Levels)
	d := Decision{
		Magnitude: math.NaN(),
		Direction: math.NaN(),
		Height:    math.NaN(),
		Shear:     directionalShear(levels),
	}
	sample, ok := p.magnitude(s, levels)
	if !ok {
		d.State = IdleBackground
		d.Geometry = p.Background.Instantiate(0)
		return d, ErrDataUnavailable
	}
	d.Magnitude, d.Direction, d.Height = sample.magnitude, rotator.NormalizeAzimuth(sample.direction), sample.height

	if p.Upwind != nil && p.Upwind.Contains(d.Direction) {
		d.Direction = rotator.Flip(d.Direction)
		d.Flipped = true
	}

	if math.Abs(d.Magnitude) > p.Threshold && p.Direction.Contains(d.Direction) {
		d.State = TriggeredDirected
		d.Geometry = p.Triggered.Instantiate(d.Direction)
	} else {
		d.State = IdleBackground
		d.Geometry = p.Background.Instantiate(d.Direction)
	}
	return d, nil
}

type sample struct {
	magnitude, direction, height float64
}

func (p Policy) magnitude(s WindSummary, levels []Level) (sample, bool) {
	switch p.Kind {
	case Sonic, Remote:
		if s.Vector != nil {
			if !s.Vector.valid() {
				return sample{}, false
			}
			return sample{s.Vector.Speed, s.Vector.Direction, math.NaN()}, true
		}
		return maxSpeed(levels)
	case TKE:
		return maxTKE(levels)
	}
	return maxSpeed(levels)
}

func maxSpeed(levels []Level) (sample, bool) {
	best, ok := sample{}, false
	for _, l := range levels {
		if math.IsNaN(l.Speed) || math.IsNaN(l.Direction) {
			continue
		}
		if !ok || l.Speed > best.magnitude {
			best, ok = sample{l.Speed, l.Direction, l.Height}, true
		}
	}
	return best, ok
}

// Turbulence returns half the population variance of the valid samples in
// radial, and false if there are none.
func Turbulence(radial []float64) (float64, bool) {
	valid := make([]float64, 0, len(radial))
	for _, v := range radial {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return math.NaN(), false
	}
	return 0.5 * stat.PopVariance(valid, nil), true
}

func maxTKE(levels []Level) (sample, bool) {
	best, ok := sample{}, false
	for _, l := range levels {
		if math.IsNaN(l.Direction) {
			continue
		}
		tke, valid := Turbulence(l.RadialVelocity)
		if !valid {
			continue
		}
		if !ok || tke > best.magnitude {
			best, ok = sample{tke, l.Direction, l.Height}, true
		}
	}
	return best, ok
}

func (b Band) levels(levels []Level) []Level {
	if b.all() {
		return levels
	}
	if b.Bottom == b.Top {
		var nearest *Level
		for i := range levels {
			l := &levels[i]
			if math.IsNaN(l.Height) {
				continue
			}
			if nearest == nil || math.Abs(l.Height-b.Bottom) < math.Abs(nearest.Height-b.Bottom) {
				nearest = l
			}
		}
		if nearest == nil {
			return nil
		}
		return []Level{*nearest}
	}
	var out []Level
	for _, l := range levels {
		if l.Height >= b.Bottom && l.Height <= b.Top {
			out = append(out, l)
		}
	}
	return out
}

func directionalShear(levels []Level) float64 {
	var valid []Level
	for _, l := range levels {
		if !math.IsNaN(l.Height) && !math.IsNaN(l.Direction) {
			valid = append(valid, l)
		}
	}
	if len(valid) < 2 {
		return math.NaN()
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].Height < valid[j].Height })
	bottom, top := valid[0], valid[len(valid)-1]
	if bottom.Height == top.Height {
		return math.NaN()
	}
	return rotator.Difference(bottom.Direction, top.Direction)
}
