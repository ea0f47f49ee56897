// Package scan turns scan geometries into ordered ray sequences.
package scan

import (
	"fmt"
	"math"
	"strings"

	"github.com/w1xm/lidar_scan/rotator"
)

type SweepMode int

const (
	PPI SweepMode = iota
	RHI
	VerticalPointing
	Sector
	Cone
	Stare
)

var sweepModeNames = map[SweepMode]string{
	PPI:              "azimuth_surveillance",
	RHI:              "rhi",
	VerticalPointing: "vertical_pointing",
	Sector:           "sector",
	Cone:             "cone",
	Stare:            "stare",
}

func (m SweepMode) String() string {
	if s, ok := sweepModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(m))
}

// ParseSweepMode accepts the names returned by SweepMode.String, plus "ppi".
func ParseSweepMode(s string) (SweepMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "ppi" {
		return PPI, nil
	}
	for m, name := range sweepModeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, &rotator.ConfigurationError{Field: "sweep mode", Reason: fmt.Sprintf("unknown mode %q", s)}
}

func (m SweepMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *SweepMode) UnmarshalText(text []byte) error {
	v, err := ParseSweepMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Interval is a clockwise azimuth sweep from Start to End.
// End < Start means the sweep crosses north.
type Interval struct {
	Start, End float64
}

// Span returns the clockwise extent of the interval in degrees.
func (i Interval) Span() float64 {
	span := i.End - i.Start
	if span < 0 {
		span += 360
	}
	return span
}

// AzimuthSpec is either a discrete list of azimuths or a sweep interval.
type AzimuthSpec struct {
	List     []float64
	Interval *Interval
}

func Azimuths(az ...float64) AzimuthSpec {
	return AzimuthSpec{List: az}
}

func Sweep(start, end float64) AzimuthSpec {
	return AzimuthSpec{Interval: &Interval{Start: start, End: end}}
}

// Layer is one elevation of a scan.
type Layer struct {
	Elevation float64
	Azimuths  AzimuthSpec
}

type Geometry struct {
	Mode   SweepMode
	Layers []Layer
	// BeamWidth is the azimuth step used to sample sweep intervals.
	BeamWidth float64
}

// Plan is the ordered list of rays the scanner visits.
type Plan []rotator.Ray

// Build expands g into a Plan. Even layers are visited in their natural
// order and odd layers in reverse, so that the head never slews back
// across the whole sector between elevations.
func Build(g Geometry) (Plan, error) {
	var plan Plan
	for i, layer := range g.Layers {
		if err := rotator.ValidateElevation(layer.Elevation); err != nil {
			return nil, err
		}
		az, err := g.expand(layer.Azimuths)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		if i%2 == 1 {
			reverse(az)
		}
		for _, a := range az {
			plan = append(plan, rotator.Ray{Azimuth: a, Elevation: layer.Elevation})
		}
	}
	return plan, nil
}

// expand returns a fresh slice so that reversing it never touches the
// caller's geometry.
func (g Geometry) expand(spec AzimuthSpec) ([]float64, error) {
	if spec.Interval == nil {
		out := make([]float64, len(spec.List))
		for i, a := range spec.List {
			out[i] = rotator.NormalizeAzimuth(a)
		}
		return out, nil
	}
	if g.BeamWidth <= 0 || math.IsNaN(g.BeamWidth) {
		return nil, &rotator.ConfigurationError{Field: "beam width", Reason: fmt.Sprintf("must be positive for sweep intervals, got %g", g.BeamWidth)}
	}
	return sample(*spec.Interval, g.BeamWidth), nil
}

// sampleTolerance absorbs floating point error when a span is an exact
// multiple of the beam width.
const sampleTolerance = 1e-9

// sample steps through iv one beam width at a time. The head starts the
// sweep at iv.Start, so rays are collected at Start+step ... End. An
// interval narrower than one beam is a single ray at Start.
func sample(iv Interval, step float64) []float64 {
	start := rotator.NormalizeAzimuth(iv.Start)
	n := int(math.Floor(iv.Span()/step + sampleTolerance))
	if n == 0 {
		return []float64{start}
	}
	out := make([]float64, 0, n)
	for k := 1; k <= n; k++ {
		out = append(out, rotator.NormalizeAzimuth(start+float64(k)*step))
	}
	return out
}

func reverse(az []float64) {
	for i, j := 0, len(az)-1; i < j; i, j = i+1, j-1 {
		az[i], az[j] = az[j], az[i]
	}
}

// Pair builds a plan from element-wise azimuth and elevation arrays.
func Pair(azimuths, elevations []float64) (Plan, error) {
	if len(azimuths) != len(elevations) {
		return nil, &rotator.ConfigurationError{
			Field:  "ray arrays",
			Reason: fmt.Sprintf("%d azimuths but %d elevations", len(azimuths), len(elevations)),
		}
	}
	plan := make(Plan, len(azimuths))
	for i := range azimuths {
		if err := rotator.ValidateElevation(elevations[i]); err != nil {
			return nil, fmt.Errorf("ray %d: %w", i, err)
		}
		plan[i] = rotator.Ray{Azimuth: rotator.NormalizeAzimuth(azimuths[i]), Elevation: elevations[i]}
	}
	return plan, nil
}

// Layers returns one layer per elevation, each sharing the same azimuths.
func Layers(elevations []float64, az AzimuthSpec) []Layer {
	layers := make([]Layer, len(elevations))
	for i, el := range elevations {
		layers[i] = Layer{Elevation: el, Azimuths: az}
	}
	return layers
}

// RHIGeometry returns a range-height scan at a fixed azimuth, stepping
// elevation from min to max.
func RHIGeometry(azimuth, min, max, step float64) (Geometry, error) {
	if step <= 0 || max < min {
		return Geometry{}, &rotator.ConfigurationError{Field: "rhi elevations", Reason: fmt.Sprintf("cannot step %g..%g by %g", min, max, step)}
	}
	var layers []Layer
	for el := min; el <= max+sampleTolerance; el += step {
		layers = append(layers, Layer{Elevation: math.Min(el, max), Azimuths: Azimuths(azimuth)})
	}
	return Geometry{Mode: RHI, Layers: layers}, nil
}
