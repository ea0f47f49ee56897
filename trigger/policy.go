package trigger

import (
	"fmt"
	"math"
	"strings"

	"github.com/w1xm/lidar_scan/rotator"
	"github.com/w1xm/lidar_scan/scan"
)

// Kind selects how the trigger magnitude is computed.
type Kind int

const (
	// Shear triggers on the strongest wind in the height band.
	Shear Kind = iota
	// TKE triggers on a turbulence proxy, half the variance of radial
	// velocity at each height.
	TKE
	// Sonic triggers on a co-located sonic anemometer vector.
	Sonic
	// Remote triggers on a wind vector relayed from another site.
	Remote
)

var kindNames = map[Kind]string{
	Shear:  "shear",
	TKE:    "tke",
	Sonic:  "sonic",
	Remote: "remote",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(k))
}

func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, &rotator.ConfigurationError{Field: "policy kind", Reason: fmt.Sprintf("unknown kind %q", s)}
}

// Window is a range of directions. Min > Max means the window crosses
// north.
type Window struct {
	Min, Max float64
}

// Contains reports whether direction lies strictly inside w.
func (w Window) Contains(direction float64) bool {
	if w.Min < w.Max {
		return direction > w.Min && direction < w.Max
	}
	return direction > w.Min || direction < w.Max
}

func (w Window) Validate(field string) error {
	for _, v := range []float64{w.Min, w.Max} {
		if math.IsNaN(v) || v < 0 || v > 360 {
			return &rotator.ConfigurationError{Field: field, Reason: fmt.Sprintf("bound %g outside [0, 360]", v)}
		}
	}
	if w.Min == w.Max {
		return &rotator.ConfigurationError{Field: field, Reason: fmt.Sprintf("empty window [%g, %g]", w.Min, w.Max)}
	}
	return nil
}

// Band selects the heights, in metres, that a policy looks at. A band with
// Bottom == Top selects the single level nearest that height. The zero
// Band selects every level.
type Band struct {
	Bottom, Top float64
}

func (b Band) all() bool {
	return b.Bottom == 0 && b.Top == 0
}

// Template describes the scan to run for one trigger state.
type Template struct {
	Mode       scan.SweepMode
	Elevations []float64
	// Azimuths is used as is by modes that are not steered by direction.
	Azimuths scan.AzimuthSpec
	// Width is the sector width centred on the trigger direction.
	Width float64
	// Offsets are cone beam azimuths relative to the trigger direction.
	Offsets   []float64
	BeamWidth float64
}

func (t Template) Validate(field string) error {
	for _, el := range t.Elevations {
		if err := rotator.ValidateElevation(el); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	switch t.Mode {
	case scan.Sector:
		if t.Width <= 0 || t.Width >= 360 {
			return &rotator.ConfigurationError{Field: field + " width", Reason: fmt.Sprintf("%g outside (0, 360)", t.Width)}
		}
		if t.BeamWidth <= 0 {
			return &rotator.ConfigurationError{Field: field + " beam width", Reason: "sector scans need a positive beam width"}
		}
	case scan.RHI, scan.Stare, scan.VerticalPointing:
	case scan.Cone:
		if len(t.Offsets) == 0 && t.Azimuths.Interval != nil && t.BeamWidth <= 0 {
			return &rotator.ConfigurationError{Field: field + " beam width", Reason: "azimuth sweeps need a positive beam width"}
		}
	default:
		if t.Azimuths.Interval != nil && t.BeamWidth <= 0 {
			return &rotator.ConfigurationError{Field: field + " beam width", Reason: "azimuth sweeps need a positive beam width"}
		}
	}
	if t.Mode != scan.VerticalPointing && len(t.Elevations) == 0 {
		return &rotator.ConfigurationError{Field: field + " elevations", Reason: "no elevations"}
	}
	return nil
}

// Instantiate returns the scan geometry for t pointed at direction.
// Modes that do not depend on direction ignore it.
func (t Template) Instantiate(direction float64) scan.Geometry {
	g := scan.Geometry{Mode: t.Mode, BeamWidth: t.BeamWidth}
	direction = rotator.NormalizeAzimuth(direction)
	switch t.Mode {
	case scan.RHI, scan.Stare:
		g.Layers = scan.Layers(t.Elevations, scan.Azimuths(direction))
	case scan.Sector:
		half := t.Width / 2
		g.Layers = scan.Layers(t.Elevations, scan.Sweep(
			rotator.NormalizeAzimuth(direction-half),
			rotator.NormalizeAzimuth(direction+half),
		))
	case scan.Cone:
		az := t.Azimuths
		if len(t.Offsets) > 0 {
			beams := make([]float64, len(t.Offsets))
			for i, o := range t.Offsets {
				beams[i] = rotator.NormalizeAzimuth(direction + o)
			}
			az = scan.Azimuths(beams...)
		}
		g.Layers = scan.Layers(t.Elevations, az)
	case scan.VerticalPointing:
		g.Layers = []scan.Layer{{Elevation: 90, Azimuths: scan.Azimuths(0)}}
	default:
		g.Layers = scan.Layers(t.Elevations, t.Azimuths)
	}
	return g
}

// Policy is the complete trigger configuration for one site.
type Policy struct {
	Kind Kind
	// Threshold is compared against the magnitude in m/s (or m²/s² for
	// TKE).
	Threshold float64
	// Direction is the window the wind must blow from to trigger.
	Direction Window
	// Upwind, when set, flips directions inside it by 180 degrees before
	// the Direction window is tested.
	Upwind *Window
	Band   Band

	Triggered  Template
	Background Template
}

func (p Policy) Validate() error {
	if math.IsNaN(p.Threshold) || p.Threshold < 0 {
		return &rotator.ConfigurationError{Field: "threshold", Reason: fmt.Sprintf("must be non-negative, got %g", p.Threshold)}
	}
	if _, ok := kindNames[p.Kind]; !ok {
		return &rotator.ConfigurationError{Field: "policy kind", Reason: p.Kind.String()}
	}
	if err := p.Direction.Validate("direction window"); err != nil {
		return err
	}
	if p.Upwind != nil {
		if err := p.Upwind.Validate("upwind window"); err != nil {
			return err
		}
	}
	if p.Band.Top < p.Band.Bottom {
		return &rotator.ConfigurationError{Field: "height band", Reason: fmt.Sprintf("top %g below bottom %g", p.Band.Top, p.Band.Bottom)}
	}
	if err := p.Triggered.Validate("triggered template"); err != nil {
		return err
	}
	return p.Background.Validate("background template")
}
