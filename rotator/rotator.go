package rotator

import "fmt"

// Ray is a single pointing direction of the scanner head, in decimal degrees.
type Ray struct {
	Azimuth   float64
	Elevation float64
}

func (r Ray) String() string {
	return fmt.Sprintf("(%g,%g)", r.Azimuth, r.Elevation)
}

// Axis describes one rotary encoder of the scanner head.
type Axis struct {
	CountsPerRevolution int
}

func (a Axis) countsPerDegree() float64 {
	return float64(a.CountsPerRevolution) / 360.
}

// Encode converts a position in degrees into encoder counts.
// Positions are negated (clockwise moves are negative counts) and truncated
// toward zero, never rounded.
func (a Axis) Encode(angle float64) int {
	return -int(angle * a.countsPerDegree())
}

// EncodeSpeed converts an angular speed in degrees/second into counts/second.
// Speeds are magnitudes and keep their sign.
func (a Axis) EncodeSpeed(speed float64) int {
	return int(speed * a.countsPerDegree())
}

// Decode converts encoder counts produced by Encode back into degrees.
func (a Axis) Decode(counts int) float64 {
	return -float64(counts) / a.countsPerDegree()
}

// DecodeSpeed is the inverse of EncodeSpeed.
func (a Axis) DecodeSpeed(counts int) float64 {
	return float64(counts) / a.countsPerDegree()
}

// Resolution returns the size of one encoder count in degrees.
func (a Axis) Resolution() float64 {
	return 1 / a.countsPerDegree()
}

// Device holds the encoder geometry of one scanner.
type Device struct {
	Azimuth   Axis
	Elevation Axis
}

const (
	HaloAzimuthCounts   = 500000
	HaloElevationCounts = 250000
)

// Halo returns the encoder geometry of a Halo Photonics Stream Line scanner.
func Halo() Device {
	return Device{
		Azimuth:   Axis{CountsPerRevolution: HaloAzimuthCounts},
		Elevation: Axis{CountsPerRevolution: HaloElevationCounts},
	}
}

func (d Device) Validate() error {
	if d.Azimuth.CountsPerRevolution <= 0 {
		return &ConfigurationError{Field: "azimuth counts per revolution", Reason: fmt.Sprintf("must be positive, got %d", d.Azimuth.CountsPerRevolution)}
	}
	if d.Elevation.CountsPerRevolution <= 0 {
		return &ConfigurationError{Field: "elevation counts per revolution", Reason: fmt.Sprintf("must be positive, got %d", d.Elevation.CountsPerRevolution)}
	}
	return nil
}

// EncodeRay normalizes r and returns its azimuth and elevation counts.
func (d Device) EncodeRay(r Ray) (az, el int, err error) {
	if err := ValidateElevation(r.Elevation); err != nil {
		return 0, 0, err
	}
	return d.Azimuth.Encode(NormalizeAzimuth(r.Azimuth)), d.Elevation.Encode(r.Elevation), nil
}

// DecodeRay is the inverse of EncodeRay.
func (d Device) DecodeRay(az, el int) Ray {
	return Ray{
		Azimuth:   NormalizeAzimuth(d.Azimuth.Decode(az)),
		Elevation: d.Elevation.Decode(el),
	}
}

// ConfigurationError reports a scan or policy setting that cannot be
// turned into a valid command.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
