package rotator

import (
	"fmt"
	"math"
)

// MaxElevation is the largest elevation the scanner can point to
// (horizon to horizon through zenith).
const MaxElevation = 180

// NormalizeAzimuth wraps angle into [0, 360).
func NormalizeAzimuth(angle float64) float64 {
	angle = math.Mod(angle, 360)
	if angle < 0 {
		angle += 360
	}
	if angle >= 360 {
		// -1e-15 + 360 rounds to 360
		angle = 0
	}
	return angle
}

// ValidateElevation rejects elevations outside [0, MaxElevation].
func ValidateElevation(angle float64) error {
	if math.IsNaN(angle) || angle < 0 || angle > MaxElevation {
		return &ConfigurationError{Field: "elevation", Reason: fmt.Sprintf("%g outside [0, %d]", angle, MaxElevation)}
	}
	return nil
}

// Difference returns b-a wrapped into (-180, 180].
func Difference(a, b float64) float64 {
	d := NormalizeAzimuth(b - a)
	if d > 180 {
		d -= 360
	}
	return d
}

// Flip returns the reciprocal direction.
func Flip(angle float64) float64 {
	return NormalizeAzimuth(angle + 180)
}

func Deg2Rad(x float64) float64 {
	return x * math.Pi / 180
}

func Rad2Deg(x float64) float64 {
	return x * 180 / math.Pi
}
