package scan

import (
	"math"
	"sort"

	"github.com/w1xm/lidar_scan/rotator"
)

const (
	// azimuthMotion is the per-ray azimuth change above which the head is
	// considered to be sweeping in azimuth.
	azimuthMotion = 0.02
	// angleTolerance separates a fixed angle from a moving one.
	angleTolerance = 0.01
	zenith         = 90.0
)

// Classify infers the sweep mode of a scan that was recorded by the
// scanner. Only RHI, vertical pointing and PPI are distinguished.
func Classify(rays []rotator.Ray) SweepMode {
	if len(rays) == 0 {
		return PPI
	}
	vertical := true
	for _, r := range rays {
		if r.Elevation != zenith {
			vertical = false
			break
		}
	}
	if vertical {
		return VerticalPointing
	}
	moves := 0
	for i := 1; i < len(rays); i++ {
		if math.Abs(rotator.Difference(rays[i-1].Azimuth, rays[i].Azimuth)) > azimuthMotion {
			moves++
		}
	}
	if moves <= 2 {
		return RHI
	}
	return PPI
}

// FixedAngles returns the angle held constant in each sweep: the azimuth of
// an RHI or the elevation of a PPI or vertical stare.
func FixedAngles(rays []rotator.Ray, mode SweepMode) []float64 {
	var out []float64
	if mode == RHI {
		for i := 1; i < len(rays); i++ {
			if math.Abs(rotator.Difference(rays[i-1].Azimuth, rays[i].Azimuth)) < angleTolerance {
				out = append(out, rotator.NormalizeAzimuth(rays[i].Azimuth))
			}
		}
	} else {
		for _, r := range rays {
			out = append(out, r.Elevation)
		}
	}
	return unique(out)
}

func unique(values []float64) []float64 {
	sort.Float64s(values)
	var out []float64
	for i, v := range values {
		if i == 0 || v != values[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// SweepBounds splits rays into sweeps at elevation transitions and returns
// the index of the last ray of each sweep. Sweep k covers rays
// bounds[k-1]+1 through bounds[k], and the first sweep starts at ray 0, so
// no start index is included. Transitions closer than two rays to the
// previous one are treated as part of the same slew.
func SweepBounds(rays []rotator.Ray) []int {
	if len(rays) == 0 {
		return nil
	}
	var ends []int
	last := 0
	for i := 1; i < len(rays); i++ {
		if math.Abs(rays[i].Elevation-rays[i-1].Elevation) <= angleTolerance {
			continue
		}
		t := i - 1
		if t-last < 2 {
			continue
		}
		ends = append(ends, t)
		last = t
	}
	return append(ends, len(rays)-1)
}
