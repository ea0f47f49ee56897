package halo

import (
	"fmt"
	"math"
	"time"

	"github.com/w1xm/lidar_scan/rotator"
	"github.com/w1xm/lidar_scan/scan"
)

// Simulation is the result of replaying a CSM file.
type Simulation struct {
	Plan scan.Plan
	// Sweep is the time one pass through the file takes.
	Sweep time.Duration
	// Total includes all static repeats.
	Total time.Duration
}

// Simulate replays f on device starting from start. Each motor moves at its
// commanded speed; acceleration ramps are ignored, so durations are a lower
// bound.
func Simulate(device rotator.Device, f *File, start rotator.Ray) (Simulation, error) {
	azPos, elPos, err := device.EncodeRay(start)
	if err != nil {
		return Simulation{}, err
	}
	sim := Simulation{Plan: f.Plan(device)}
	for i, s := range f.Steps {
		azTime, err := travel(azPos, s.AzPos, s.AzSpeed)
		if err != nil {
			return Simulation{}, fmt.Errorf("step %d azimuth: %w", i, err)
		}
		elTime, err := travel(elPos, s.ElPos, s.ElSpeed)
		if err != nil {
			return Simulation{}, fmt.Errorf("step %d elevation: %w", i, err)
		}
		// Both axes move concurrently.
		move := azTime
		if elTime > move {
			move = elTime
		}
		sim.Sweep += move + s.Wait
		azPos, elPos = s.AzPos, s.ElPos
	}
	repeat := f.Repeat
	if repeat < 1 {
		repeat = 1
	}
	sim.Total = sim.Sweep * time.Duration(repeat)
	return sim, nil
}

func travel(from, to, speed int) (time.Duration, error) {
	delta := math.Abs(float64(to - from))
	if delta == 0 {
		return 0, nil
	}
	if speed <= 0 {
		return 0, fmt.Errorf("cannot move %v counts at speed %d", delta, speed)
	}
	return time.Duration(delta / float64(speed) * float64(time.Second)), nil
}
