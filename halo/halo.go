// Package halo writes and reads Halo Photonics Stream Line scan files.
//
// The scanner accepts two command files. The legacy "user" format lists one
// azimuth/elevation pair per ray. The CSM (continuous scan mode) format
// drives both motors directly with encoder positions, speeds and
// accelerations, one record per ray.
package halo

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/w1xm/lidar_scan/rotator"
	"github.com/w1xm/lidar_scan/scan"
)

// Mode selects the CSM file layout.
type Mode int

const (
	// Static files start with a repeat/ray count header and are loaded
	// when a scan is (re)started.
	Static Mode = iota
	// Dynamic files carry no header and replace the running scan once the
	// scanner is armed through the signal file.
	Dynamic
)

func (m Mode) String() string {
	switch m {
	case Static:
		return "static"
	case Dynamic:
		return "dynamic"
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(m))
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "static", "":
		return Static, nil
	case "dynamic":
		return Dynamic, nil
	}
	return 0, &rotator.ConfigurationError{Field: "scan file mode", Reason: fmt.Sprintf("unknown mode %q", s)}
}

const lineEnding = "\r\n"

// MotionParams controls how the head moves between rays.
type MotionParams struct {
	// AzimuthSpeed and ElevationSpeed are in degrees/second.
	AzimuthSpeed   float64
	ElevationSpeed float64
	// Acceleration is passed through to both motors unchanged.
	Acceleration int
	// Wait is the dwell time after each ray.
	Wait time.Duration
	// Repeat and RaysPerPoint are only written to static headers.
	Repeat       int
	RaysPerPoint int
}

// DefaultMotion matches the scanner's factory CSM settings.
func DefaultMotion() MotionParams {
	return MotionParams{
		AzimuthSpeed:   1,
		ElevationSpeed: 0.1,
		Acceleration:   30,
		Repeat:         1,
		RaysPerPoint:   1,
	}
}

func (p MotionParams) Validate(mode Mode) error {
	switch {
	case p.AzimuthSpeed < 0:
		return &rotator.ConfigurationError{Field: "azimuth speed", Reason: fmt.Sprintf("negative: %g", p.AzimuthSpeed)}
	case p.ElevationSpeed < 0:
		return &rotator.ConfigurationError{Field: "elevation speed", Reason: fmt.Sprintf("negative: %g", p.ElevationSpeed)}
	case p.Acceleration < 0:
		return &rotator.ConfigurationError{Field: "acceleration", Reason: fmt.Sprintf("negative: %d", p.Acceleration)}
	case p.Wait < 0:
		return &rotator.ConfigurationError{Field: "wait", Reason: fmt.Sprintf("negative: %v", p.Wait)}
	}
	if mode == Static {
		if p.Repeat <= 0 {
			return &rotator.ConfigurationError{Field: "repeat", Reason: fmt.Sprintf("must be positive, got %d", p.Repeat)}
		}
		if p.RaysPerPoint <= 0 {
			return &rotator.ConfigurationError{Field: "rays per point", Reason: fmt.Sprintf("must be positive, got %d", p.RaysPerPoint)}
		}
	}
	return nil
}

// Command is an encoded CSM file.
type Command struct {
	Mode Mode
	// Header holds repeat, ray count and rays per point for static files.
	Header []int
	// Lines holds the motion and wait records, without line endings.
	Lines []string
	// Rays is the number of motion records in Lines.
	Rays int
}

// Bytes returns the file contents with CRLF line endings.
func (c Command) Bytes() []byte {
	var b bytes.Buffer
	for _, h := range c.Header {
		b.WriteString(strconv.Itoa(h))
		b.WriteString(lineEnding)
	}
	for _, l := range c.Lines {
		b.WriteString(l)
		b.WriteString(lineEnding)
	}
	return b.Bytes()
}

// Encode converts plan into a CSM file for device.
func Encode(device rotator.Device, plan scan.Plan, p MotionParams, mode Mode) (Command, error) {
	if err := device.Validate(); err != nil {
		return Command{}, err
	}
	if err := p.Validate(mode); err != nil {
		return Command{}, err
	}
	c := Command{Mode: mode, Rays: len(plan)}
	if mode == Static {
		c.Header = []int{p.Repeat, len(plan), p.RaysPerPoint}
	}
	azSpeed := device.Azimuth.EncodeSpeed(p.AzimuthSpeed)
	elSpeed := device.Elevation.EncodeSpeed(p.ElevationSpeed)
	waitMs := p.Wait.Milliseconds()
	for i, r := range plan {
		az, el, err := device.EncodeRay(r)
		if err != nil {
			return Command{}, fmt.Errorf("ray %d %v: %w", i, r, err)
		}
		c.Lines = append(c.Lines, motionRecord(p.Acceleration, azSpeed, az, elSpeed, el))
		if waitMs > 0 {
			c.Lines = append(c.Lines, fmt.Sprintf("W%d", waitMs))
		}
	}
	return c, nil
}

func motionRecord(accel, azSpeed, az, elSpeed, el int) string {
	return fmt.Sprintf("A.1=%d,S.1=%d,P.1=%d*A.2=%d,S.2=%d,P.2=%d", accel, azSpeed, az, accel, elSpeed, el)
}

// EncodeLegacy writes plan in the fixed width user scan format.
func EncodeLegacy(plan scan.Plan) ([]byte, error) {
	var b bytes.Buffer
	for i, r := range plan {
		if err := rotator.ValidateElevation(r.Elevation); err != nil {
			return nil, fmt.Errorf("ray %d: %w", i, err)
		}
		fmt.Fprintf(&b, "%07.3f%07.3f\n", rotator.NormalizeAzimuth(r.Azimuth), r.Elevation)
	}
	return b.Bytes(), nil
}

// ArmSignal returns the contents of the dynamic scan signal file. Writing
// true makes the scanner adopt the most recently delivered dynamic file;
// false reverts it to its static scan.
func ArmSignal(armed bool) []byte {
	return []byte(strconv.FormatBool(armed) + lineEnding)
}
