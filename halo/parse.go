package halo

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/w1xm/lidar_scan/rotator"
	"github.com/w1xm/lidar_scan/scan"
)

// Step is one decoded CSM motion record and the dwell that follows it.
type Step struct {
	AzAccel, AzSpeed, AzPos int
	ElAccel, ElSpeed, ElPos int
	Wait                    time.Duration
}

// File is a parsed CSM file.
type File struct {
	Mode         Mode
	Repeat       int
	RaysPerPoint int
	Steps        []Step
	// CRLF is false if any line was terminated by a bare LF.
	CRLF bool
}

var (
	recordRE = regexp.MustCompile(`^A\.1=(-?\d+),S\.1=(-?\d+),P\.1=(-?\d+)\*A\.2=(-?\d+),S\.2=(-?\d+),P\.2=(-?\d+)$`)
	waitRE   = regexp.MustCompile(`^W(\d+)$`)
)

func readLines(r io.Reader) (lines []string, crlf bool, err error) {
	br := bufio.NewReader(r)
	crlf = true
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			if strings.HasSuffix(line, "\n") && !strings.HasSuffix(line, "\r\n") {
				crlf = false
			}
			line = strings.TrimRight(line, "\r\n")
			if line != "" {
				lines = append(lines, line)
			}
		}
		if err == io.EOF {
			return lines, crlf, nil
		}
		if err != nil {
			return nil, false, err
		}
	}
}

// Parse reads a static or dynamic CSM file. Files that start with a bare
// integer are static.
func Parse(r io.Reader) (*File, error) {
	lines, crlf, err := readLines(r)
	if err != nil {
		return nil, fmt.Errorf("reading scan file: %w", err)
	}
	f := &File{Mode: Dynamic, CRLF: crlf}
	var rays int
	if len(lines) > 0 {
		if _, err := strconv.Atoi(lines[0]); err == nil {
			if len(lines) < 3 {
				return nil, errors.New("truncated header")
			}
			header := make([]int, 3)
			for i := range header {
				if header[i], err = strconv.Atoi(lines[i]); err != nil {
					return nil, fmt.Errorf("header line %d: %w", i+1, err)
				}
			}
			f.Mode = Static
			f.Repeat, rays, f.RaysPerPoint = header[0], header[1], header[2]
			lines = lines[3:]
		}
	}
	for _, line := range lines {
		if m := recordRE.FindStringSubmatch(line); m != nil {
			var v [6]int
			for i := range v {
				// The regexp only admits integers.
				v[i], _ = strconv.Atoi(m[i+1])
			}
			f.Steps = append(f.Steps, Step{
				AzAccel: v[0], AzSpeed: v[1], AzPos: v[2],
				ElAccel: v[3], ElSpeed: v[4], ElPos: v[5],
			})
			continue
		}
		if m := waitRE.FindStringSubmatch(line); m != nil {
			if len(f.Steps) == 0 {
				return nil, fmt.Errorf("wait %q before first record", line)
			}
			ms, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parsing %q: %w", line, err)
			}
			f.Steps[len(f.Steps)-1].Wait += time.Duration(ms) * time.Millisecond
			continue
		}
		return nil, fmt.Errorf("unrecognized record %q", line)
	}
	if f.Mode == Static && rays != len(f.Steps) {
		return nil, fmt.Errorf("header declares %d rays, file has %d", rays, len(f.Steps))
	}
	return f, nil
}

// Plan decodes the commanded positions of f.
func (f *File) Plan(device rotator.Device) scan.Plan {
	plan := make(scan.Plan, len(f.Steps))
	for i, s := range f.Steps {
		plan[i] = device.DecodeRay(s.AzPos, s.ElPos)
	}
	return plan
}

const legacyRecordLen = 14

// ParseLegacy reads a file written by EncodeLegacy.
func ParseLegacy(r io.Reader) (scan.Plan, error) {
	lines, _, err := readLines(r)
	if err != nil {
		return nil, fmt.Errorf("reading scan file: %w", err)
	}
	var plan scan.Plan
	for _, line := range lines {
		if len(line) != legacyRecordLen {
			return nil, fmt.Errorf("record %q: want %d characters", line, legacyRecordLen)
		}
		az, err := strconv.ParseFloat(line[:7], 64)
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", line, err)
		}
		el, err := strconv.ParseFloat(line[7:], 64)
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", line, err)
		}
		plan = append(plan, rotator.Ray{Azimuth: az, Elevation: el})
	}
	return plan, nil
}
