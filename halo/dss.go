package halo

import (
	"bytes"
	"fmt"
	"time"

	"github.com/w1xm/lidar_scan/rotator"
)

// ScheduleEntry is one line of a daily scan schedule (DSS) file.
type ScheduleEntry struct {
	// At is the offset from midnight.
	At time.Duration
	// Scan names the scan file to run, e.g. "profile" or "user1".
	Scan   string
	Repeat int
	// Type is 'S' for a stepped scan or 'C' for a CSM scan.
	Type byte
	// Focus is the telescope focus setting; 0 means infinity.
	Focus int
}

func (e ScheduleEntry) String() string {
	d := e.At.Truncate(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	return fmt.Sprintf("%02d%02d%02d\t%s\t%d\t%c\t%d", h, m, s, e.Scan, e.Repeat, e.Type, e.Focus)
}

// Schedule is an ordered daily scan schedule.
type Schedule []ScheduleEntry

// Bytes returns the DSS file contents with CRLF line endings.
func (s Schedule) Bytes() []byte {
	var b bytes.Buffer
	for _, e := range s {
		b.WriteString(e.String())
		b.WriteString(lineEnding)
	}
	return b.Bytes()
}

// ScheduleOptions control DailySchedule.
type ScheduleOptions struct {
	Scan   string
	Repeat int
	Type   byte
	Focus  int
	// Every is the interval between entries.
	Every time.Duration
	// Active reports whether an entry should be written at the given
	// offset from midnight. Nil means always.
	Active func(at time.Duration) bool
}

const day = 24 * time.Hour

// DailySchedule returns one entry every opts.Every over a whole day.
func DailySchedule(opts ScheduleOptions) (Schedule, error) {
	if opts.Every <= 0 {
		return nil, &rotator.ConfigurationError{Field: "schedule interval", Reason: fmt.Sprintf("must be positive, got %v", opts.Every)}
	}
	if opts.Scan == "" {
		return nil, &rotator.ConfigurationError{Field: "schedule scan", Reason: "empty scan name"}
	}
	if opts.Type != 'S' && opts.Type != 'C' {
		return nil, &rotator.ConfigurationError{Field: "schedule scan type", Reason: fmt.Sprintf("%q is not S or C", opts.Type)}
	}
	if opts.Repeat <= 0 {
		opts.Repeat = 1
	}
	var s Schedule
	for at := time.Duration(0); at < day; at += opts.Every {
		if opts.Active != nil && !opts.Active(at) {
			continue
		}
		s = append(s, ScheduleEntry{At: at, Scan: opts.Scan, Repeat: opts.Repeat, Type: opts.Type, Focus: opts.Focus})
	}
	return s, nil
}

// FirstMinutes returns an Active function that selects the first n minutes
// of every hour.
func FirstMinutes(n int) func(time.Duration) bool {
	return func(at time.Duration) bool {
		return at%time.Hour < time.Duration(n)*time.Minute
	}
}
