// Command make_dss writes a Daily Scan Schedule that runs one scan at a
// fixed cadence during the first minutes of every hour.
package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/w1xm/lidar_scan/halo"
)

var (
	scanName = flag.String("scan", "profile", "scan to run at each entry")
	repeat   = flag.Int("repeat", 1, "repeat count for each entry")
	scanType = flag.String("type", "S", "S for stepped scans, C for CSM scans")
	focus    = flag.Int("focus", 0, "telescope focus; 0 is infinity")
	every    = flag.Duration("every", 5*time.Second, "time between entries")
	minutes  = flag.Int("minutes", 10, "active minutes at the start of every hour; 60 for all day")
	out      = flag.String("out", "scan.dss", "output file")
)

func main() {
	flag.Parse()
	if len(*scanType) != 1 {
		log.Fatalf("-type must be a single letter, got %q", *scanType)
	}
	opts := halo.ScheduleOptions{
		Scan:   *scanName,
		Repeat: *repeat,
		Type:   (*scanType)[0],
		Focus:  *focus,
		Every:  *every,
	}
	if *minutes < 60 {
		opts.Active = halo.FirstMinutes(*minutes)
	}
	s, err := halo.DailySchedule(opts)
	if err != nil {
		log.Fatal(err)
	}
	if err := os.WriteFile(*out, s.Bytes(), 0o644); err != nil {
		log.Fatalf("writing %q: %v", *out, err)
	}
	log.Printf("wrote %d entries to %q", len(s), *out)
}
