package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/w1xm/lidar_scan/halo"
	"github.com/w1xm/lidar_scan/rotator"
	"github.com/w1xm/lidar_scan/scan"
	"github.com/w1xm/lidar_scan/trigger"
)

const example = `
mode: dynamic
paths:
  dir: /C:/Lidar/System/Scan parameters
  signal: /C:/Lidar/trigger.txt
motion:
  azimuth_speed: 2
  wait: 500ms
policy:
  kind: shear
  threshold: 8.5
  direction: {min: 315, max: 45}
  upwind: {min: 135, max: 225}
  band: {bottom: 100, top: 400}
  triggered:
    mode: sector
    elevations: [2, 4]
    width: 60
    beam_width: 2
  background:
    mode: ppi
    elevations: [1]
    sweep: {start: 0, end: 360}
    beam_width: 5
interval: 5m
skip_unchanged: true
wind:
  file: /data/wind.json
fetch:
  remote_dir: /C:/Lidar/Data/Proc
  pattern: "*.hpl"
  local_dir: /data/raw
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(example))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	motion := halo.DefaultMotion()
	motion.AzimuthSpeed = 2
	motion.Wait = 500 * time.Millisecond
	want := &File{
		Device:     rotator.Halo(),
		Mode:       halo.Dynamic,
		Motion:     motion,
		PlanPath:   "/C:/Lidar/System/Scan parameters/" + DefaultPlanFile,
		SignalPath: "/C:/Lidar/trigger.txt",
		Policy: trigger.Policy{
			Kind:      trigger.Shear,
			Threshold: 8.5,
			Direction: trigger.Window{Min: 315, Max: 45},
			Upwind:    &trigger.Window{Min: 135, Max: 225},
			Band:      trigger.Band{Bottom: 100, Top: 400},
			Triggered: trigger.Template{
				Mode:       scan.Sector,
				Elevations: []float64{2, 4},
				Azimuths:   scan.Azimuths(),
				Width:      60,
				BeamWidth:  2,
			},
			Background: trigger.Template{
				Mode:       scan.PPI,
				Elevations: []float64{1},
				Azimuths:   scan.Sweep(0, 360),
				BeamWidth:  5,
			},
		},
		Interval:      5 * time.Minute,
		SkipUnchanged: true,
		Wind:          Wind{File: "/data/wind.json", MaxAge: 10 * time.Minute},
		Fetch:         Fetch{RemoteDir: "/C:/Lidar/Data/Proc", Pattern: "*.hpl", LocalDir: "/data/raw", Window: 5 * time.Minute},
	}
	if diff := cmp.Diff(f, want); diff != "" {
		t.Errorf("Parse() got(-)/want(+):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	base := `
wind: {file: /data/wind.json}
policy:
  threshold: 5
  direction: {min: 0, max: 90}
  triggered: {mode: rhi, elevations: [0]}
  background: {mode: vertical_pointing}
`
	if _, err := Parse([]byte(base)); err != nil {
		t.Fatalf("Parse(base): %v", err)
	}
	for _, tc := range []struct {
		name, doc string
	}{
		{"mode", "mode: turbo\n" + base},
		{"kind", base + "  kind: sodar\n"},
		{"window", "policy:\n  direction: {min: 10, max: 10}\n  triggered: {mode: rhi, elevations: [0]}\n  background: {mode: vertical_pointing}\n"},
		{"sweep mode", "policy:\n  direction: {min: 0, max: 90}\n  triggered: {mode: spiral, elevations: [0]}\n  background: {mode: vertical_pointing}\n"},
		{"missing template", "policy:\n  direction: {min: 0, max: 90}\n  triggered: {mode: rhi, elevations: [0]}\n"},
		{"elevation", "policy:\n  direction: {min: 0, max: 90}\n  triggered: {mode: rhi, elevations: [200]}\n  background: {mode: vertical_pointing}\n"},
		{"wait", "motion: {wait: soon}\n" + base},
		{"negative speed", "motion: {azimuth_speed: -1}\n" + base},
		{"interval", "interval: -1m\n" + base},
		{"counts", "device: {azimuth_counts: -5}\n" + base},
		{"fetch dir", "fetch: {remote_dir: /data}\n" + base},
		{"fetch pattern", "fetch: {remote_dir: /data, local_dir: /tmp, pattern: \"[\"}\n" + base},
		{"shear without wind file", "policy:\n  direction: {min: 0, max: 90}\n  triggered: {mode: rhi, elevations: [0]}\n  background: {mode: vertical_pointing}\n"},
		{"tke without wind file", "wind: {mqtt_topic: lidar/wind}\npolicy:\n  kind: tke\n  direction: {min: 0, max: 90}\n  triggered: {mode: rhi, elevations: [0]}\n  background: {mode: vertical_pointing}\n"},
		{"cone sweep without beam width", "wind: {file: /data/wind.json}\npolicy:\n  direction: {min: 0, max: 90}\n  triggered: {mode: cone, elevations: [60], sweep: {start: 0, end: 360}}\n  background: {mode: vertical_pointing}\n"},
		{"ppi sweep without beam width", "wind: {file: /data/wind.json}\npolicy:\n  direction: {min: 0, max: 90}\n  triggered: {mode: rhi, elevations: [0]}\n  background: {mode: ppi, elevations: [1], sweep: {start: 0, end: 360}}\n"},
		{"list and sweep", "policy:\n  direction: {min: 0, max: 90}\n  triggered: {mode: ppi, elevations: [0], azimuths: [1], sweep: {start: 0, end: 10}, beam_width: 1}\n  background: {mode: vertical_pointing}\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			var cerr *rotator.ConfigurationError
			if !errors.As(err, &cerr) {
				t.Errorf("Parse() error = %v, want ConfigurationError", err)
			}
		})
	}
}

func TestParseBadYAML(t *testing.T) {
	if _, err := Parse([]byte("policy: [")); err == nil {
		t.Error("Parse() succeeded on malformed YAML")
	}
}

func TestLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "scan.yaml")
	if err := os.WriteFile(p, []byte(example), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Policy.Triggered.Mode != scan.Sector {
		t.Errorf("triggered mode = %v, want %v", f.Policy.Triggered.Mode, scan.Sector)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) error = %v, want ErrNotExist", err)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("LIDAR_ADDR", "10.0.0.5:22")
	t.Setenv("LIDAR_TIMEOUT", "5s")
	t.Setenv("LIDAR_MAX_TRIES", "many")
	e := LoadEnv()
	if e.LidarAddr != "10.0.0.5:22" {
		t.Errorf("LidarAddr = %q", e.LidarAddr)
	}
	if e.LidarTimeout != 5*time.Second {
		t.Errorf("LidarTimeout = %v, want 5s", e.LidarTimeout)
	}
	if e.LidarMaxTries != 5 {
		t.Errorf("LidarMaxTries = %d, want default 5", e.LidarMaxTries)
	}
	if e.LidarUser != "lidar" {
		t.Errorf("LidarUser = %q, want default", e.LidarUser)
	}
}
