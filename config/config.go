// Package config loads scan controller settings: a YAML file describing
// the trigger policy and scan files, and connection settings from the
// environment.
package config

import (
	"fmt"
	"os"
	"path"
	"time"

	"github.com/w1xm/lidar_scan/deliver"
	"github.com/w1xm/lidar_scan/halo"
	"github.com/w1xm/lidar_scan/rotator"
	"github.com/w1xm/lidar_scan/scan"
	"github.com/w1xm/lidar_scan/trigger"
	"gopkg.in/yaml.v3"
)

// Default remote file names inside the scan parameters directory.
const (
	DefaultPlanFile   = "user_defined_scan.txt"
	DefaultSignalFile = "trigger_scan.txt"
)

// File is the decoded controller configuration.
type File struct {
	Device   rotator.Device
	Mode     halo.Mode
	Motion   halo.MotionParams
	Policy   trigger.Policy
	PlanPath string
	// SignalPath is only used by dynamic mode.
	SignalPath    string
	Interval      time.Duration
	SkipUnchanged bool
	Wind          Wind
	Fetch         Fetch
}

// Fetch describes the raw files to copy from the lidar each cycle. An
// empty RemoteDir disables fetching.
type Fetch struct {
	RemoteDir string
	Pattern   string
	LocalDir  string
	Window    time.Duration
}

// Wind selects where wind summaries come from. Empty fields disable the
// corresponding source.
type Wind struct {
	File      string
	MaxAge    time.Duration
	MQTTTopic string
}

type window struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type sweep struct {
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
}

type template struct {
	Mode       string    `yaml:"mode"`
	Elevations []float64 `yaml:"elevations"`
	Azimuths   []float64 `yaml:"azimuths"`
	Sweep      *sweep    `yaml:"sweep"`
	Width      float64   `yaml:"width"`
	Offsets    []float64 `yaml:"offsets"`
	BeamWidth  float64   `yaml:"beam_width"`
}

type document struct {
	Device struct {
		AzimuthCounts   int `yaml:"azimuth_counts"`
		ElevationCounts int `yaml:"elevation_counts"`
	} `yaml:"device"`
	Mode  string `yaml:"mode"`
	Paths struct {
		Dir    string `yaml:"dir"`
		Plan   string `yaml:"plan"`
		Signal string `yaml:"signal"`
	} `yaml:"paths"`
	Motion struct {
		AzimuthSpeed   *float64 `yaml:"azimuth_speed"`
		ElevationSpeed *float64 `yaml:"elevation_speed"`
		Acceleration   *int     `yaml:"acceleration"`
		Wait           string   `yaml:"wait"`
		Repeat         *int     `yaml:"repeat"`
		RaysPerPoint   *int     `yaml:"rays_per_point"`
	} `yaml:"motion"`
	Policy struct {
		Kind      string  `yaml:"kind"`
		Threshold float64 `yaml:"threshold"`
		Direction window  `yaml:"direction"`
		Upwind    *window `yaml:"upwind"`
		Band      struct {
			Bottom float64 `yaml:"bottom"`
			Top    float64 `yaml:"top"`
		} `yaml:"band"`
		Triggered  template `yaml:"triggered"`
		Background template `yaml:"background"`
	} `yaml:"policy"`
	Interval      string `yaml:"interval"`
	SkipUnchanged bool   `yaml:"skip_unchanged"`
	Wind          struct {
		File      string `yaml:"file"`
		MaxAge    string `yaml:"max_age"`
		MQTTTopic string `yaml:"mqtt_topic"`
	} `yaml:"wind"`
	Fetch struct {
		RemoteDir string `yaml:"remote_dir"`
		Pattern   string `yaml:"pattern"`
		LocalDir  string `yaml:"local_dir"`
		Window    string `yaml:"window"`
	} `yaml:"fetch"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a YAML configuration. Unset motion parameters take the
// scanner defaults. Invalid values are reported as
// *rotator.ConfigurationError.
func Parse(data []byte) (*File, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	return doc.convert()
}

func (doc *document) convert() (*File, error) {
	f := &File{
		Device:        rotator.Halo(),
		Mode:          halo.Dynamic,
		Motion:        halo.DefaultMotion(),
		Interval:      10 * time.Minute,
		SkipUnchanged: doc.SkipUnchanged,
	}
	if doc.Device.AzimuthCounts != 0 {
		f.Device.Azimuth.CountsPerRevolution = doc.Device.AzimuthCounts
	}
	if doc.Device.ElevationCounts != 0 {
		f.Device.Elevation.CountsPerRevolution = doc.Device.ElevationCounts
	}
	if err := f.Device.Validate(); err != nil {
		return nil, err
	}

	var err error
	if doc.Mode != "" {
		if f.Mode, err = halo.ParseMode(doc.Mode); err != nil {
			return nil, err
		}
	}

	dir := doc.Paths.Dir
	if dir == "" {
		dir = deliver.ScanParametersDir
	}
	f.PlanPath = remotePath(dir, doc.Paths.Plan, DefaultPlanFile)
	f.SignalPath = remotePath(dir, doc.Paths.Signal, DefaultSignalFile)

	m := doc.Motion
	if m.AzimuthSpeed != nil {
		f.Motion.AzimuthSpeed = *m.AzimuthSpeed
	}
	if m.ElevationSpeed != nil {
		f.Motion.ElevationSpeed = *m.ElevationSpeed
	}
	if m.Acceleration != nil {
		f.Motion.Acceleration = *m.Acceleration
	}
	if m.Repeat != nil {
		f.Motion.Repeat = *m.Repeat
	}
	if m.RaysPerPoint != nil {
		f.Motion.RaysPerPoint = *m.RaysPerPoint
	}
	if f.Motion.Wait, err = duration("motion wait", m.Wait, 0); err != nil {
		return nil, err
	}
	if err := f.Motion.Validate(f.Mode); err != nil {
		return nil, err
	}

	if f.Policy, err = doc.policy(); err != nil {
		return nil, err
	}
	if err := f.Policy.Validate(); err != nil {
		return nil, err
	}

	if f.Interval, err = duration("interval", doc.Interval, f.Interval); err != nil {
		return nil, err
	}
	if f.Interval <= 0 {
		return nil, &rotator.ConfigurationError{Field: "interval", Reason: fmt.Sprintf("must be positive, got %v", f.Interval)}
	}

	f.Wind.File = doc.Wind.File
	f.Wind.MQTTTopic = doc.Wind.MQTTTopic
	if f.Wind.MaxAge, err = duration("wind max_age", doc.Wind.MaxAge, 2*f.Interval); err != nil {
		return nil, err
	}
	// Only wind files carry a vertical profile; the buffered sources
	// deliver a single vector.
	if k := f.Policy.Kind; (k == trigger.Shear || k == trigger.TKE) && f.Wind.File == "" {
		return nil, &rotator.ConfigurationError{Field: "wind file", Reason: fmt.Sprintf("%v policies need a wind profile file", k)}
	}

	f.Fetch = Fetch{
		RemoteDir: doc.Fetch.RemoteDir,
		Pattern:   doc.Fetch.Pattern,
		LocalDir:  doc.Fetch.LocalDir,
	}
	if f.Fetch.Window, err = duration("fetch window", doc.Fetch.Window, f.Interval); err != nil {
		return nil, err
	}
	if f.Fetch.RemoteDir != "" && f.Fetch.LocalDir == "" {
		return nil, &rotator.ConfigurationError{Field: "fetch local_dir", Reason: "required with remote_dir"}
	}
	if _, err := path.Match(f.Fetch.Pattern, ""); err != nil {
		return nil, &rotator.ConfigurationError{Field: "fetch pattern", Reason: err.Error()}
	}
	return f, nil
}

func (doc *document) policy() (trigger.Policy, error) {
	p := doc.Policy
	var out trigger.Policy
	var err error
	if p.Kind != "" {
		if out.Kind, err = trigger.ParseKind(p.Kind); err != nil {
			return out, err
		}
	}
	out.Threshold = p.Threshold
	out.Direction = trigger.Window{Min: p.Direction.Min, Max: p.Direction.Max}
	if p.Upwind != nil {
		out.Upwind = &trigger.Window{Min: p.Upwind.Min, Max: p.Upwind.Max}
	}
	out.Band = trigger.Band{Bottom: p.Band.Bottom, Top: p.Band.Top}
	if out.Triggered, err = p.Triggered.convert("triggered"); err != nil {
		return out, err
	}
	if out.Background, err = p.Background.convert("background"); err != nil {
		return out, err
	}
	return out, nil
}

func (t template) convert(field string) (trigger.Template, error) {
	if t.Mode == "" {
		return trigger.Template{}, &rotator.ConfigurationError{Field: field + " mode", Reason: "missing"}
	}
	mode, err := scan.ParseSweepMode(t.Mode)
	if err != nil {
		return trigger.Template{}, err
	}
	out := trigger.Template{
		Mode:       mode,
		Elevations: t.Elevations,
		Azimuths:   scan.Azimuths(t.Azimuths...),
		Width:      t.Width,
		Offsets:    t.Offsets,
		BeamWidth:  t.BeamWidth,
	}
	if t.Sweep != nil {
		if len(t.Azimuths) > 0 {
			return trigger.Template{}, &rotator.ConfigurationError{Field: field + " azimuths", Reason: "both a list and a sweep given"}
		}
		out.Azimuths = scan.Sweep(t.Sweep.Start, t.Sweep.End)
	}
	return out, nil
}

func remotePath(dir, name, def string) string {
	if name == "" {
		name = def
	}
	if path.IsAbs(name) {
		return name
	}
	return path.Join(dir, name)
}

func duration(field, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &rotator.ConfigurationError{Field: field, Reason: err.Error()}
	}
	if d < 0 {
		return 0, &rotator.ConfigurationError{Field: field, Reason: fmt.Sprintf("negative: %v", d)}
	}
	return d, nil
}
