// Package cycle runs decision cycles: wind summary in, scan file out.
package cycle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/w1xm/lidar_scan/deliver"
	"github.com/w1xm/lidar_scan/halo"
	"github.com/w1xm/lidar_scan/rotator"
	"github.com/w1xm/lidar_scan/scan"
	"github.com/w1xm/lidar_scan/telemetry"
	"github.com/w1xm/lidar_scan/trigger"
)

// WindSource supplies the wind summary for one cycle.
type WindSource interface {
	Summary(ctx context.Context) (trigger.WindSummary, error)
}

type SourceFunc func(ctx context.Context) (trigger.WindSummary, error)

func (f SourceFunc) Summary(ctx context.Context) (trigger.WindSummary, error) {
	return f(ctx)
}

// Delivery is the part of deliver.Adapter a Runner uses.
type Delivery interface {
	DeliverStatic(ctx context.Context, c halo.Command, planPath string) error
	DeliverDynamic(ctx context.Context, c halo.Command, planPath, signalPath string) error
}

type Status int

const (
	// Delivered means the new scan is on the lidar.
	Delivered Status = iota
	// Unchanged means the scan matched the last delivered one and was not
	// sent again.
	Unchanged
	// FailedSafe means delivery failed and the lidar keeps its last plan.
	FailedSafe
	// Failed means the cycle could not produce a scan; nothing was sent.
	Failed
)

func (s Status) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case Unchanged:
		return "unchanged"
	case FailedSafe:
		return "failed_safe"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome describes one cycle.
type Outcome struct {
	Time          time.Time
	Status        Status
	State         string
	DataAvailable bool
	Magnitude     float64 `json:"-"`
	Direction     float64 `json:"-"`
	Mode          string
	Rays          int
	Error         string `json:",omitempty"`
}

type plainOutcome Outcome

// MarshalJSON omits Magnitude and Direction when they are NaN.
func (o Outcome) MarshalJSON() ([]byte, error) {
	v := struct {
		plainOutcome
		Magnitude *float64 `json:",omitempty"`
		Direction *float64 `json:",omitempty"`
	}{plainOutcome: plainOutcome(o)}
	if !math.IsNaN(o.Magnitude) {
		v.Magnitude = &o.Magnitude
	}
	if !math.IsNaN(o.Direction) {
		v.Direction = &o.Direction
	}
	return json.Marshal(v)
}

// Paths are the remote scan and signal file locations.
type Paths struct {
	Plan   string
	Signal string
}

// Metrics receives cycle statistics; telemetry.Metrics implements it.
type Metrics interface {
	ObserveCycle(status, state string)
	ObserveDelivery(d time.Duration)
}

type StatusCallback func(Outcome)

// Retriever is the part of deliver.Adapter that fetches raw files.
type Retriever interface {
	Retrieve(ctx context.Context, dir, pattern string, from, to time.Time) ([]deliver.File, error)
}

// Fetch copies the lidar's raw files from the last Window into LocalDir,
// where the wind retrieval picks them up.
type Fetch struct {
	Retriever Retriever
	RemoteDir string
	// Pattern filters base names, in path.Match syntax.
	Pattern  string
	LocalDir string
	Window   time.Duration
}

func (f *Fetch) run(ctx context.Context, now time.Time) (int, error) {
	files, err := f.Retriever.Retrieve(ctx, f.RemoteDir, f.Pattern, now.Add(-f.Window), now)
	if err != nil {
		return 0, err
	}
	for _, file := range files {
		p := filepath.Join(f.LocalDir, path.Base(file.Path))
		if err := os.WriteFile(p, file.Content, 0o644); err != nil {
			return 0, fmt.Errorf("writing %q: %w", p, err)
		}
	}
	return len(files), nil
}

// Runner holds the configuration of one lidar. A Runner must not run
// cycles concurrently.
type Runner struct {
	Device   rotator.Device
	Policy   trigger.Policy
	Motion   halo.MotionParams
	Mode     halo.Mode
	Paths    Paths
	Source   WindSource
	Delivery Delivery
	// Fetch is optional. A failed fetch counts as missing wind data.
	Fetch *Fetch
	// Publisher and Metrics are optional.
	Publisher telemetry.Publisher
	Metrics   Metrics
	// SkipUnchanged suppresses delivery of a file identical to the last
	// one this Runner delivered.
	SkipUnchanged  bool
	StatusCallback StatusCallback
	Now            func() time.Time

	last []byte
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run executes one decision cycle. Missing wind data falls back to the
// background scan. Configuration errors abort the cycle before anything is
// sent; delivery errors are returned with a FailedSafe outcome.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	o, err := r.run(ctx)
	if err != nil {
		o.Error = err.Error()
		log.Printf("cycle %s: %v", o.Status, err)
	} else {
		log.Printf("cycle %s: %s %s, %d rays", o.Status, o.State, o.Mode, o.Rays)
	}
	if r.Metrics != nil {
		r.Metrics.ObserveCycle(o.Status.String(), o.State)
	}
	if r.StatusCallback != nil {
		r.StatusCallback(o)
	}
	return o, err
}

func (r *Runner) run(ctx context.Context) (Outcome, error) {
	o := Outcome{Time: r.now(), Status: Failed, Magnitude: math.NaN(), Direction: math.NaN()}

	summary, err := r.summary(ctx, o.Time)
	if err != nil {
		log.Printf("reading wind summary: %v", err)
		summary = trigger.WindSummary{}
	}
	d, err := trigger.Evaluate(summary, r.Policy)
	switch {
	case errors.Is(err, trigger.ErrDataUnavailable):
		log.Printf("no usable wind data; running background scan")
	case err != nil:
		return o, fmt.Errorf("evaluating policy: %w", err)
	default:
		o.DataAvailable = true
	}
	o.State, o.Magnitude, o.Direction = d.State.String(), d.Magnitude, d.Direction
	o.Mode = d.Geometry.Mode.String()
	r.publish(o.Time, d)

	plan, err := scan.Build(d.Geometry)
	if err != nil {
		return o, fmt.Errorf("building %s scan: %w", d.Geometry.Mode, err)
	}
	c, err := halo.Encode(r.Device, plan, r.Motion, r.Mode)
	if err != nil {
		return o, fmt.Errorf("encoding scan: %w", err)
	}
	o.Rays = c.Rays

	content := c.Bytes()
	if r.SkipUnchanged && r.last != nil && bytes.Equal(content, r.last) {
		o.Status = Unchanged
		return o, nil
	}
	start := time.Now()
	if r.Mode == halo.Dynamic {
		err = r.Delivery.DeliverDynamic(ctx, c, r.Paths.Plan, r.Paths.Signal)
	} else {
		err = r.Delivery.DeliverStatic(ctx, c, r.Paths.Plan)
	}
	if r.Metrics != nil {
		r.Metrics.ObserveDelivery(time.Since(start))
	}
	if err != nil {
		o.Status = FailedSafe
		var derr *deliver.DeliveryError
		if errors.As(err, &derr) && derr.Stage != deliver.StagePlan {
			// The plan landed but was never armed; it must be resent.
			r.last = nil
		}
		return o, err
	}
	r.last = content
	o.Status = Delivered
	return o, nil
}

func (r *Runner) summary(ctx context.Context, now time.Time) (trigger.WindSummary, error) {
	if r.Fetch != nil {
		n, err := r.Fetch.run(ctx, now)
		if err != nil {
			return trigger.WindSummary{}, fmt.Errorf("fetching raw files: %w", err)
		}
		log.Printf("fetched %d raw files", n)
	}
	return r.Source.Summary(ctx)
}

func (r *Runner) publish(ts time.Time, d trigger.Decision) {
	if r.Publisher == nil {
		return
	}
	triggered := 0.
	if d.State == trigger.TriggeredDirected {
		triggered = 1
	}
	r.Publisher.Publish("scan.triggered", triggered, ts)
	for _, m := range []struct {
		key string
		v   float64
	}{
		{"scan.magnitude", d.Magnitude},
		{"scan.direction", d.Direction},
		{"scan.shear", d.Shear},
	} {
		if !math.IsNaN(m.v) {
			r.Publisher.Publish(m.key, m.v, ts)
		}
	}
}

// Loop runs a cycle immediately and then every interval until ctx ends.
// Cycle errors are logged and do not stop the loop.
func (r *Runner) Loop(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.Run(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
