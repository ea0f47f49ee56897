package trigger

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/w1xm/lidar_scan/rotator"
	"github.com/w1xm/lidar_scan/scan"
)

func testPolicy() Policy {
	return Policy{
		Kind:      Shear,
		Threshold: 2,
		Direction: Window{Min: 90, Max: 270},
		Triggered: Template{
			Mode:       scan.RHI,
			Elevations: []float64{0, 10, 20},
		},
		Background: Template{
			Mode:       scan.PPI,
			Elevations: []float64{1},
			Azimuths:   scan.Sweep(0, 360),
			BeamWidth:  10,
		},
	}
}

func wind(speed, direction float64) WindSummary {
	return WindSummary{Levels: []Level{{Height: 100, Speed: speed, Direction: direction}}}
}

func TestEvaluate(t *testing.T) {
	for _, test := range []struct {
		name      string
		summary   WindSummary
		policy    func(*Policy)
		state     State
		direction float64
		flipped   bool
	}{
		{name: "triggered", summary: wind(5, 200), state: TriggeredDirected, direction: 200},
		{name: "below threshold", summary: wind(1, 200), state: IdleBackground, direction: 200},
		{name: "at threshold", summary: wind(2, 200), state: IdleBackground, direction: 200},
		{name: "outside window", summary: wind(10, 80), state: IdleBackground, direction: 80},
		{name: "on window edge", summary: wind(10, 90), state: IdleBackground, direction: 90},
		{
			name:    "upwind flip",
			summary: wind(10, 95),
			policy: func(p *Policy) {
				p.Upwind = &Window{Min: 90, Max: 120}
			},
			state:     IdleBackground,
			direction: 275,
			flipped:   true,
		},
		{
			name:    "upwind flip triggers",
			summary: wind(10, 95),
			policy: func(p *Policy) {
				p.Upwind = &Window{Min: 90, Max: 120}
				p.Direction = Window{Min: 260, Max: 300}
			},
			state:     TriggeredDirected,
			direction: 275,
			flipped:   true,
		},
		{
			name:    "wrapping window",
			summary: wind(10, 10),
			policy: func(p *Policy) {
				p.Direction = Window{Min: 300, Max: 60}
			},
			state:     TriggeredDirected,
			direction: 10,
		},
		{
			name:    "remote vector",
			summary: WindSummary{Vector: &Vector{Speed: 5, Direction: 560}},
			policy: func(p *Policy) {
				p.Kind = Remote
			},
			state:     TriggeredDirected,
			direction: 200,
		},
		{
			name: "strongest level",
			summary: WindSummary{Levels: []Level{
				{Height: 100, Speed: 3, Direction: 80},
				{Height: 200, Speed: 9, Direction: 180},
				{Height: 300, Speed: math.NaN(), Direction: 10},
			}},
			state:     TriggeredDirected,
			direction: 180,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			p := testPolicy()
			if test.policy != nil {
				test.policy(&p)
			}
			d, err := Evaluate(test.summary, p)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if d.State != test.state {
				t.Errorf("State = %v, want %v", d.State, test.state)
			}
			if d.Direction != test.direction {
				t.Errorf("Direction = %g, want %g", d.Direction, test.direction)
			}
			if d.Flipped != test.flipped {
				t.Errorf("Flipped = %v, want %v", d.Flipped, test.flipped)
			}
			wantMode := p.Background.Mode
			if test.state == TriggeredDirected {
				wantMode = p.Triggered.Mode
			}
			if d.Geometry.Mode != wantMode {
				t.Errorf("Geometry.Mode = %v, want %v", d.Geometry.Mode, wantMode)
			}
		})
	}
}

func TestEvaluateTriggeredGeometry(t *testing.T) {
	d, err := Evaluate(wind(5, 200), testPolicy())
	if err != nil {
		t.Fatal(err)
	}
	plan, err := scan.Build(d.Geometry)
	if err != nil {
		t.Fatal(err)
	}
	want := scan.Plan{{Azimuth: 200, Elevation: 0}, {Azimuth: 200, Elevation: 10}, {Azimuth: 200, Elevation: 20}}
	if diff := cmp.Diff(plan, want); diff != "" {
		t.Errorf("unexpected plan: got(-)/want(+):\n%s", diff)
	}
}

func TestEvaluateDataUnavailable(t *testing.T) {
	p := testPolicy()
	p.Threshold = 0
	nan := math.NaN()
	for name, s := range map[string]WindSummary{
		"empty":        {},
		"all missing":  {Levels: []Level{{Height: 100, Speed: nan, Direction: 200}, {Height: 200, Speed: 5, Direction: nan}}},
		"outside band": {Levels: []Level{{Height: 5000, Speed: 20, Direction: 200}}},
	} {
		t.Run(name, func(t *testing.T) {
			p := p
			p.Band = Band{Bottom: 50, Top: 500}
			d, err := Evaluate(s, p)
			if !errors.Is(err, ErrDataUnavailable) {
				t.Fatalf("Evaluate = %v, want ErrDataUnavailable", err)
			}
			if d.State != IdleBackground {
				t.Errorf("State = %v, want IdleBackground", d.State)
			}
			if d.Geometry.Mode != scan.PPI || len(d.Geometry.Layers) == 0 {
				t.Errorf("Geometry = %+v, want background", d.Geometry)
			}
			if !math.IsNaN(d.Magnitude) {
				t.Errorf("Magnitude = %g, want NaN", d.Magnitude)
			}
		})
	}

	p.Kind = Sonic
	d, err := Evaluate(WindSummary{Vector: &Vector{Speed: nan, Direction: 180}}, p)
	if !errors.Is(err, ErrDataUnavailable) || d.State != IdleBackground {
		t.Errorf("missing vector: %v, %v", d.State, err)
	}
}

func TestEvaluateTKE(t *testing.T) {
	p := testPolicy()
	p.Kind = TKE
	p.Threshold = 0.4
	s := WindSummary{Levels: []Level{
		{Height: 100, Direction: 180, RadialVelocity: []float64{1, -1, 1, -1}},
		{Height: 200, Direction: 10, RadialVelocity: []float64{0.1, -0.1, math.NaN()}},
		{Height: 300, Direction: 10},
	}}
	d, err := Evaluate(s, p)
	if err != nil {
		t.Fatal(err)
	}
	if d.State != TriggeredDirected || math.Abs(d.Magnitude-0.5) > 1e-12 || d.Height != 100 {
		t.Errorf("got %v magnitude %g at %g, want TRIGGERED_DIRECTED 0.5 at 100", d.State, d.Magnitude, d.Height)
	}
}

func TestTurbulence(t *testing.T) {
	for _, tc := range []struct {
		radial []float64
		want   float64
		ok     bool
	}{
		{[]float64{1, -1, 1, -1}, 0.5, true},
		{[]float64{2, 2, math.NaN()}, 0, true},
		{[]float64{math.NaN()}, math.NaN(), false},
		{nil, math.NaN(), false},
	} {
		got, ok := Turbulence(tc.radial)
		if ok != tc.ok || (ok && math.Abs(got-tc.want) > 1e-12) || (!ok && !math.IsNaN(got)) {
			t.Errorf("Turbulence(%v) = %g, %v; want %g, %v", tc.radial, got, ok, tc.want, tc.ok)
		}
	}
}

func TestBand(t *testing.T) {
	levels := []Level{
		{Height: 100, Speed: 1, Direction: 180},
		{Height: 160, Speed: 2, Direction: 180},
		{Height: 200, Speed: 30, Direction: 180},
	}
	p := testPolicy()
	p.Band = Band{Bottom: 150, Top: 150}
	d, err := Evaluate(WindSummary{Levels: levels}, p)
	if err != nil {
		t.Fatal(err)
	}
	if d.Height != 160 || d.Magnitude != 2 {
		t.Errorf("nearest level: got %g m/s at %g m, want 2 at 160", d.Magnitude, d.Height)
	}
	p.Band = Band{Bottom: 50, Top: 170}
	if d, _ = Evaluate(WindSummary{Levels: levels}, p); d.Magnitude != 2 {
		t.Errorf("band max = %g, want 2", d.Magnitude)
	}
}

func TestShear(t *testing.T) {
	s := WindSummary{Levels: []Level{
		{Height: 300, Speed: 5, Direction: 20},
		{Height: 100, Speed: 5, Direction: 350},
		{Height: 200, Speed: 5, Direction: math.NaN()},
	}}
	d, err := Evaluate(s, testPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if d.Shear != 30 {
		t.Errorf("Shear = %g, want 30", d.Shear)
	}
	if d, _ := Evaluate(wind(5, 200), testPolicy()); !math.IsNaN(d.Shear) {
		t.Errorf("single level Shear = %g, want NaN", d.Shear)
	}
}

func TestWindowContains(t *testing.T) {
	w := Window{Min: 300, Max: 60}
	for dir, want := range map[float64]bool{10: true, 350: true, 0: true, 180: false, 300: false, 60: false} {
		if got := w.Contains(dir); got != want {
			t.Errorf("%+v.Contains(%g) = %v, want %v", w, dir, got, want)
		}
	}
}

func TestPolicyValidate(t *testing.T) {
	coneSweep := Template{Mode: scan.Cone, Elevations: []float64{60}, Azimuths: scan.Sweep(0, 360)}
	for name, mod := range map[string]func(*Policy){
		"empty window":       func(p *Policy) { p.Direction = Window{10, 10} },
		"window range":       func(p *Policy) { p.Direction = Window{-10, 10} },
		"upwind range":       func(p *Policy) { p.Upwind = &Window{0, 400} },
		"negative threshold": func(p *Policy) { p.Threshold = -1 },
		"inverted band":      func(p *Policy) { p.Band = Band{Bottom: 500, Top: 100} },
		"sector width":       func(p *Policy) { p.Triggered = Template{Mode: scan.Sector, Elevations: []float64{3}, BeamWidth: 1} },
		"ppi beam width":     func(p *Policy) { p.Background.BeamWidth = 0 },
		"cone beam width":    func(p *Policy) { p.Triggered = coneSweep },
		"no elevations":      func(p *Policy) { p.Triggered.Elevations = nil },
		"bad elevation":      func(p *Policy) { p.Background.Elevations = []float64{200} },
	} {
		t.Run(name, func(t *testing.T) {
			p := testPolicy()
			mod(&p)
			_, err := Evaluate(wind(5, 200), p)
			var cerr *rotator.ConfigurationError
			if !errors.As(err, &cerr) {
				t.Errorf("Evaluate = %v, want ConfigurationError", err)
			}
		})
	}
}

func TestValidateConeOffsets(t *testing.T) {
	// Offsets replace the azimuth sweep, so no beam width is needed.
	cone := Template{Mode: scan.Cone, Elevations: []float64{60}, Azimuths: scan.Sweep(0, 360), Offsets: []float64{0, 180}}
	if err := cone.Validate("triggered"); err != nil {
		t.Errorf("Validate = %v, want nil", err)
	}
}

func TestInstantiate(t *testing.T) {
	sector := Template{Mode: scan.Sector, Elevations: []float64{3}, Width: 20, BeamWidth: 5}
	g := sector.Instantiate(5)
	if diff := cmp.Diff(g.Layers, []scan.Layer{{Elevation: 3, Azimuths: scan.Sweep(355, 15)}}); diff != "" {
		t.Errorf("sector layers: got(-)/want(+):\n%s", diff)
	}

	cone := Template{Mode: scan.Cone, Elevations: []float64{60}, Offsets: []float64{0, 90, 180, 270}}
	g = cone.Instantiate(100)
	if diff := cmp.Diff(g.Layers, []scan.Layer{{Elevation: 60, Azimuths: scan.Azimuths(100, 190, 280, 10)}}); diff != "" {
		t.Errorf("cone layers: got(-)/want(+):\n%s", diff)
	}

	g = Template{Mode: scan.VerticalPointing}.Instantiate(123)
	if diff := cmp.Diff(g.Layers, []scan.Layer{{Elevation: 90, Azimuths: scan.Azimuths(0)}}); diff != "" {
		t.Errorf("vertical layers: got(-)/want(+):\n%s", diff)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{Shear, TKE, Sonic, Remote} {
		if got, err := ParseKind(k.String()); err != nil || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k, got, err)
		}
	}
	if _, err := ParseKind("lightning"); err == nil {
		t.Error("ParseKind(lightning) succeeded")
	}
}
