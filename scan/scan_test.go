package scan

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/w1xm/lidar_scan/rotator"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func rays(pairs ...float64) Plan {
	var p Plan
	for i := 0; i+1 < len(pairs); i += 2 {
		p = append(p, rotator.Ray{Azimuth: pairs[i], Elevation: pairs[i+1]})
	}
	return p
}

func TestBuild(t *testing.T) {
	for _, test := range []struct {
		name string
		g    Geometry
		want Plan
	}{
		{
			name: "boustrophedon",
			g: Geometry{
				Mode:   PPI,
				Layers: Layers([]float64{10, 20}, Azimuths(0, 90, 180)),
			},
			want: rays(0, 10, 90, 10, 180, 10, 180, 20, 90, 20, 0, 20),
		},
		{
			name: "wrap",
			g: Geometry{
				Mode:      Sector,
				Layers:    []Layer{{Elevation: 3, Azimuths: Sweep(350, 10)}},
				BeamWidth: 5,
			},
			want: rays(355, 3, 0, 3, 5, 3, 10, 3),
		},
		{
			name: "wrap reversed",
			g: Geometry{
				Mode:      Sector,
				Layers:    Layers([]float64{3, 6}, Sweep(350, 10)),
				BeamWidth: 5,
			},
			want: rays(355, 3, 0, 3, 5, 3, 10, 3, 10, 6, 5, 6, 0, 6, 355, 6),
		},
		{
			name: "single point",
			g: Geometry{
				Mode:      Stare,
				Layers:    []Layer{{Elevation: 45, Azimuths: Sweep(120, 122)}},
				BeamWidth: 5,
			},
			want: rays(120, 45),
		},
		{
			name: "empty layer",
			g: Geometry{
				Mode: PPI,
				Layers: []Layer{
					{Elevation: 1, Azimuths: Azimuths(10, 20)},
					{Elevation: 2},
					{Elevation: 3, Azimuths: Azimuths(10, 20)},
				},
			},
			want: rays(10, 1, 20, 1, 10, 3, 20, 3),
		},
		{
			name: "discrete normalized",
			g: Geometry{
				Mode:   Cone,
				Layers: []Layer{{Elevation: 60, Azimuths: Azimuths(-90, 360, 450)}},
			},
			want: rays(270, 60, 0, 60, 90, 60),
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, err := Build(test.g)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if diff := cmp.Diff(got, test.want, approx); diff != "" {
				t.Errorf("unexpected plan: got(-)/want(+):\n%s", diff)
			}
		})
	}
}

func TestBuildDoesNotMutateGeometry(t *testing.T) {
	az := []float64{1, 2, 3}
	g := Geometry{Layers: Layers([]float64{0, 1}, Azimuths(az...))}
	if _, err := Build(g); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(az, []float64{1, 2, 3}); diff != "" {
		t.Errorf("azimuths modified: got(-)/want(+):\n%s", diff)
	}
}

func TestBuildFullCircle(t *testing.T) {
	g := Geometry{Layers: []Layer{{Elevation: 2, Azimuths: Sweep(0, 360)}}, BeamWidth: 1}
	plan, err := Build(g)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan) != 360 {
		t.Fatalf("got %d rays, want 360", len(plan))
	}
	seen := map[float64]bool{}
	for _, r := range plan {
		if seen[r.Azimuth] {
			t.Errorf("azimuth %g visited twice", r.Azimuth)
		}
		seen[r.Azimuth] = true
	}
}

func TestBuildErrors(t *testing.T) {
	for _, g := range []Geometry{
		{Layers: []Layer{{Elevation: 5, Azimuths: Sweep(0, 10)}}},
		{Layers: []Layer{{Elevation: -5, Azimuths: Azimuths(0)}}},
		{Layers: []Layer{{Elevation: 190, Azimuths: Azimuths(0)}}},
	} {
		_, err := Build(g)
		var cerr *rotator.ConfigurationError
		if !errors.As(err, &cerr) {
			t.Errorf("Build(%+v) = %v, want ConfigurationError", g, err)
		}
	}
}

func TestPair(t *testing.T) {
	got, err := Pair([]float64{0, 1, 2}, []float64{4, 4, 4})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got, rays(0, 4, 1, 4, 2, 4)); diff != "" {
		t.Errorf("unexpected plan: got(-)/want(+):\n%s", diff)
	}

	_, err = Pair([]float64{0, 1}, []float64{4})
	var cerr *rotator.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Errorf("Pair with mismatched lengths = %v, want ConfigurationError", err)
	}
}

func TestRHIGeometry(t *testing.T) {
	g, err := RHIGeometry(200, 0, 30, 10)
	if err != nil {
		t.Fatal(err)
	}
	plan, err := Build(g)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(plan, rays(200, 0, 200, 10, 200, 20, 200, 30), approx); diff != "" {
		t.Errorf("unexpected plan: got(-)/want(+):\n%s", diff)
	}
}

func TestParseSweepMode(t *testing.T) {
	for _, m := range []SweepMode{PPI, RHI, VerticalPointing, Sector, Cone, Stare} {
		got, err := ParseSweepMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseSweepMode(%q) = %v, %v", m.String(), got, err)
		}
	}
	if got, err := ParseSweepMode("PPI"); err != nil || got != PPI {
		t.Errorf("ParseSweepMode(PPI) = %v, %v", got, err)
	}
	if _, err := ParseSweepMode("spiral"); err == nil {
		t.Error("ParseSweepMode(spiral) succeeded")
	}
	var m SweepMode
	if err := m.UnmarshalText([]byte("sector")); err != nil || m != Sector {
		t.Errorf("UnmarshalText(sector) = %v, %v", m, err)
	}
}

func TestClassify(t *testing.T) {
	for _, test := range []struct {
		name string
		rays Plan
		want SweepMode
	}{
		{"rhi", rays(200, 0, 200, 10, 200, 20, 200, 30), RHI},
		{"vertical", rays(0, 90, 0, 90, 0, 90), VerticalPointing},
		{"ppi", rays(0, 5, 10, 5, 20, 5, 30, 5, 40, 5), PPI},
		{"ppi across north", rays(340, 5, 350, 5, 0, 5, 10, 5), PPI},
	} {
		t.Run(test.name, func(t *testing.T) {
			if got := Classify(test.rays); got != test.want {
				t.Errorf("Classify = %v, want %v", got, test.want)
			}
		})
	}
}

func TestFixedAngles(t *testing.T) {
	rhi := rays(200, 0, 200, 10, 200, 20)
	if diff := cmp.Diff(FixedAngles(rhi, RHI), []float64{200}); diff != "" {
		t.Errorf("rhi fixed angles: got(-)/want(+):\n%s", diff)
	}
	ppi := rays(0, 5, 90, 5, 90, 10, 0, 10)
	if diff := cmp.Diff(FixedAngles(ppi, PPI), []float64{5, 10}); diff != "" {
		t.Errorf("ppi fixed angles: got(-)/want(+):\n%s", diff)
	}
}

func TestSweepBounds(t *testing.T) {
	for _, tc := range []struct {
		name string
		rays []rotator.Ray
		want []int
	}{
		{"two layers", rays(0, 5, 90, 5, 180, 5, 180, 10, 90, 10, 0, 10), []int{2, 5}},
		{"single layer", rays(0, 5, 90, 5, 180, 5), []int{2}},
		{"one ray", rays(0, 5), []int{0}},
		{"slew", rays(0, 5, 90, 5, 180, 5, 180, 7, 180, 10, 90, 10, 0, 10), []int{2, 6}},
		{"empty", nil, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(SweepBounds(tc.rays), tc.want); diff != "" {
				t.Errorf("sweep bounds: got(-)/want(+):\n%s", diff)
			}
		})
	}
}
