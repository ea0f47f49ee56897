package windfeed

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/w1xm/lidar_scan/trigger"
)

func TestDecode(t *testing.T) {
	s, err := Decode([]byte(`{
		"time": "2024-03-14T12:00:00Z",
		"levels": [
			{"height": 100, "speed": 5.5, "direction": 200},
			{"height": 150, "speed": null, "direction": 210, "radial_velocity": [1, null, -1]}
		],
		"vector": {"speed": 3, "direction": 90}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	nan := math.NaN()
	want := trigger.WindSummary{
		Time: time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC),
		Levels: []trigger.Level{
			{Height: 100, Speed: 5.5, Direction: 200},
			{Height: 150, Speed: nan, Direction: 210, RadialVelocity: []float64{1, nan, -1}},
		},
		Vector: &trigger.Vector{Speed: 3, Direction: 90},
	}
	if diff := cmp.Diff(s, want, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("unexpected summary: got(-)/want(+):\n%s", diff)
	}
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wind.json")
	if err := os.WriteFile(path, []byte(`{"time": "2024-03-14T12:00:00Z", "levels": []}`), 0644); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 3, 14, 12, 5, 0, 0, time.UTC)
	f := &File{Path: path, MaxAge: 10 * time.Minute, Now: func() time.Time { return now }}
	if _, err := f.Summary(context.Background()); err != nil {
		t.Errorf("fresh summary: %v", err)
	}
	now = now.Add(time.Hour)
	if _, err := f.Summary(context.Background()); !errors.Is(err, trigger.ErrDataUnavailable) {
		t.Errorf("stale summary = %v, want ErrDataUnavailable", err)
	}
}

func TestBuffer(t *testing.T) {
	now := time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)
	b := NewBuffer(time.Minute)
	b.Now = func() time.Time { return now }

	s, err := b.Summary(context.Background())
	if err != nil || s.Vector != nil {
		t.Fatalf("empty buffer summary = %+v, %v", s, err)
	}

	b.Add(Sample{Speed: 2, Direction: 350, Timestamp: now.Add(-2 * time.Minute)})
	b.Add(Sample{Speed: 4, Direction: 350, Timestamp: now.Add(-10 * time.Second)})
	b.Add(Sample{Speed: 6, Direction: 10})
	s, err = b.Summary(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.Vector == nil {
		t.Fatal("no vector")
	}
	if math.Abs(s.Vector.Speed-5) > 1e-9 {
		t.Errorf("speed = %g, want 5", s.Vector.Speed)
	}
	if d := s.Vector.Direction; d > 1e-9 && d < 360-1e-9 {
		t.Errorf("direction = %g, want 0", d)
	}
}

func TestHandleMessage(t *testing.T) {
	b := NewBuffer(time.Hour)
	if err := handleMessage(b, []byte(`{"speed": 7, "direction": 45}`)); err != nil {
		t.Fatal(err)
	}
	if err := handleMessage(b, []byte(`not json`)); err == nil {
		t.Error("bad payload accepted")
	}
	last, ok := b.Last()
	if !ok || last.Speed != 7 || last.Direction != 45 {
		t.Errorf("Last = %+v, %v", last, ok)
	}
}

type conn struct {
	*strings.Reader
	out bytes.Buffer
}

func (c *conn) Write(p []byte) (int, error) {
	return c.out.Write(p)
}

func TestListenerProtocol(t *testing.T) {
	l := &Listener{Buffer: NewBuffer(time.Hour)}
	c := &conn{Reader: strings.NewReader("p\nW 5 200\nW five 200\nW 1\np\nX\n")}
	if err := l.serve(c); err != nil {
		t.Fatal(err)
	}
	want := "RPRT -1\nRPRT 0\nRPRT -22\nRPRT -22\n5.000000\n200.000000\nRPRT -22\n"
	if diff := cmp.Diff(c.out.String(), want); diff != "" {
		t.Errorf("unexpected replies: got(-)/want(+):\n%s", diff)
	}
}
