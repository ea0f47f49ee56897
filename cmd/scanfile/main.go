// Command scanfile writes a single scan file for the lidar, optionally
// uploading it, or checks an existing file.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/w1xm/lidar_scan/config"
	"github.com/w1xm/lidar_scan/deliver"
	"github.com/w1xm/lidar_scan/halo"
	"github.com/w1xm/lidar_scan/rotator"
	"github.com/w1xm/lidar_scan/scan"
)

var (
	mode         = flag.String("mode", "static", "file format: static, dynamic or legacy")
	elevations   = flag.String("elevations", "0", "comma separated elevations in degrees")
	azimuths     = flag.String("azimuths", "", "comma separated azimuths in degrees")
	sweep        = flag.String("sweep", "", "azimuth sweep as start,end in degrees; used instead of -azimuths")
	pairs        = flag.Bool("pairs", false, "pair -azimuths and -elevations element-wise, one ray each, instead of scanning every azimuth at every elevation")
	rhi          = flag.Bool("rhi", false, "sweep elevation from the smallest to the largest of -elevations at each azimuth")
	beamWidth    = flag.Float64("beam_width", 1, "beam spacing in degrees for sweeps")
	azSpeed      = flag.Float64("az_speed", 1, "azimuth speed in degrees/second")
	elSpeed      = flag.Float64("el_speed", 0.1, "elevation speed in degrees/second")
	acceleration = flag.Int("acceleration", 30, "motor acceleration")
	wait         = flag.Duration("wait", 0, "dwell after each ray")
	repeat       = flag.Int("repeat", 1, "static file repeat count")
	raysPerPoint = flag.Int("rays_per_point", 1, "static file rays per point")
	out          = flag.String("out", "-", "output file; - for stdout")
	upload       = flag.String("upload", "", "remote path to upload the file to over SFTP (LIDAR_ADDR)")
	arm          = flag.String("arm", "", "remote signal file to arm after a dynamic upload")
	check        = flag.String("check", "", "parse and simulate an existing scan file instead")
)

func parseList(s string) ([]float64, error) {
	var out []float64
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", f, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func geometry() (scan.Geometry, error) {
	els, err := parseList(*elevations)
	if err != nil {
		return scan.Geometry{}, err
	}
	var az scan.AzimuthSpec
	if *sweep != "" {
		bounds, err := parseList(*sweep)
		if err != nil {
			return scan.Geometry{}, err
		}
		if len(bounds) != 2 {
			return scan.Geometry{}, fmt.Errorf("-sweep needs start,end; got %q", *sweep)
		}
		az = scan.Sweep(bounds[0], bounds[1])
	} else {
		list, err := parseList(*azimuths)
		if err != nil {
			return scan.Geometry{}, err
		}
		az = scan.Azimuths(list...)
	}
	if *rhi {
		if len(az.List) != 1 || len(els) < 2 {
			return scan.Geometry{}, fmt.Errorf("-rhi needs one azimuth and at least two elevations")
		}
		lo, hi := els[0], els[0]
		for _, e := range els {
			if e < lo {
				lo = e
			}
			if e > hi {
				hi = e
			}
		}
		return scan.RHIGeometry(az.List[0], lo, hi, *beamWidth)
	}
	return scan.Geometry{Mode: scan.PPI, Layers: scan.Layers(els, az), BeamWidth: *beamWidth}, nil
}

// pairPlan builds one ray per azimuth/elevation pair.
func pairPlan(azimuths, elevations string) (scan.Plan, error) {
	az, err := parseList(azimuths)
	if err != nil {
		return nil, err
	}
	els, err := parseList(elevations)
	if err != nil {
		return nil, err
	}
	return scan.Pair(az, els)
}

func buildPlan() (scan.Plan, error) {
	if *pairs {
		return pairPlan(*azimuths, *elevations)
	}
	g, err := geometry()
	if err != nil {
		return nil, err
	}
	return scan.Build(g)
}

func build() ([]byte, halo.Command, error) {
	plan, err := buildPlan()
	if err != nil {
		return nil, halo.Command{}, err
	}
	if *mode == "legacy" {
		data, err := halo.EncodeLegacy(plan)
		return data, halo.Command{Rays: len(plan)}, err
	}
	m, err := halo.ParseMode(*mode)
	if err != nil {
		return nil, halo.Command{}, err
	}
	c, err := halo.Encode(rotator.Halo(), plan, halo.MotionParams{
		AzimuthSpeed:   *azSpeed,
		ElevationSpeed: *elSpeed,
		Acceleration:   *acceleration,
		Wait:           *wait,
		Repeat:         *repeat,
		RaysPerPoint:   *raysPerPoint,
	}, m)
	if err != nil {
		return nil, halo.Command{}, err
	}
	return c.Bytes(), c, nil
}

func checkFile(path string, w io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("opening %q: %w", path, err)
	}
	device := rotator.Halo()
	f, err := halo.Parse(bytes.NewReader(data))
	if err != nil {
		plan, lerr := halo.ParseLegacy(bytes.NewReader(data))
		if lerr != nil {
			return fmt.Errorf("parsing %q: %w", path, err)
		}
		fmt.Fprintf(w, "legacy file, %d rays\n", len(plan))
		for _, r := range plan {
			fmt.Fprintln(w, r)
		}
		return nil
	}
	if !f.CRLF {
		fmt.Fprintln(w, "warning: file has bare LF line endings")
	}
	start := rotator.Ray{}
	if len(f.Steps) > 0 {
		start = f.Plan(device)[0]
	}
	sim, err := halo.Simulate(device, f, start)
	if err != nil {
		return err
	}
	mode := scan.Classify(sim.Plan)
	fmt.Fprintf(w, "%s file, %d rays, %s with %d sweeps at %v, sweep %v, total %v\n",
		f.Mode, len(sim.Plan), mode, len(scan.SweepBounds(sim.Plan)), scan.FixedAngles(sim.Plan, mode), sim.Sweep, sim.Total)
	for i, r := range sim.Plan {
		step := f.Steps[i]
		fmt.Fprintf(w, "%d\t%v\t%.4g\t%.4g\t%v\n", i, r,
			device.Azimuth.DecodeSpeed(step.AzSpeed), device.Elevation.DecodeSpeed(step.ElSpeed), step.Wait)
	}
	return nil
}

func main() {
	flag.Parse()

	if *check != "" {
		if err := checkFile(*check, os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	}

	data, c, err := build()
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("built %d rays", c.Rays)
	if *out == "-" {
		os.Stdout.Write(data)
	} else if err := os.WriteFile(*out, data, 0o644); err != nil {
		log.Fatalf("writing %q: %v", *out, err)
	}

	if *upload == "" {
		return
	}
	env := config.LoadEnv()
	if env.LidarAddr == "" {
		log.Fatal("LIDAR_ADDR must be set to upload")
	}
	s := deliver.NewSFTP(deliver.SFTPConfig{
		Addr:        env.LidarAddr,
		User:        env.LidarUser,
		Password:    env.LidarPassword,
		KnownHosts:  env.LidarKnownHosts,
		DialTimeout: env.LidarTimeout,
		MaxTries:    uint(env.LidarMaxTries),
	})
	defer s.Close()
	a := deliver.NewAdapter(s, env.LidarTimeout)
	ctx := context.Background()
	switch {
	case *mode == "legacy":
		err = s.Put(ctx, data, *upload)
	case c.Mode == halo.Dynamic && *arm != "":
		err = a.DeliverDynamic(ctx, c, *upload, *arm)
	case c.Mode == halo.Dynamic:
		err = s.Put(ctx, data, *upload)
	default:
		err = a.DeliverStatic(ctx, c, *upload)
	}
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("uploaded %q", *upload)
}
