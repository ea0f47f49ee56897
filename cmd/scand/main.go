// Command scand runs the adaptive scan controller: every interval it reads
// the latest wind summary, picks a scan and delivers it to the lidar.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/w1xm/lidar_scan/config"
	"github.com/w1xm/lidar_scan/cycle"
	"github.com/w1xm/lidar_scan/deliver"
	"github.com/w1xm/lidar_scan/halo"
	"github.com/w1xm/lidar_scan/telemetry"
	"github.com/w1xm/lidar_scan/windfeed"
	"golang.org/x/sync/errgroup"
)

var (
	configPath = flag.String("config", "scan.yaml", "path to the scan policy file")
	interval   = flag.Duration("interval", 0, "override the decision interval from the policy file")
	once       = flag.Bool("once", false, "run a single decision cycle and exit")
	addr       = flag.String("addr", "127.0.0.1:8503", "address for the status server; empty to disable")
	dryRun     = flag.Bool("dry_run", false, "keep scan files in memory instead of uploading them")
	feedAddr   = flag.String("feed_addr", "", "address to accept remote wind vectors on")
	disarm     = flag.Bool("disarm", false, "write a false signal file and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	env := config.LoadEnv()
	if *interval > 0 {
		cfg.Interval = *interval
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var transport deliver.Transport
	if *dryRun || env.LidarAddr == "" {
		log.Print("dry run; scan files are kept in memory")
		transport = deliver.NewMemory()
	} else {
		s := deliver.NewSFTP(deliver.SFTPConfig{
			Addr:        env.LidarAddr,
			User:        env.LidarUser,
			Password:    env.LidarPassword,
			KnownHosts:  env.LidarKnownHosts,
			DialTimeout: env.LidarTimeout,
			MaxTries:    uint(env.LidarMaxTries),
		})
		defer s.Close()
		transport = s
	}
	adapter := deliver.NewAdapter(transport, env.LidarTimeout)

	if *disarm {
		if err := adapter.Disarm(ctx, cfg.SignalPath); err != nil {
			log.Fatal(err)
		}
		return
	}

	metrics, err := telemetry.NewMetrics(nil)
	if err != nil {
		log.Fatal(err)
	}
	publisher, closers, err := publishers(ctx, env)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		for _, c := range closers {
			c()
		}
	}()
	publisher = append(publisher, metrics)

	source, err := windSource(ctx, cfg, env)
	if err != nil {
		log.Fatal(err)
	}

	srv := NewServer(metrics)
	runner := &cycle.Runner{
		Device:         cfg.Device,
		Policy:         cfg.Policy,
		Motion:         cfg.Motion,
		Mode:           cfg.Mode,
		Paths:          cycle.Paths{Plan: cfg.PlanPath, Signal: cfg.SignalPath},
		Source:         source,
		Delivery:       adapter,
		Publisher:      publisher,
		Metrics:        metrics,
		SkipUnchanged:  cfg.SkipUnchanged,
		StatusCallback: srv.statusCallback,
	}
	if cfg.Fetch.RemoteDir != "" {
		runner.Fetch = &cycle.Fetch{
			Retriever: adapter,
			RemoteDir: cfg.Fetch.RemoteDir,
			Pattern:   cfg.Fetch.Pattern,
			LocalDir:  cfg.Fetch.LocalDir,
			Window:    cfg.Fetch.Window,
		}
	}

	if *once {
		if _, err := runner.Run(ctx); err != nil {
			log.Fatal(err)
		}
		return
	}

	log.Printf("running %s cycles every %v", cfg.Mode, cfg.Interval)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Loop(ctx, cfg.Interval)
	})
	if *addr != "" {
		g.Go(func() error {
			return srv.ListenAndServe(ctx, *addr)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
	if cfg.Mode == halo.Dynamic {
		log.Print("shutdown; the lidar keeps running the last armed scan")
	}
}

// publishers connects to every telemetry server named in env.
func publishers(ctx context.Context, env *config.Env) (telemetry.Multi, []func(), error) {
	pubs := telemetry.Multi{telemetry.Log{}}
	var closers []func()
	tags := map[string]string{"site": env.Site}
	if env.InfluxServer != "" {
		i := telemetry.NewInflux(env.InfluxServer, env.InfluxToken, env.InfluxOrg, env.InfluxBucket, env.InfluxMeasurement, tags)
		pubs = append(pubs, i)
		closers = append(closers, i.Close)
	}
	if env.MQTTBroker != "" {
		client, err := telemetry.ConnectMQTT(mqttConfig(env))
		if err != nil {
			return nil, closers, err
		}
		pubs = append(pubs, &telemetry.MQTT{Client: client, Prefix: env.MQTTPrefix + "/" + env.Site})
		closers = append(closers, func() { client.Disconnect(250) })
	}
	if env.ClickHouseAddr != "" {
		c, err := telemetry.NewClickHouse(ctx, env.ClickHouseAddr, env.ClickHouseDB, env.ClickHouseUser, env.ClickHousePass, env.Site)
		if err != nil {
			return nil, closers, err
		}
		pubs = append(pubs, c)
		closers = append(closers, func() {
			if err := c.Close(); err != nil {
				log.Printf("closing clickhouse: %v", err)
			}
		})
	}
	return pubs, closers, nil
}

func mqttConfig(env *config.Env) telemetry.MQTTConfig {
	return telemetry.MQTTConfig{
		Broker:   env.MQTTBroker,
		ClientID: env.MQTTClientID,
		Username: env.MQTTUsername,
		Password: env.MQTTPassword,
	}
}

// windSource prefers a retrieval summary file. Otherwise vectors are
// collected from MQTT and the remote node listener.
func windSource(ctx context.Context, cfg *config.File, env *config.Env) (cycle.WindSource, error) {
	if cfg.Wind.File != "" {
		return &windfeed.File{Path: cfg.Wind.File, MaxAge: cfg.Wind.MaxAge}, nil
	}
	b := windfeed.NewBuffer(cfg.Wind.MaxAge)
	if cfg.Wind.MQTTTopic != "" {
		if env.MQTTBroker == "" {
			log.Printf("wind topic %q set but MQTT_BROKER is empty", cfg.Wind.MQTTTopic)
		} else {
			c := mqttConfig(env)
			c.ClientID += "-wind"
			client, err := telemetry.ConnectMQTT(c)
			if err != nil {
				return nil, err
			}
			if err := windfeed.SubscribeMQTT(client, cfg.Wind.MQTTTopic, b); err != nil {
				return nil, err
			}
		}
	}
	if *feedAddr != "" {
		l := &windfeed.Listener{Buffer: b}
		a, err := l.Listen(ctx, *feedAddr)
		if err != nil {
			return nil, err
		}
		log.Printf("accepting wind vectors on %v", a)
	}
	return b, nil
}
