// Command scan_logger follows the scand status socket and records every
// decision cycle in InfluxDB.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"github.com/w1xm/lidar_scan/config"
	"github.com/w1xm/lidar_scan/telemetry"
)

var url = flag.String("url", "ws://localhost:8503/api/ws", "scand status socket")

func main() {
	flag.Parse()
	env := config.LoadEnv()
	if env.InfluxServer == "" {
		env.InfluxServer = "http://localhost:9999"
	}
	influx := telemetry.NewInflux(env.InfluxServer, env.InfluxToken, env.InfluxOrg, env.InfluxBucket, "scan.status", map[string]string{"site": env.Site})
	defer influx.Close()
	for {
		if err := logStatus(*url, influx); err != nil {
			log.Print(err)
		}
		time.Sleep(1 * time.Second)
	}
}

// flattenStatus collects the numeric and boolean leaves of status, keyed by
// their dotted path.
func flattenStatus(fields map[string]float64, status interface{}, prefix string) {
	switch status := status.(type) {
	case map[string]interface{}:
		for k, v := range status {
			flattenStatus(fields, v, prefix+"."+k)
		}
	case []interface{}:
		for k, v := range status {
			flattenStatus(fields, v, fmt.Sprintf("%s.%d", prefix, k))
		}
	case float64:
		fields[prefix[1:]] = status
	case bool:
		fields[prefix[1:]] = 0
		if status {
			fields[prefix[1:]] = 1
		}
	}
}

// record publishes one status message, stamped with the cycle time when
// it has one.
func record(p telemetry.Publisher, status map[string]interface{}) {
	ts := time.Now()
	if s, ok := status["Time"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			ts = t
		}
	}
	fields := make(map[string]float64)
	flattenStatus(fields, status, "")
	for k, v := range fields {
		p.Publish(k, v, ts)
	}
	if s, ok := status["Status"].(string); ok {
		p.Publish("status."+s, 1, ts)
	}
}

func logStatus(url string, p telemetry.Publisher) error {
	var dialer websocket.Dialer
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	for {
		var status map[string]interface{}
		if err := conn.ReadJSON(&status); err != nil {
			return err
		}
		record(p, status)
	}
}
