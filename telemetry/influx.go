package telemetry

import (
	"log"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
)

// Influx writes values as fields of a single measurement using the
// client's non-blocking write API.
type Influx struct {
	client      influxdb2.Client
	writeApi    api.WriteApi
	measurement string
	tags        map[string]string
}

func NewInflux(server, token, org, bucket, measurement string, tags map[string]string) *Influx {
	client := influxdb2.NewClient(server, token)
	writeApi := client.WriteApi(org, bucket)
	errorsCh := writeApi.Errors()
	go func() {
		for err := range errorsCh {
			log.Printf("write error: %v", err)
		}
	}()
	return &Influx{
		client:      client,
		writeApi:    writeApi,
		measurement: measurement,
		tags:        tags,
	}
}

func (i *Influx) Publish(key string, value float64, ts time.Time) {
	p := influxdb2.NewPoint(i.measurement,
		i.tags,
		map[string]interface{}{key: value},
		ts,
	)
	i.writeApi.WritePoint(p)
}

// Close flushes pending points.
func (i *Influx) Close() {
	i.writeApi.Flush()
	i.writeApi.Close()
	i.client.Close()
}
