// Package telemetry publishes scan decisions to monitoring systems.
// Publishing is fire-and-forget: failures are logged, never returned.
package telemetry

import (
	"log"
	"time"
)

// Publisher records one numeric value.
type Publisher interface {
	Publish(key string, value float64, ts time.Time)
}

type PublisherFunc func(key string, value float64, ts time.Time)

func (f PublisherFunc) Publish(key string, value float64, ts time.Time) {
	f(key, value, ts)
}

// Multi publishes to every publisher in order.
type Multi []Publisher

func (m Multi) Publish(key string, value float64, ts time.Time) {
	for _, p := range m {
		p.Publish(key, value, ts)
	}
}

// Log writes every value to the standard logger.
type Log struct{}

func (Log) Publish(key string, value float64, ts time.Time) {
	log.Printf("telemetry %s=%g at %s", key, value, ts.Format(time.RFC3339))
}

// Point is a published value, as sent by the MQTT publisher.
type Point struct {
	Key       string    `json:"key"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}
