package telemetry

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createTelemetryTable = `
CREATE TABLE IF NOT EXISTS scan_telemetry (
	timestamp DateTime64(3),
	site String,
	key String,
	value Float64
) ENGINE = MergeTree()
ORDER BY (site, key, timestamp)
`

// ClickHouse stores values in the scan_telemetry table. Inserts run on a
// background goroutine; values are dropped when it falls behind.
type ClickHouse struct {
	conn   driver.Conn
	site   string
	points chan Point
	done   chan struct{}
}

func NewClickHouse(ctx context.Context, addr, database, username, password, site string) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to ClickHouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging ClickHouse: %w", err)
	}
	if err := conn.Exec(ctx, createTelemetryTable); err != nil {
		return nil, fmt.Errorf("creating scan_telemetry: %w", err)
	}
	c := &ClickHouse{
		conn:   conn,
		site:   site,
		points: make(chan Point, 100),
		done:   make(chan struct{}),
	}
	go c.run()
	return c, nil
}

func (c *ClickHouse) run() {
	defer close(c.done)
	for p := range c.points {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Exec(ctx, `INSERT INTO scan_telemetry (timestamp, site, key, value) VALUES (?, ?, ?, ?)`,
			p.Timestamp, c.site, p.Key, p.Value)
		cancel()
		if err != nil {
			log.Printf("inserting %s: %v", p.Key, err)
		}
	}
}

func (c *ClickHouse) Publish(key string, value float64, ts time.Time) {
	select {
	case c.points <- Point{Key: key, Value: value, Timestamp: ts}:
	default:
		log.Printf("dropping %s: insert queue full", key)
	}
}

// Close waits for queued inserts and closes the connection.
func (c *ClickHouse) Close() error {
	close(c.points)
	<-c.done
	return c.conn.Close()
}
