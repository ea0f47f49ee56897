package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Env holds connection settings, read from the environment and an
// optional .env file.
type Env struct {
	// Lidar SFTP access
	LidarAddr       string
	LidarUser       string
	LidarPassword   string
	LidarKnownHosts string
	LidarTimeout    time.Duration
	LidarMaxTries   int

	// InfluxDB
	InfluxServer      string
	InfluxToken       string
	InfluxOrg         string
	InfluxBucket      string
	InfluxMeasurement string

	// MQTT
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	MQTTPrefix   string

	// ClickHouse
	ClickHouseAddr string
	ClickHouseDB   string
	ClickHouseUser string
	ClickHousePass string

	Site string
}

// LoadEnv reads Env. Unset telemetry servers are left empty, which
// disables that publisher.
func LoadEnv() *Env {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Env{
		LidarAddr:       getEnv("LIDAR_ADDR", ""),
		LidarUser:       getEnv("LIDAR_USER_NAME", "lidar"),
		LidarPassword:   getEnv("LIDAR_PASSWORD", ""),
		LidarKnownHosts: getEnv("LIDAR_KNOWN_HOSTS", ""),
		LidarTimeout:    getEnvDuration("LIDAR_TIMEOUT", 30*time.Second),
		LidarMaxTries:   getEnvInt("LIDAR_MAX_TRIES", 5),

		InfluxServer:      getEnv("INFLUX_SERVER", ""),
		InfluxToken:       getEnv("INFLUX_TOKEN", ""),
		InfluxOrg:         getEnv("INFLUX_ORG", ""),
		InfluxBucket:      getEnv("INFLUX_BUCKET", "lidar"),
		InfluxMeasurement: getEnv("INFLUX_MEASUREMENT", "scan"),

		MQTTBroker:   getEnv("MQTT_BROKER", ""),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "lidar-scand"),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),
		MQTTPrefix:   getEnv("MQTT_PREFIX", "lidar"),

		ClickHouseAddr: getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDB:   getEnv("CLICKHOUSE_DB", "lidar"),
		ClickHouseUser: getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass: getEnv("CLICKHOUSE_PASS", ""),

		Site: getEnv("LIDAR_SITE", "default"),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("failed to parse %s as int, using default: %v", key, err)
		return defaultValue
	}
	return i
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("failed to parse %s as duration, using default: %v", key, err)
		return defaultValue
	}
	return d
}
