package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// ConnectMQTT opens a client that reconnects on its own.
func ConnectMQTT(cfg MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("connected to %q", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("lost %q: %v", cfg.Broker, err)
	})
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to %q: %w", cfg.Broker, token.Error())
	}
	return client, nil
}

// MQTT publishes each value as a JSON Point on Prefix/<key>, with dots in
// the key turned into topic levels. Messages use QoS 1.
type MQTT struct {
	Client mqtt.Client
	Prefix string
}

func (m *MQTT) topic(key string) string {
	return strings.TrimSuffix(m.Prefix, "/") + "/" + strings.ReplaceAll(key, ".", "/")
}

func (m *MQTT) Publish(key string, value float64, ts time.Time) {
	payload, err := json.Marshal(Point{Key: key, Value: value, Timestamp: ts})
	if err != nil {
		log.Printf("encoding %s: %v", key, err)
		return
	}
	topic := m.topic(key)
	token := m.Client.Publish(topic, 1, false, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Printf("publishing %q: %v", topic, token.Error())
		}
	}()
}
