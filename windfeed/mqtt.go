package windfeed

import (
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// SubscribeMQTT feeds JSON Samples published on topic into b.
func SubscribeMQTT(client mqtt.Client, topic string, b *Buffer) error {
	token := client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		if err := handleMessage(b, msg.Payload()); err != nil {
			log.Printf("parsing %q message: %v", msg.Topic(), err)
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribing to %q: %w", topic, token.Error())
	}
	log.Printf("subscribed to %q", topic)
	return nil
}

func handleMessage(b *Buffer, payload []byte) error {
	var s Sample
	if err := json.Unmarshal(payload, &s); err != nil {
		return err
	}
	b.Add(s)
	return nil
}
