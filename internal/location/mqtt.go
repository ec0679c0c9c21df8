package location

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/geotrail/trackrec-go/internal/models"
)

// MQTTSource consumes location payloads published to an MQTT topic. It is
// the backend for the always-on background stream: a companion device keeps
// publishing fixes while the primary UI path is inactive.
type MQTTSource struct {
	client mqtt.Client
	topic  string

	mu     sync.Mutex
	latest *models.RawLocation
}

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	BrokerURL string // e.g. tcp://localhost:1883
	ClientID  string
	Topic     string
}

// NewMQTTSource connects to the broker. Payloads are JSON-encoded
// RawLocation documents; anything that fails to decode is dropped with a
// log line, matching the ingestion rejection policy.
func NewMQTTSource(opts MQTTOptions) (*MQTTSource, error) {
	clientID := opts.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("trackrec-%d", time.Now().UnixNano())
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(clientID).
		SetOrderMatters(false).
		SetAutoReconnect(true)

	client := mqtt.NewClient(clientOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", opts.BrokerURL, token.Error())
	}
	log.Printf("[location] connected to MQTT broker %s as %s", opts.BrokerURL, clientID)

	return &MQTTSource{client: client, topic: opts.Topic}, nil
}

// CurrentPosition returns the last payload seen on the topic. Without an
// active watch no payloads arrive, so this only serves as a cache of the
// most recent delivery.
func (s *MQTTSource) CurrentPosition(ctx context.Context) (models.RawLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return models.RawLocation{}, ErrNoFix
	}
	return *s.latest, nil
}

// WatchPosition subscribes to the topic and forwards each decodable payload.
func (s *MQTTSource) WatchPosition(ctx context.Context, h Handler) (Subscription, error) {
	token := s.client.Subscribe(s.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var raw models.RawLocation
		if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
			log.Printf("[location] dropping undecodable payload on %s: %v", msg.Topic(), err)
			return
		}
		s.mu.Lock()
		s.latest = &raw
		s.mu.Unlock()
		h(raw)
	})
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", s.topic, token.Error())
	}

	return &mqttSubscription{source: s}, nil
}

// Close disconnects from the broker.
func (s *MQTTSource) Close() {
	s.client.Disconnect(250)
}

type mqttSubscription struct {
	source *MQTTSource
	once   sync.Once
}

func (m *mqttSubscription) Unsubscribe() {
	m.once.Do(func() {
		token := m.source.client.Unsubscribe(m.source.topic)
		if token.Wait() && token.Error() != nil {
			log.Printf("[location] unsubscribe from %s: %v", m.source.topic, token.Error())
		}
	})
}
