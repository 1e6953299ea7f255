// Package telemetry mirrors relay events onto MQTT topics:
//
//	<prefix>/roster                  full roster, retained
//	<prefix>/robots/<id>/state       latest state snapshot
//	<prefix>/robots/<id>/connected   "true" or "false", retained
package telemetry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/teslashibe/go-rebel/internal/log"
	"github.com/teslashibe/go-rebel/pkg/protocol"
)

// DefaultPrefix is the topic root.
const DefaultPrefix = "rebel"

const publishTimeout = 5 * time.Second

// Publisher is the part of mqtt.Client the bridge needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Source is a relay that reports roster, state and connectivity changes.
type Source interface {
	OnRoster(func(protocol.Roster))
	OnState(func(robotID string, state json.RawMessage))
	OnConnectivity(func(robotID string, connected bool))
}

// Bridge publishes relay events.
type Bridge struct {
	pub    Publisher
	prefix string
	qos    byte
	logger *slog.Logger
}

// NewBridge creates a bridge publishing under prefix (DefaultPrefix if
// empty) at the given QoS.
func NewBridge(pub Publisher, prefix string, qos byte) *Bridge {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Bridge{
		pub:    pub,
		prefix: prefix,
		qos:    qos,
		logger: log.With("component", "telemetry"),
	}
}

// Attach subscribes the bridge to src.
func (b *Bridge) Attach(src Source) {
	src.OnRoster(b.PublishRoster)
	src.OnState(b.PublishState)
	src.OnConnectivity(b.PublishConnectivity)
}

// RosterTopic is where the roster goes.
func (b *Bridge) RosterTopic() string {
	return b.prefix + "/roster"
}

// StateTopic is where a robot's state goes.
func (b *Bridge) StateTopic(robotID string) string {
	return fmt.Sprintf("%s/robots/%s/state", b.prefix, robotID)
}

// ConnectedTopic is where a robot's connectivity goes.
func (b *Bridge) ConnectedTopic(robotID string) string {
	return fmt.Sprintf("%s/robots/%s/connected", b.prefix, robotID)
}

// PublishRoster publishes the roster, retained.
func (b *Bridge) PublishRoster(roster protocol.Roster) {
	if roster == nil {
		roster = protocol.Roster{}
	}
	data, err := json.Marshal(roster)
	if err != nil {
		b.logger.Warn("encode roster failed", "error", err)
		return
	}
	b.publish(b.RosterTopic(), true, data)
}

// PublishState publishes a state snapshot as is.
func (b *Bridge) PublishState(robotID string, state json.RawMessage) {
	b.publish(b.StateTopic(robotID), false, []byte(state))
}

// PublishConnectivity publishes "true" or "false", retained.
func (b *Bridge) PublishConnectivity(robotID string, connected bool) {
	payload := "false"
	if connected {
		payload = "true"
	}
	b.publish(b.ConnectedTopic(robotID), true, []byte(payload))
}

// publish never blocks the relay: the token is awaited in the background.
func (b *Bridge) publish(topic string, retained bool, payload []byte) {
	token := b.pub.Publish(topic, b.qos, retained, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			b.logger.Warn("publish timed out", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			b.logger.Warn("publish failed", "topic", topic, "error", err)
		}
	}()
}

// Options configures a broker connection.
type Options struct {
	Broker   string
	Username string
	Password string
	ClientID string
}

// Connect opens an MQTT connection with auto-reconnect. An empty ClientID
// gets a random one.
func Connect(o Options) (mqtt.Client, error) {
	logger := log.With("component", "telemetry", "broker", o.Broker)

	clientID := o.ClientID
	if clientID == "" {
		clientID = "rebel-" + uuid.NewString()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(clientID)
	opts.SetUsername(o.Username)
	opts.SetPassword(o.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Error("MQTT connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("MQTT connected", "client_id", clientID)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		// ConnectRetry keeps trying in the background
		logger.Warn("MQTT broker not reachable yet, retrying")
		return client, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return client, nil
}
