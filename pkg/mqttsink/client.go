// Package mqttsink publishes sensor readings to an MQTT broker.
package mqttsink

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/NotCoffee418/p1_mini/pkg/config"
	"github.com/NotCoffee418/p1_mini/pkg/interpreter"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"

	publishTimeout = 5 * time.Second
)

var ErrTimeout = errors.New("MQTT operation timed out")

func OptsFromConfig(cfg config.MQTTConfig) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(fmt.Sprintf("p1_mini_%d", rand.Intn(1000)))
	if cfg.Username != "" && cfg.Password != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.BaseTopic)
	opts.WillQos = 0
	return opts
}

// Publisher sends every reading to <base_topic>/sensor/<name>/state.
// It satisfies interpreter.Publisher.
type Publisher struct {
	client    mqtt.Client
	baseTopic string
	logger    *zap.Logger
}

// New creates a publisher for cfg. Call Connect before publishing.
func New(cfg config.MQTTConfig, logger *zap.Logger) *Publisher {
	p := newPublisher(nil, cfg.BaseTopic, logger)
	opts := OptsFromConfig(cfg)
	opts.OnConnect = func(c mqtt.Client) {
		p.logger.Info("Connected to MQTT broker")
		p.publish(p.BridgeStateTopic(), MQTT_PAYLOAD_ONLINE, true)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		p.logger.Warn("MQTT connection lost", zap.Error(err))
	}
	p.client = mqtt.NewClient(opts)
	return p
}

func newPublisher(client mqtt.Client, baseTopic string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client:    client,
		baseTopic: baseTopic,
		logger:    logger.Named("mqtt"),
	}
}

func (p *Publisher) Connect(timeout time.Duration) error {
	token := p.client.Connect()
	if !token.WaitTimeout(timeout) {
		return ErrTimeout
	}
	return token.Error()
}

func (p *Publisher) Disconnect(timeout time.Duration) {
	if p.client.IsConnected() {
		token := p.client.Publish(p.BridgeStateTopic(), 0, true, MQTT_PAYLOAD_OFFLINE)
		token.WaitTimeout(timeout)
	}
	p.client.Disconnect(uint(timeout.Milliseconds()))
}

func (p *Publisher) BridgeStateTopic() string {
	return bridgeStateTopic(p.baseTopic)
}

func (p *Publisher) SensorStateTopic(name string) string {
	return fmt.Sprintf("%s/sensor/%s/state", p.baseTopic, name)
}

// Publish does not block on the broker, failures are logged.
func (p *Publisher) Publish(reading *interpreter.Reading) {
	p.publish(p.SensorStateTopic(reading.Name), strconv.FormatFloat(reading.Value, 'f', -1, 64), false)
}

func (p *Publisher) publish(topic, payload string, retain bool) {
	token := p.client.Publish(topic, 0, retain, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			p.logger.Warn("MQTT publish timed out", zap.String("topic", topic))
			return
		}
		if err := token.Error(); err != nil {
			p.logger.Warn("MQTT publish failed", zap.String("topic", topic), zap.Error(err))
		}
	}()
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}
