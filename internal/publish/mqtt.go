package publish

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"lacrosse-relay/internal/types"
)

type MQTTOptions struct {
	Broker      string
	Port        int
	ClientID    string
	TopicPrefix string
}

// MQTTPublisher publishes each reading to <prefix>/<location> at QoS 1.
type MQTTPublisher struct {
	client    mqtt.Client
	opts      MQTTOptions
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewMQTTPublisher(opts MQTTOptions, logger *slog.Logger) *MQTTPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "lacrosse"
	}
	p := &MQTTPublisher{
		opts:   opts,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Broker, opts.Port))
	co.SetClientID(opts.ClientID)
	co.SetCleanSession(true)

	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(5 * time.Second)
	co.SetMaxReconnectInterval(60 * time.Second)

	co.SetKeepAlive(30 * time.Second)
	co.SetPingTimeout(10 * time.Second)

	co.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		logger.Info("mqtt connected", "broker", opts.Broker, "port", opts.Port)
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(co)
	return p
}

// Connect waits for the initial broker connection, honoring ctx and Close.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return fmt.Errorf("publisher stopped")
	default:
	}

	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			p.client.Disconnect(0)
			return ctx.Err()
		case <-p.stopCh:
			p.client.Disconnect(0)
			return fmt.Errorf("publisher stopped")
		default:
		}
	}
}

func (p *MQTTPublisher) Publish(ctx context.Context, r types.Reading) error {
	if !p.IsConnected() {
		return &PublishError{Sink: "mqtt", Detail: "client not connected"}
	}

	data, err := Encode(r)
	if err != nil {
		return err
	}

	topic := p.Topic(r.Location)
	token := p.client.Publish(topic, 1, false, data)

	const poll = 100 * time.Millisecond
	deadline := time.Now().Add(5 * time.Second)
	for !token.WaitTimeout(poll) {
		if err := ctx.Err(); err != nil {
			return transportError("mqtt", err)
		}
		if time.Now().After(deadline) {
			return &PublishError{Sink: "mqtt", Detail: "publish timeout for topic " + topic}
		}
	}
	if err := token.Error(); err != nil {
		return transportError("mqtt", fmt.Errorf("publish to %s: %w", topic, err))
	}

	p.logger.Info("published reading", "topic", topic, "location", r.Location)
	return nil
}

// Topic returns the topic for a location. MQTT wildcard and level separators
// in the name are replaced so each location maps to exactly one level.
func (p *MQTTPublisher) Topic(location string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#':
			return '_'
		}
		return r
	}, strings.TrimSpace(location))
	return p.opts.TopicPrefix + "/" + name
}

// IsConnected returns whether the client is connected.
func (p *MQTTPublisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Close stops the publisher and disconnects. Safe to call more than once.
func (p *MQTTPublisher) Close() error {
	p.stopOnce.Do(func() { close(p.stopCh) })

	if p.client != nil {
		p.client.Disconnect(250)
	}

	p.setConnected(false)
	p.logger.Info("mqtt disconnected")
	return nil
}

func (p *MQTTPublisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
