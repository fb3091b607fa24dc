package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	bufferCapacity = 256
	publishTimeout = 5 * time.Second
)

// RealPublisher publishes to a broker. Messages published while the
// connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool
	connects  int
}

// NewRealPublisher starts connecting to broker in the background and returns
// immediately. A retained SHUTDOWN will is registered for unclean exits.
func NewRealPublisher(broker, clientID string, logger *zap.Logger) *RealPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &RealPublisher{
		logger: logger,
		now:    time.Now,
		buf:    newRingBuffer(bufferCapacity, logger),
	}

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "SHUTDOWN", Reason: "MQTT_DISCONNECT"})
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	p.connected = true
	p.connects++
	reconnect := p.connects > 1
	pending := p.buf.drainAll()
	p.mu.Unlock()

	p.logger.Info("mqtt connected", zap.Bool("reconnect", reconnect), zap.Int("buffered", len(pending)))
	for _, m := range pending {
		if err := p.send(m); err != nil {
			p.logger.Warn("mqtt replay failed", zap.String("topic", m.topic), zap.Error(err))
		}
	}
	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
		if err := p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1}); err != nil {
			p.logger.Warn("mqtt reconnect event failed", zap.Error(err))
		}
	}
}

func (p *RealPublisher) onConnectionLost(c paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.logger.Warn("mqtt connection lost", zap.Error(err))
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("publish timeout")
	}
	return token.Error()
}

// publish sends m now or buffers it when disconnected. A failed send while
// connected is buffered as well.
func (p *RealPublisher) publish(m bufferedMsg) error {
	p.mu.Lock()
	if !p.connected {
		p.buf.push(m)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.send(m); err != nil {
		p.mu.Lock()
		p.buf.push(m)
		p.mu.Unlock()
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// Publish sends a tick event. QoS 0, not retained.
func (p *RealPublisher) Publish(event TickEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: Topic, payload: payload})
}

// PublishSystem sends a lifecycle event. QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
