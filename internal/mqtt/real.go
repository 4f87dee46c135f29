package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/thermostat/internal/logic"
)

// DefaultOutboxSize is the number of messages held while disconnected.
const DefaultOutboxSize = 100

var errNotConnected = errors.New("not connected")

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	OutboxSize int
	Logger     *slog.Logger
}

// RealPublisher publishes to an actual MQTT broker. Messages published
// while the broker is unreachable are queued and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	log    *slog.Logger

	mu     sync.Mutex
	outbox *outbox
}

// NewRealPublisher starts connecting to the broker. A broker that is not
// yet reachable is not an error; the client keeps retrying in the
// background.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = DefaultOutboxSize
	}
	p := &RealPublisher{
		log:    o.Logger.With("broker", o.Broker),
		outbox: newOutbox(o.OutboxSize),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "connection lost"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.flush() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn("mqtt connection lost", "error", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		p.log.Warn("mqtt broker not reachable yet, buffering")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// Publish sends a heater transition.
func (p *RealPublisher) Publish(t logic.Transition) error {
	payload, err := FormatPayload(t)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.send(pendingMsg{topic: Topic, payload: payload})
}

// PublishSystem sends a lifecycle event.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 so shutdown notices are delivered
	return p.send(pendingMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the client currently has a connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

// send publishes msg, or queues it when there is no connection.
// A queued message is not an error.
func (p *RealPublisher) send(msg pendingMsg) error {
	if !p.client.IsConnectionOpen() {
		p.enqueue(msg)
		return nil
	}
	if err := p.publish(msg); err != nil {
		if errors.Is(err, errNotConnected) {
			p.enqueue(msg)
			return nil
		}
		return err
	}
	return nil
}

func (p *RealPublisher) publish(msg pendingMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		if !p.client.IsConnectionOpen() {
			return errNotConnected
		}
		return fmt.Errorf("publish to %s: %w", msg.topic, err)
	}
	return nil
}

func (p *RealPublisher) enqueue(msg pendingMsg) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outbox.push(msg) {
		p.log.Warn("mqtt outbox full, dropping oldest", "capacity", p.outbox.capacity)
	}
}

// flush replays queued messages after (re)connecting.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	msgs, dropped := p.outbox.drain()
	p.mu.Unlock()

	if len(msgs) == 0 {
		p.log.Info("mqtt connected")
		return
	}
	p.log.Info("mqtt connected, replaying queued messages", "count", len(msgs), "dropped", dropped)
	for i, msg := range msgs {
		if err := p.publish(msg); err != nil {
			p.log.Warn("mqtt replay failed, requeueing", "error", err)
			p.mu.Lock()
			for _, rest := range msgs[i:] {
				p.outbox.push(rest)
			}
			p.mu.Unlock()
			return
		}
	}
}
