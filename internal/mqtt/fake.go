package mqtt

import (
	"github.com/sweeney/thermostat/internal/logic"
)

// Sent is one message as it would have reached the broker.
type Sent struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// FakePublisher records what a RealPublisher would send, without a broker.
type FakePublisher struct {
	// Transitions and SystemEvents hold the values passed in, in order.
	Transitions  []logic.Transition
	SystemEvents []SystemEvent

	// Sent holds every formatted message across both topics.
	Sent []Sent

	// PublishError and PublishSystemError fail the matching call; nothing
	// is recorded.
	PublishError       error
	PublishSystemError error

	Closed    bool
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (f *FakePublisher) Publish(t logic.Transition) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPayload(t)
	if err != nil {
		return err
	}
	f.Transitions = append(f.Transitions, t)
	f.Sent = append(f.Sent, Sent{Topic: Topic, Payload: payload})
	return nil
}

func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.Sent = append(f.Sent, Sent{Topic: TopicSystem, Payload: payload, Retained: event.Retained})
	return nil
}

func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Payloads returns the payloads sent to topic, oldest first.
func (f *FakePublisher) Payloads(topic string) [][]byte {
	var out [][]byte
	for _, s := range f.Sent {
		if s.Topic == topic {
			out = append(out, s.Payload)
		}
	}
	return out
}

// SystemEventNames lists the Event of each recorded system event.
func (f *FakePublisher) SystemEventNames() []string {
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}
