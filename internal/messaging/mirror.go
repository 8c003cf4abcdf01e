package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/pixil98/go-town/internal/town"
)

type Publisher interface {
	Publish(subject string, data []byte) error
}

// EventSubject is the subject a town's events are mirrored to.
func EventSubject(townID string) string {
	return fmt.Sprintf("town.%s.events", townID)
}

// AllEventsSubject matches the event subject of every town.
const AllEventsSubject = "town.*.events"

// EventMirror is a town listener that republishes every event as JSON.
type EventMirror struct {
	pub     Publisher
	subject string
}

func NewEventMirror(pub Publisher, townID string) *EventMirror {
	return &EventMirror{pub: pub, subject: EventSubject(townID)}
}

func (m *EventMirror) Notify(ev town.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshalling %s event: %w", ev.Kind, err)
	}
	if err := m.pub.Publish(m.subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", m.subject, err)
	}
	return nil
}

// MirrorFactory attaches an EventMirror to every town the store builds.
func MirrorFactory(pub Publisher) town.ListenerFactory {
	return func(townID string) town.Listener {
		return NewEventMirror(pub, townID)
	}
}
