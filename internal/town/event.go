package town

import (
	"encoding/json"
	"fmt"
)

type EventKind int

const (
	EventPlayerJoined EventKind = iota + 1
	EventPlayerMoved
	EventPlayerDisconnected
	EventTownDestroyed
	// EventPlayerKicked is delivered only to the listeners bound to the kicked session.
	EventPlayerKicked
)

// String returns the name used for the event on the wire.
func (k EventKind) String() string {
	switch k {
	case EventPlayerJoined:
		return "newPlayer"
	case EventPlayerMoved:
		return "playerMoved"
	case EventPlayerDisconnected:
		return "playerDisconnect"
	case EventTownDestroyed:
		return "townClosing"
	case EventPlayerKicked:
		return "kicked"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Event is a single change to a town's live state. Player holds a copy of the
// player as it was when the event was produced and is the zero value for
// EventTownDestroyed.
type Event struct {
	Kind   EventKind
	TownID string
	Player Player
}

type eventFrame struct {
	Type   string  `json:"type"`
	TownID string  `json:"townID"`
	Player *Player `json:"player,omitempty"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	f := eventFrame{
		Type:   e.Kind.String(),
		TownID: e.TownID,
	}
	if e.Kind != EventTownDestroyed {
		p := e.Player
		f.Player = &p
	}
	return json.Marshal(f)
}
