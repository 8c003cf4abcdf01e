package messaging

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/pixil98/go-testutil"

	"github.com/pixil98/go-town/internal/town"
)

type message struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, message{subject: subject, data: data})
	return nil
}

func TestEventSubject(t *testing.T) {
	testutil.AssertEqual(t, "subject", EventSubject("01ABC"), "town.01ABC.events")
}

func TestEventMirror_Notify(t *testing.T) {
	tests := map[string]struct {
		event     town.Event
		pubErr    error
		expType   string
		expPlayer bool
		expErr    string
	}{
		"player moved": {
			event:     town.Event{Kind: town.EventPlayerMoved, TownID: "T1", Player: town.Player{ID: "p1", UserName: "alice"}},
			expType:   "playerMoved",
			expPlayer: true,
		},
		"town destroyed": {
			event:   town.Event{Kind: town.EventTownDestroyed, TownID: "T1"},
			expType: "townClosing",
		},
		"publish failure": {
			event:  town.Event{Kind: town.EventPlayerJoined, TownID: "T1"},
			pubErr: errors.New("broker gone"),
			expErr: "publishing to town.T1.events",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			pub := &fakePublisher{err: tt.pubErr}
			m := NewEventMirror(pub, "T1")

			err := m.Notify(tt.event)
			if tt.expErr != "" {
				testutil.AssertErrorContains(t, err, tt.expErr)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			testutil.AssertEqual(t, "messages", len(pub.msgs), 1)
			testutil.AssertEqual(t, "subject", pub.msgs[0].subject, "town.T1.events")

			var frame map[string]any
			if err := json.Unmarshal(pub.msgs[0].data, &frame); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			typ, _ := frame["type"].(string)
			testutil.AssertEqual(t, "type", typ, tt.expType)
			_, hasPlayer := frame["player"]
			testutil.AssertEqual(t, "player present", hasPlayer, tt.expPlayer)
		})
	}
}

func TestMirrorFactory_WiredIntoStore(t *testing.T) {
	pub := &fakePublisher{}
	ctrl, err := town.NewController("T1", "Town", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ctrl.AddTownListener(MirrorFactory(pub)("T1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s, err := ctrl.AddPlayer(town.NewPlayer("alice"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctrl.DestroySession(s)

	testutil.AssertEqual(t, "messages", len(pub.msgs), 2)
}
