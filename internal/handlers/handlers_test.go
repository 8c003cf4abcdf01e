package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"
	"golang.org/x/crypto/bcrypt"

	"github.com/pixil98/go-town/internal/catalog"
	"github.com/pixil98/go-town/internal/town"
)

func newTestHandlers(t *testing.T, opts ...Opt) (*Handlers, *town.Store, *catalog.FileCatalog) {
	t.Helper()

	cat, err := catalog.OpenFile(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store := town.NewStore(cat)
	opts = append([]Opt{WithHashCost(bcrypt.MinCost)}, opts...)
	return New(store, cat, opts...), store, cat
}

func createTown(t *testing.T, h *Handlers, name, creator string) (string, string) {
	t.Helper()

	env := h.CreateTown(context.Background(), CreateTownRequest{FriendlyName: name, IsPublic: true, CreatorName: creator})
	if !env.IsOK {
		t.Fatalf("creating town: %s", env.Message)
	}
	return env.Response.TownID, env.Response.Password
}

func drain(t *testing.T, sub *town.Subscription) []town.Event {
	t.Helper()

	var out []town.Event
	for sub.Len() > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		ev, err := sub.Next(ctx)
		cancel()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out = append(out, ev)
	}
	return out
}

func TestHandlers_TownLifecycle(t *testing.T) {
	h, store, _ := newTestHandlers(t)
	ctx := context.Background()

	id, pw := createTown(t, h, "Acme", "carol")

	c, _ := store.ControllerForTown(id)
	subs := []*town.Subscription{town.NewSubscription(), town.NewSubscription()}
	for _, sub := range subs {
		if err := c.AddTownListener(sub); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	alice := h.JoinTown(ctx, JoinRequest{UserName: "alice", TownID: id})
	if !alice.IsOK {
		t.Fatalf("alice join failed: %s", alice.Message)
	}
	testutil.AssertEqual(t, "alice sees nobody", len(alice.Response.CurrentPlayers), 0)
	testutil.AssertEqual(t, "friendly name", alice.Response.FriendlyName, "Acme")
	testutil.AssertEqual(t, "public", alice.Response.IsPublic, true)

	bob := h.JoinTown(ctx, JoinRequest{UserName: "bob", TownID: id})
	if !bob.IsOK {
		t.Fatalf("bob join failed: %s", bob.Message)
	}
	testutil.AssertEqual(t, "bob sees alice", len(bob.Response.CurrentPlayers), 1)
	testutil.AssertEqual(t, "alice id", bob.Response.CurrentPlayers[0].ID, alice.Response.UserID)
	if bob.Response.SessionToken == alice.Response.SessionToken {
		t.Error("expected distinct session tokens")
	}

	s, _ := c.SessionByToken(alice.Response.SessionToken)
	err := c.UpdatePlayerLocation(s.Player(), town.Location{X: 5, Y: 5, Rotation: town.DirectionNorth, Moving: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	del := h.DeleteTown(ctx, DeleteTownRequest{TownID: id, Password: pw})
	testutil.AssertEqual(t, "deleted", del.IsOK, true)

	for i, sub := range subs {
		events := drain(t, sub)
		if len(events) != 4 {
			t.Fatalf("listener %d: expected 4 events, got %d", i, len(events))
		}
		testutil.AssertEqual(t, "first", events[0].Kind, town.EventPlayerJoined)
		testutil.AssertEqual(t, "first player", events[0].Player.UserName, "alice")
		testutil.AssertEqual(t, "second", events[1].Kind, town.EventPlayerJoined)
		testutil.AssertEqual(t, "second player", events[1].Player.UserName, "bob")
		testutil.AssertEqual(t, "third", events[2].Kind, town.EventPlayerMoved)
		testutil.AssertEqual(t, "third player", events[2].Player.UserName, "alice")
		testutil.AssertEqual(t, "moved x", events[2].Player.Location.X, 5.0)
		testutil.AssertEqual(t, "moved y", events[2].Player.Location.Y, 5.0)
		testutil.AssertEqual(t, "moved rotation", events[2].Player.Location.Rotation, town.DirectionNorth)
		testutil.AssertEqual(t, "moved moving", events[2].Player.Location.Moving, true)
		testutil.AssertEqual(t, "fourth", events[3].Kind, town.EventTownDestroyed)

		destroyed := 0
		for _, ev := range events {
			if ev.Kind == town.EventTownDestroyed {
				destroyed++
			}
		}
		testutil.AssertEqual(t, "destroyed events", destroyed, 1)
	}

	_, found := store.ControllerForTown(id)
	testutil.AssertEqual(t, "gone", found, false)

	again := h.JoinTown(ctx, JoinRequest{UserName: "dave", TownID: id})
	testutil.AssertEqual(t, "join deleted town", again.Message, msgNoSuchTown)
	testutil.AssertEqual(t, "delete twice", h.DeleteTown(ctx, DeleteTownRequest{TownID: id, Password: pw}).IsOK, false)

	for _, sub := range subs {
		testutil.AssertEqual(t, "events after delete", len(drain(t, sub)), 0)
	}
}

func TestHandlers_JoinTown(t *testing.T) {
	tests := map[string]struct {
		setup    func(t *testing.T, h *Handlers, id string)
		townID   string
		userName string
		expOK    bool
		expMsg   string
	}{
		"joins": {
			userName: "alice",
			expOK:    true,
		},
		"unknown town": {
			townID:   "nope",
			userName: "alice",
			expMsg:   msgNoSuchTown,
		},
		"empty name": {
			userName: "   ",
			expMsg:   msgUserRequired,
		},
		"blocked": {
			setup: func(t *testing.T, h *Handlers, id string) {
				env := h.AddBlocker(context.Background(), ListChangeRequest{TownID: id, Name: "mallory", Requester: "carol"})
				if !env.IsOK {
					t.Fatalf("adding blocker: %s", env.Message)
				}
			},
			userName: " mallory ",
			expMsg:   "User mallory is in the block list",
		},
		"creator is never blocked": {
			setup: func(t *testing.T, h *Handlers, id string) {
				if _, err := h.catalog.AddBlocker(context.Background(), id, "carol"); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			},
			userName: "carol",
			expOK:    true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			h, store, _ := newTestHandlers(t)
			id, _ := createTown(t, h, "Acme", "carol")
			if tt.setup != nil {
				tt.setup(t, h, id)
			}

			c, _ := store.ControllerForTown(id)
			sub := town.NewSubscription()
			_ = c.AddTownListener(sub)

			townID := id
			if tt.townID != "" {
				townID = tt.townID
			}
			env := h.JoinTown(context.Background(), JoinRequest{UserName: tt.userName, TownID: townID})

			testutil.AssertEqual(t, "ok", env.IsOK, tt.expOK)
			testutil.AssertEqual(t, "message", env.Message, tt.expMsg)
			if !tt.expOK {
				testutil.AssertEqual(t, "no response", env.Response == nil, true)
				testutil.AssertEqual(t, "no players", c.Occupancy(), 0)
				testutil.AssertEqual(t, "no events", sub.Len(), 0)
				return
			}
			testutil.AssertEqual(t, "occupancy", c.Occupancy(), 1)
			testutil.AssertEqual(t, "events", sub.Len(), 1)
		})
	}
}

func TestHandlers_JoinTown_Full(t *testing.T) {
	cat, err := catalog.OpenFile(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h := New(town.NewStore(cat, town.WithDefaultCapacity(1)), cat)
	id, _ := createTown(t, h, "Tiny", "carol")

	first := h.JoinTown(context.Background(), JoinRequest{UserName: "alice", TownID: id})
	testutil.AssertEqual(t, "first", first.IsOK, true)

	second := h.JoinTown(context.Background(), JoinRequest{UserName: "bob", TownID: id})
	testutil.AssertEqual(t, "second", second.IsOK, false)
	testutil.AssertEqual(t, "message", second.Message, msgTownFull)
}

func TestHandlers_CreateTown(t *testing.T) {
	h, _, cat := newTestHandlers(t)
	ctx := context.Background()

	env := h.CreateTown(ctx, CreateTownRequest{FriendlyName: "", IsPublic: true})
	testutil.AssertEqual(t, "empty name ok", env.IsOK, false)
	testutil.AssertEqual(t, "empty name message", env.Message, msgNameRequired)

	id, pw := createTown(t, h, "Acme", " carol ")
	rec, err := cat.GetTown(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "creator", rec.Creator, "carol")
	testutil.AssertEqual(t, "password", rec.Password, pw)
}

func TestHandlers_ListTowns(t *testing.T) {
	h, _, cat := newTestHandlers(t)
	ctx := context.Background()

	empty := h.ListTowns(ctx)
	testutil.AssertEqual(t, "ok", empty.IsOK, true)
	testutil.AssertEqual(t, "not nil", empty.Response.Towns != nil, true)
	testutil.AssertEqual(t, "empty", len(empty.Response.Towns), 0)

	createTown(t, h, "Beta", "carol")
	h.CreateTown(ctx, CreateTownRequest{FriendlyName: "Hidden", IsPublic: false})

	// A town written to the catalog by another instance shows up after reconciliation.
	err := cat.CreateTown(ctx, &catalog.TownRecord{
		ID:           "ELSEWHERE",
		FriendlyName: "Alpha",
		Password:     "pw",
		IsPublic:     true,
		Admins:       []string{},
		Blockers:     []string{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	env := h.ListTowns(ctx)
	testutil.AssertEqual(t, "count", len(env.Response.Towns), 2)
	testutil.AssertEqual(t, "first", env.Response.Towns[0].FriendlyName, "Alpha")
	testutil.AssertEqual(t, "second", env.Response.Towns[1].FriendlyName, "Beta")
}

func TestHandlers_UpdateTown(t *testing.T) {
	h, store, cat := newTestHandlers(t)
	ctx := context.Background()
	id, pw := createTown(t, h, "Acme", "carol")

	name := "Renamed"
	bad := h.UpdateTown(ctx, UpdateTownRequest{TownID: id, Password: "wrong", FriendlyName: &name})
	testutil.AssertEqual(t, "bad ok", bad.IsOK, false)
	testutil.AssertEqual(t, "bad message", bad.Message, msgBadTownUpdate)

	c, _ := store.ControllerForTown(id)
	testutil.AssertEqual(t, "unchanged", c.FriendlyName(), "Acme")

	good := h.UpdateTown(ctx, UpdateTownRequest{TownID: id, Password: pw, FriendlyName: &name})
	testutil.AssertEqual(t, "good ok", good.IsOK, true)
	testutil.AssertEqual(t, "renamed", c.FriendlyName(), "Renamed")

	rec, _ := cat.GetTown(ctx, id)
	testutil.AssertEqual(t, "persisted", rec.FriendlyName, "Renamed")

	bad = h.DeleteTown(ctx, DeleteTownRequest{TownID: id, Password: "wrong"})
	testutil.AssertEqual(t, "bad delete", bad.Message, msgBadTownDelete)
	_, found := store.ControllerForTown(id)
	testutil.AssertEqual(t, "still there", found, true)
}

func TestHandlers_TownMembership(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	ctx := context.Background()
	id, _ := createTown(t, h, "Acme", "carol")

	h.AddAdmin(ctx, ListChangeRequest{TownID: id, Name: "bob", Requester: "carol"})
	h.AddBlocker(ctx, ListChangeRequest{TownID: id, Name: "mallory", Requester: "bob"})

	env := h.TownMembership(ctx, id)
	testutil.AssertEqual(t, "ok", env.IsOK, true)
	testutil.AssertEqual(t, "creator", env.Response.Creator, "carol")
	testutil.AssertEqual(t, "admins", len(env.Response.Admins), 1)
	testutil.AssertEqual(t, "admin", env.Response.Admins[0], "bob")
	testutil.AssertEqual(t, "blockers", len(env.Response.Blockers), 1)
	testutil.AssertEqual(t, "blocker", env.Response.Blockers[0], "mallory")

	missing := h.TownMembership(ctx, "nope")
	testutil.AssertEqual(t, "missing", missing.Message, msgNoSuchTown)
}
