package listener

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/pixil98/go-town/internal/town"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxFrameBytes bounds a single client frame. Movement frames are well under it.
	maxFrameBytes = 4096
)

// errConnClosed ends a socket's goroutines once either side is done with it.
var errConnClosed = errors.New("connection closed")

// TownLookup resolves a live town.
type TownLookup interface {
	ControllerForTown(id string) (*town.Controller, bool)
}

// SubscriptionHandler upgrades a request into a socket that streams a town's
// events to one session and applies that session's movement frames.
type SubscriptionHandler struct {
	towns    TownLookup
	upgrader websocket.Upgrader
}

// NewSubscriptionHandler builds the socket handler. checkOrigin may be nil to allow every origin.
func NewSubscriptionHandler(towns TownLookup, checkOrigin func(origin string) bool) *SubscriptionHandler {
	return &SubscriptionHandler{
		towns: towns,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || checkOrigin == nil || checkOrigin(origin)
			},
		},
	}
}

type clientFrame struct {
	Type     string          `json:"type"`
	Location json.RawMessage `json:"location"`
}

func (h *SubscriptionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	townID := r.URL.Query().Get("coveyTownID")
	c, found := h.towns.ControllerForTown(townID)
	if !found {
		closeWith(conn, websocket.ClosePolicyViolation, town.ErrNoSuchTown.Error())
		return
	}
	s, found := c.SessionByToken(r.URL.Query().Get("token"))
	if !found {
		closeWith(conn, websocket.ClosePolicyViolation, town.ErrUnknownSession.Error())
		return
	}

	sub := town.NewSubscription()
	if err := c.AddSessionListener(s, sub); err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}

	ctx := r.Context()
	slog.InfoContext(ctx, "session connected", "town", townID, "player", s.Player().ID)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return readPump(conn, c, s) })
	g.Go(func() error { return writePump(gctx, conn, sub) })
	g.Go(func() error { return pinger(gctx, conn) })
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			closeWith(conn, websocket.CloseGoingAway, "server shutting down")
		}
		_ = conn.Close()
		return nil
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, errConnClosed) && !errors.Is(err, town.ErrSubscriptionClosed) && !errors.Is(err, context.Canceled) {
		slog.WarnContext(ctx, "session socket", "town", townID, "player", s.Player().ID, "error", err)
	}

	c.RemoveTownListener(sub)
	c.DestroySession(s)
	sub.Close()

	slog.InfoContext(ctx, "session disconnected", "town", townID, "player", s.Player().ID)
}

// readPump applies movement frames until the client goes away.
func readPump(conn *websocket.Conn, c *town.Controller, s *town.Session) error {
	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return err
			}
			return errConnClosed
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("ignoring malformed frame", "player", s.Player().ID, "error", err)
			continue
		}
		if frame.Type != "playerMovement" {
			continue
		}

		var loc town.Location
		if err := json.Unmarshal(frame.Location, &loc); err != nil {
			slog.Warn("ignoring malformed movement", "player", s.Player().ID, "error", err)
			continue
		}

		if err := c.UpdatePlayerLocation(s.Player(), loc); err != nil {
			return errConnClosed
		}
	}
}

// writePump forwards queued events. A town closing or a kick is the last
// frame the client receives before the socket is closed.
func writePump(ctx context.Context, conn *websocket.Conn, sub *town.Subscription) error {
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			return err
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			return err
		}

		switch ev.Kind {
		case town.EventTownDestroyed:
			closeWith(conn, websocket.CloseNormalClosure, ev.Kind.String())
			return errConnClosed
		case town.EventPlayerKicked:
			closeWith(conn, websocket.ClosePolicyViolation, ev.Kind.String())
			return errConnClosed
		}
	}
}

func pinger(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		}
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
