package town

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// CredentialIssuer hands out the auxiliary credential a player uses for the
// town's companion media channel.
type CredentialIssuer interface {
	IssueCredential(townID, playerID string) (string, error)
}

type randomIssuer struct{}

func (randomIssuer) IssueCredential(_, _ string) (string, error) {
	return generateSecret(16)
}

func generateSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Controller owns the live state of a single town: its players, their
// sessions, and the listeners that are told about every change. All mutations
// are serialized on the controller's lock and events are fanned out while the
// lock is held, so every listener sees one player's changes in the order they
// were applied.
type Controller struct {
	mu sync.Mutex

	id           string
	friendlyName string
	isPublic     bool
	password     string
	capacity     int
	issuer       CredentialIssuer

	players   []*Player
	sessions  map[string]*Session
	listeners []Listener
	bound     map[string][]Listener // session token -> listeners bound to that session's transport
	destroyed bool
}

type ControllerOpt func(*Controller)

// WithPassword sets the town's update credential instead of generating one.
func WithPassword(pw string) ControllerOpt {
	return func(c *Controller) {
		c.password = pw
	}
}

// WithCapacity limits the number of players that may be in the town at once. Zero means no limit.
func WithCapacity(n int) ControllerOpt {
	return func(c *Controller) {
		c.capacity = n
	}
}

// WithCredentialIssuer sets the issuer for session media credentials.
func WithCredentialIssuer(i CredentialIssuer) ControllerOpt {
	return func(c *Controller) {
		c.issuer = i
	}
}

func NewController(id, friendlyName string, isPublic bool, opts ...ControllerOpt) (*Controller, error) {
	c := &Controller{
		id:           id,
		friendlyName: friendlyName,
		isPublic:     isPublic,
		issuer:       randomIssuer{},
		sessions:     map[string]*Session{},
		bound:        map[string][]Listener{},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.password == "" {
		pw, err := generateSecret(12)
		if err != nil {
			return nil, fmt.Errorf("generating town password: %w", err)
		}
		c.password = pw
	}

	return c, nil
}

func (c *Controller) ID() string {
	return c.id
}

func (c *Controller) FriendlyName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.friendlyName
}

func (c *Controller) IsPublic() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isPublic
}

// Password returns the town's update credential.
func (c *Controller) Password() string {
	return c.password
}

func (c *Controller) Capacity() int {
	return c.capacity
}

// Occupancy returns the number of players currently in the town.
func (c *Controller) Occupancy() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.players)
}

// Players returns copies of the players currently in the town in join order.
func (c *Controller) Players() []Player {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Player, 0, len(c.players))
	for _, p := range c.players {
		out = append(out, *p)
	}
	return out
}

func (c *Controller) passwordMatches(pw string) bool {
	return subtle.ConstantTimeCompare([]byte(pw), []byte(c.password)) == 1
}

func (c *Controller) setMetadata(friendlyName *string, isPublic *bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return false
	}
	if friendlyName != nil {
		c.friendlyName = *friendlyName
	}
	if isPublic != nil {
		c.isPublic = *isPublic
	}
	return true
}

// AddPlayer registers the player, issues it a session and tells every attached
// listener about the join before returning.
func (c *Controller) AddPlayer(p *Player) (*Session, error) {
	if p == nil || p.UserName == "" {
		return nil, ErrInvalidName
	}

	videoToken, err := c.issuer.IssueCredential(c.id, p.ID)
	if err != nil {
		return nil, fmt.Errorf("issuing media credential: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return nil, ErrNoSuchTown
	}
	if c.capacity > 0 && len(c.players) >= c.capacity {
		return nil, ErrTownFull
	}
	if c.playerIndex(p) >= 0 {
		return nil, ErrPlayerExists
	}

	token := uuid.NewString()
	for _, taken := c.sessions[token]; taken; _, taken = c.sessions[token] {
		token = uuid.NewString()
	}

	s := &Session{
		token:      token,
		player:     p,
		videoToken: videoToken,
	}
	c.players = append(c.players, p)
	c.sessions[token] = s

	c.broadcast(Event{Kind: EventPlayerJoined, TownID: c.id, Player: *p})

	return s, nil
}

// SessionByToken finds the live session for a token.
func (c *Controller) SessionByToken(token string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[token]
	return s, ok
}

// UpdatePlayerLocation overwrites the player's location and tells every listener.
func (c *Controller) UpdatePlayerLocation(p *Player, loc Location) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.playerIndex(p)
	if i < 0 {
		return ErrPlayerNotFound
	}

	registered := c.players[i]
	registered.Location = loc
	c.broadcast(Event{Kind: EventPlayerMoved, TownID: c.id, Player: *registered})
	return nil
}

// DestroySession removes the session, its player, and any listeners bound to
// it, then tells the remaining listeners the player left. Destroying a session
// that is already gone does nothing.
func (c *Controller) DestroySession(s *Session) {
	if s == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sessions[s.token]; !ok {
		return
	}
	c.removeSessionLocked(s)
	c.broadcast(Event{Kind: EventPlayerDisconnected, TownID: c.id, Player: *s.player})
}

// AddTownListener attaches a listener for all future events.
func (c *Controller) AddTownListener(l Listener) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return ErrNoSuchTown
	}
	if !slices.Contains(c.listeners, l) {
		c.listeners = append(c.listeners, l)
	}
	return nil
}

// AddSessionListener attaches a listener on behalf of a session's transport.
// The listener is detached automatically when the session is destroyed.
func (c *Controller) AddSessionListener(s *Session, l Listener) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return ErrNoSuchTown
	}
	if _, ok := c.sessions[s.token]; !ok {
		return ErrUnknownSession
	}
	if !slices.Contains(c.listeners, l) {
		c.listeners = append(c.listeners, l)
	}
	if !slices.Contains(c.bound[s.token], l) {
		c.bound[s.token] = append(c.bound[s.token], l)
	}
	return nil
}

// RemoveTownListener detaches a listener. Removing an unknown listener is a no-op.
func (c *Controller) RemoveTownListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listeners = slices.DeleteFunc(c.listeners, func(x Listener) bool { return x == l })
	for token, ls := range c.bound {
		ls = slices.DeleteFunc(ls, func(x Listener) bool { return x == l })
		if len(ls) == 0 {
			delete(c.bound, token)
		} else {
			c.bound[token] = ls
		}
	}
}

// KickPlayers disconnects every session whose player name satisfies match.
// The kicked session's own listeners are sent EventPlayerKicked, the rest of
// the town sees an ordinary disconnect. It returns the number of sessions kicked.
func (c *Controller) KickPlayers(match func(userName string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var kicked []*Session
	for _, s := range c.sessions {
		if match(s.player.UserName) {
			kicked = append(kicked, s)
		}
	}

	for _, s := range kicked {
		ev := Event{Kind: EventPlayerKicked, TownID: c.id, Player: *s.player}
		for _, l := range c.bound[s.token] {
			deliver(l, ev)
		}
		c.removeSessionLocked(s)
		c.broadcast(Event{Kind: EventPlayerDisconnected, TownID: c.id, Player: *s.player})
	}

	return len(kicked)
}

// Destroy tells every listener the town is closing and then drops all
// players, sessions and listeners. No events are produced afterwards.
func (c *Controller) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return
	}
	c.destroyed = true

	c.broadcast(Event{Kind: EventTownDestroyed, TownID: c.id})

	c.listeners = nil
	c.bound = map[string][]Listener{}
	c.sessions = map[string]*Session{}
	c.players = nil
}

// Destroyed reports whether the town has been torn down.
func (c *Controller) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

func (c *Controller) removeSessionLocked(s *Session) {
	for _, l := range c.bound[s.token] {
		c.listeners = slices.DeleteFunc(c.listeners, func(x Listener) bool { return x == l })
	}
	delete(c.bound, s.token)
	delete(c.sessions, s.token)

	if i := c.playerIndex(s.player); i >= 0 {
		c.players = slices.Delete(c.players, i, i+1)
	}
}

func (c *Controller) playerIndex(p *Player) int {
	return slices.IndexFunc(c.players, func(x *Player) bool { return x.ID == p.ID })
}

func (c *Controller) broadcast(ev Event) {
	for _, l := range c.listeners {
		deliver(l, ev)
	}
}

// deliver isolates a single listener's failure from the rest of the fan-out.
func deliver(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("town listener panicked", "town", ev.TownID, "event", ev.Kind.String(), "panic", r)
		}
	}()

	if err := l.Notify(ev); err != nil {
		slog.Warn("delivering town event", "town", ev.TownID, "event", ev.Kind.String(), "error", err)
	}
}
