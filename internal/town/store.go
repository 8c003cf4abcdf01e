package town

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pixil98/go-town/internal/catalog"
)

const DefaultCapacity = 50

// Catalog is the part of the durable catalog the store keeps in step with the registry.
type Catalog interface {
	CreateTown(ctx context.Context, rec *catalog.TownRecord) error
	UpdateTown(ctx context.Context, id string, u catalog.TownUpdate) error
	DeleteTown(ctx context.Context, id string) error
	ListTowns(ctx context.Context) ([]*catalog.TownRecord, error)
}

// ListenerFactory builds a listener that is attached to every town the store creates or loads.
type ListenerFactory func(townID string) Listener

// Summary describes a publicly listed town.
type Summary struct {
	ID               string `json:"coveyTownID"`
	FriendlyName     string `json:"friendlyName"`
	CurrentOccupancy int    `json:"currentOccupancy"`
	MaximumOccupancy int    `json:"maximumOccupancy"`
}

// Store is the registry of live towns. Catalog writes are made after the
// in-memory change and never while a town is locked. A failed write is logged
// and picked up again by the next Tick.
type Store struct {
	mu    sync.RWMutex
	towns map[string]*Controller
	// deleted holds the id of every town deleted by this process. Ids are never
	// reused, so entries are kept to stop a catalog snapshot from reviving them.
	// The value is true while the catalog record still has to be removed.
	deleted map[string]bool

	catalog   Catalog
	issuer    CredentialIssuer
	capacity  int
	factories []ListenerFactory
}

type StoreOpt func(*Store)

// WithDefaultCapacity sets the occupancy limit for towns that don't carry their own.
func WithDefaultCapacity(n int) StoreOpt {
	return func(s *Store) {
		s.capacity = n
	}
}

// WithIssuer sets the media credential issuer handed to every town.
func WithIssuer(i CredentialIssuer) StoreOpt {
	return func(s *Store) {
		s.issuer = i
	}
}

// WithListenerFactory attaches a listener built by f to every town.
func WithListenerFactory(f ListenerFactory) StoreOpt {
	return func(s *Store) {
		s.factories = append(s.factories, f)
	}
}

func NewStore(cat Catalog, opts ...StoreOpt) *Store {
	s := &Store{
		towns:    map[string]*Controller{},
		deleted:  map[string]bool{},
		catalog:  cat,
		issuer:   randomIssuer{},
		capacity: DefaultCapacity,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// CreateTown registers a new, empty town and records it in the catalog. It
// returns the town's id and update credential.
func (s *Store) CreateTown(ctx context.Context, friendlyName string, isPublic bool, creator string) (string, string, error) {
	if friendlyName == "" {
		return "", "", ErrInvalidName
	}

	s.mu.Lock()
	id := ulid.Make().String()
	for s.idTaken(id) {
		id = ulid.Make().String()
	}
	c, err := s.newController(id, friendlyName, isPublic, "", 0)
	if err != nil {
		s.mu.Unlock()
		return "", "", err
	}
	s.towns[id] = c
	s.mu.Unlock()

	rec := &catalog.TownRecord{
		ID:           id,
		FriendlyName: friendlyName,
		Password:     c.Password(),
		Creator:      creator,
		IsPublic:     isPublic,
		MaxOccupancy: c.Capacity(),
		Admins:       []string{},
		Blockers:     []string{},
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.catalog.CreateTown(ctx, rec); err != nil {
		slog.WarnContext(ctx, "persisting new town", "town", id, "error", err)
	}

	slog.InfoContext(ctx, "town created", "town", id, "public", isPublic)
	return id, c.Password(), nil
}

// ControllerForTown looks up a live town.
func (s *Store) ControllerForTown(id string) (*Controller, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.towns[id]
	return c, ok
}

// UpdateTown changes a town's metadata. Nil arguments leave the field as it is.
// It returns false without changing anything if the town is unknown or already
// destroyed, if the password is wrong, or if the new name is empty.
func (s *Store) UpdateTown(ctx context.Context, id, password string, friendlyName *string, isPublic *bool) bool {
	c, ok := s.ControllerForTown(id)
	if !ok || !c.passwordMatches(password) {
		return false
	}
	if friendlyName != nil && *friendlyName == "" {
		return false
	}

	if !c.setMetadata(friendlyName, isPublic) {
		return false
	}

	if friendlyName != nil || isPublic != nil {
		err := s.catalog.UpdateTown(ctx, id, catalog.TownUpdate{FriendlyName: friendlyName, IsPublic: isPublic})
		if err != nil {
			slog.WarnContext(ctx, "persisting town update", "town", id, "error", err)
		}
	}
	return true
}

// DeleteTown tears a town down and removes it from the registry. Every
// listener is told the town is closing before the town is removed.
func (s *Store) DeleteTown(ctx context.Context, id, password string) bool {
	s.mu.Lock()
	c, ok := s.towns[id]
	if !ok || !c.passwordMatches(password) {
		s.mu.Unlock()
		return false
	}
	c.Destroy()
	delete(s.towns, id)
	s.deleted[id] = true
	s.mu.Unlock()

	s.deleteRecord(ctx, id)

	slog.InfoContext(ctx, "town deleted", "town", id)
	return true
}

// deleteRecord removes a deleted town from the catalog. The record stays
// pending on failure and is retried by Tick.
func (s *Store) deleteRecord(ctx context.Context, id string) {
	err := s.catalog.DeleteTown(ctx, id)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		slog.WarnContext(ctx, "deleting town record", "town", id, "error", err)
		return
	}

	s.mu.Lock()
	s.deleted[id] = false
	s.mu.Unlock()
}

func (s *Store) idTaken(id string) bool {
	_, live := s.towns[id]
	_, gone := s.deleted[id]
	return live || gone
}

// Towns lists the publicly visible towns ordered by name.
func (s *Store) Towns() []Summary {
	s.mu.RLock()
	controllers := make([]*Controller, 0, len(s.towns))
	for _, c := range s.towns {
		controllers = append(controllers, c)
	}
	s.mu.RUnlock()

	var out []Summary
	for _, c := range controllers {
		if !c.IsPublic() {
			continue
		}
		out = append(out, Summary{
			ID:               c.ID(),
			FriendlyName:     c.FriendlyName(),
			CurrentOccupancy: c.Occupancy(),
			MaximumOccupancy: c.Capacity(),
		})
	}

	slices.SortFunc(out, func(a, b Summary) int {
		return cmp.Or(cmp.Compare(a.FriendlyName, b.FriendlyName), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// LoadTownsFromCatalog adds a controller for every catalog town that isn't
// already live. Towns that are already registered keep their players and
// sessions, and towns deleted by this store are never brought back.
func (s *Store) LoadTownsFromCatalog(ctx context.Context) error {
	recs, err := s.catalog.ListTowns(ctx)
	if err != nil {
		return fmt.Errorf("listing towns: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := 0
	for _, rec := range recs {
		if s.idTaken(rec.ID) {
			continue
		}
		c, err := s.newController(rec.ID, rec.FriendlyName, rec.IsPublic, rec.Password, rec.MaxOccupancy)
		if err != nil {
			return fmt.Errorf("hydrating town %s: %w", rec.ID, err)
		}
		s.towns[rec.ID] = c
		loaded++
	}

	if loaded > 0 {
		slog.InfoContext(ctx, "loaded towns from catalog", "count", loaded)
	}
	return nil
}

// Tick satisfies driver.Manager by reconciling the registry with the catalog.
// Catalog deletes that failed earlier are retried first.
func (s *Store) Tick(ctx context.Context) error {
	s.mu.RLock()
	var pending []string
	for id, p := range s.deleted {
		if p {
			pending = append(pending, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range pending {
		s.deleteRecord(ctx, id)
	}

	if err := s.LoadTownsFromCatalog(ctx); err != nil {
		slog.WarnContext(ctx, "reconciling towns", "error", err)
	}
	return nil
}

func (s *Store) newController(id, friendlyName string, isPublic bool, password string, capacity int) (*Controller, error) {
	if capacity == 0 {
		capacity = s.capacity
	}

	c, err := NewController(id, friendlyName, isPublic,
		WithPassword(password),
		WithCapacity(capacity),
		WithCredentialIssuer(s.issuer),
	)
	if err != nil {
		return nil, err
	}

	for _, f := range s.factories {
		if err := c.AddTownListener(f(id)); err != nil {
			return nil, fmt.Errorf("attaching listener: %w", err)
		}
	}

	return c, nil
}
