// Package catalog defines the durable record of towns and user accounts that
// outlives any single process.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	goerrors "github.com/pixil98/go-errors"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrExists   = errors.New("record already exists")
)

// TownRecord is the durable description of a town.
type TownRecord struct {
	ID           string    `json:"id"`
	FriendlyName string    `json:"friendly_name"`
	Password     string    `json:"password"`
	Creator      string    `json:"creator"`
	IsPublic     bool      `json:"is_public"`
	MaxOccupancy int       `json:"max_occupancy,omitempty"`
	Admins       []string  `json:"admins"`
	Blockers     []string  `json:"blockers"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate satisfies storage.ValidatingSpec.
func (r *TownRecord) Validate() error {
	el := goerrors.NewErrorList()

	if r.ID == "" {
		el.Add(fmt.Errorf("id is required"))
	}
	if r.FriendlyName == "" {
		el.Add(fmt.Errorf("friendly_name is required"))
	}
	if r.Password == "" {
		el.Add(fmt.Errorf("password is required"))
	}
	if r.MaxOccupancy < 0 {
		el.Add(fmt.Errorf("max_occupancy must not be negative"))
	}

	return el.Err()
}

// Clone returns a deep copy so callers can't mutate a cached record.
func (r *TownRecord) Clone() *TownRecord {
	c := *r
	c.Admins = slices.Clone(r.Admins)
	c.Blockers = slices.Clone(r.Blockers)
	return &c
}

// TownUpdate is a partial update. Nil fields are left unchanged.
type TownUpdate struct {
	FriendlyName *string
	IsPublic     *bool
}

// UserRecord is a user account. PasswordHash is never sent to clients.
type UserRecord struct {
	UserName     string    `json:"user_name"`
	PasswordHash string    `json:"password_hash"`
	Email        string    `json:"email,omitempty"`
	Gender       string    `json:"gender,omitempty"`
	Age          string    `json:"age,omitempty"`
	City         string    `json:"city,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate satisfies storage.ValidatingSpec.
func (u *UserRecord) Validate() error {
	el := goerrors.NewErrorList()

	if u.UserName == "" {
		el.Add(fmt.Errorf("user_name is required"))
	}
	if u.PasswordHash == "" {
		el.Add(fmt.Errorf("password_hash is required"))
	}

	return el.Err()
}

// TownCatalog stores town records. List mutations are atomic per call: adding a
// name that is already present reports false rather than duplicating it.
type TownCatalog interface {
	GetTown(ctx context.Context, id string) (*TownRecord, error)
	CreateTown(ctx context.Context, rec *TownRecord) error
	UpdateTown(ctx context.Context, id string, u TownUpdate) error
	DeleteTown(ctx context.Context, id string) error
	ListTowns(ctx context.Context) ([]*TownRecord, error)
	ListPublicTowns(ctx context.Context) ([]*TownRecord, error)

	AddBlocker(ctx context.Context, townID, name string) (bool, error)
	RemoveBlocker(ctx context.Context, townID, name string) (bool, error)
	AddAdmin(ctx context.Context, townID, name string) (bool, error)
	RemoveAdmin(ctx context.Context, townID, name string) (bool, error)
}

// UserCatalog stores user accounts keyed by user name.
type UserCatalog interface {
	CreateUser(ctx context.Context, u *UserRecord) error
	GetUser(ctx context.Context, userName string) (*UserRecord, error)
	UpdateUser(ctx context.Context, u *UserRecord) error
}

// Catalog is a backend that stores both towns and users.
type Catalog interface {
	TownCatalog
	UserCatalog
	Close() error
}
