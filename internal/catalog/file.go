package catalog

import (
	"cmp"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pixil98/go-town/internal/storage"
)

// FileCatalog keeps towns and users as JSON assets on disk.
type FileCatalog struct {
	towns *storage.FileStore[*TownRecord]
	users *storage.FileStore[*UserRecord]
}

var _ Catalog = (*FileCatalog)(nil)

// OpenFile loads (or initializes) a catalog rooted at path.
func OpenFile(path string) (*FileCatalog, error) {
	townDir := filepath.Join(path, "towns")
	userDir := filepath.Join(path, "users")

	for _, dir := range []string{townDir, userDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	towns, err := storage.NewFileStore[*TownRecord](townDir)
	if err != nil {
		return nil, fmt.Errorf("loading towns: %w", err)
	}

	users, err := storage.NewFileStore[*UserRecord](userDir)
	if err != nil {
		return nil, fmt.Errorf("loading users: %w", err)
	}

	return &FileCatalog{towns: towns, users: users}, nil
}

func (c *FileCatalog) GetTown(_ context.Context, id string) (*TownRecord, error) {
	rec, ok := c.towns.Get(id)
	if !ok {
		return nil, fmt.Errorf("town %s: %w", id, ErrNotFound)
	}
	return rec.Clone(), nil
}

func (c *FileCatalog) CreateTown(_ context.Context, rec *TownRecord) error {
	err := c.towns.Create(rec.ID, rec.Clone())
	return mapStorageErr("town", rec.ID, err)
}

func (c *FileCatalog) UpdateTown(_ context.Context, id string, u TownUpdate) error {
	err := c.towns.Update(id, func(cur *TownRecord) (*TownRecord, error) {
		next := cur.Clone()
		if u.FriendlyName != nil {
			next.FriendlyName = *u.FriendlyName
		}
		if u.IsPublic != nil {
			next.IsPublic = *u.IsPublic
		}
		return next, nil
	})
	return mapStorageErr("town", id, err)
}

func (c *FileCatalog) DeleteTown(_ context.Context, id string) error {
	return mapStorageErr("town", id, c.towns.Delete(id))
}

func (c *FileCatalog) ListTowns(context.Context) ([]*TownRecord, error) {
	return c.listTowns(func(*TownRecord) bool { return true }), nil
}

func (c *FileCatalog) ListPublicTowns(context.Context) ([]*TownRecord, error) {
	return c.listTowns(func(r *TownRecord) bool { return r.IsPublic }), nil
}

func (c *FileCatalog) listTowns(keep func(*TownRecord) bool) []*TownRecord {
	out := []*TownRecord{}
	for _, rec := range c.towns.GetAll() {
		if keep(rec) {
			out = append(out, rec.Clone())
		}
	}

	slices.SortFunc(out, func(a, b *TownRecord) int {
		return cmp.Or(cmp.Compare(a.FriendlyName, b.FriendlyName), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func (c *FileCatalog) AddBlocker(_ context.Context, townID, name string) (bool, error) {
	return c.mutateList(townID, func(r *TownRecord) *[]string { return &r.Blockers }, name, true)
}

func (c *FileCatalog) RemoveBlocker(_ context.Context, townID, name string) (bool, error) {
	return c.mutateList(townID, func(r *TownRecord) *[]string { return &r.Blockers }, name, false)
}

func (c *FileCatalog) AddAdmin(_ context.Context, townID, name string) (bool, error) {
	return c.mutateList(townID, func(r *TownRecord) *[]string { return &r.Admins }, name, true)
}

func (c *FileCatalog) RemoveAdmin(_ context.Context, townID, name string) (bool, error) {
	return c.mutateList(townID, func(r *TownRecord) *[]string { return &r.Admins }, name, false)
}

// mutateList adds or removes name from one of a town's lists in a single
// locked read-modify-write. It reports whether the list changed.
func (c *FileCatalog) mutateList(townID string, list func(*TownRecord) *[]string, name string, add bool) (bool, error) {
	changed := false
	err := c.towns.Update(townID, func(cur *TownRecord) (*TownRecord, error) {
		present := slices.Contains(*list(cur), name)
		if present == add {
			return cur, nil
		}

		next := cur.Clone()
		l := list(next)
		if add {
			*l = append(*l, name)
		} else {
			*l = slices.DeleteFunc(*l, func(s string) bool { return s == name })
		}
		changed = true
		return next, nil
	})
	if err != nil {
		return false, mapStorageErr("town", townID, err)
	}
	return changed, nil
}

func (c *FileCatalog) CreateUser(_ context.Context, u *UserRecord) error {
	cp := *u
	return mapStorageErr("user", u.UserName, c.users.Create(userKey(u.UserName), &cp))
}

func (c *FileCatalog) GetUser(_ context.Context, userName string) (*UserRecord, error) {
	u, ok := c.users.Get(userKey(userName))
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userName, ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (c *FileCatalog) UpdateUser(_ context.Context, u *UserRecord) error {
	cp := *u
	err := c.users.Update(userKey(u.UserName), func(*UserRecord) (*UserRecord, error) {
		return &cp, nil
	})
	return mapStorageErr("user", u.UserName, err)
}

func (c *FileCatalog) Close() error {
	return nil
}

// userKey maps a user name onto a file-safe, case-insensitive identifier.
func userKey(name string) string {
	return hex.EncodeToString([]byte(strings.ToLower(strings.TrimSpace(name))))
}

func mapStorageErr(kind, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	case errors.Is(err, storage.ErrExists):
		return fmt.Errorf("%s %s: %w", kind, id, ErrExists)
	default:
		return fmt.Errorf("%s %s: %w", kind, id, err)
	}
}
