// Package access decides who may join a town and who may change its admin
// and block lists.
package access

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/pixil98/go-town/internal/catalog"
	"github.com/pixil98/go-town/internal/town"
)

// TownReader is the part of the catalog the policy reads from.
type TownReader interface {
	GetTown(ctx context.Context, id string) (*catalog.TownRecord, error)
}

type Policy struct {
	towns TownReader
}

func NewPolicy(towns TownReader) *Policy {
	return &Policy{towns: towns}
}

// CheckJoin admits name to the town unless the town has no catalog record or
// name is on its block list. The town's creator is always admitted.
func (p *Policy) CheckJoin(ctx context.Context, townID, name string) error {
	rec, err := p.record(ctx, townID)
	if err != nil {
		return err
	}

	if IsBlocked(rec, name) {
		return fmt.Errorf("%s: %w", NormalizeName(name), town.ErrBlocked)
	}
	return nil
}

// AuthorizeBlockerChange allows the creator or any admin to change the block list.
func (p *Policy) AuthorizeBlockerChange(ctx context.Context, townID, requester string) (*catalog.TownRecord, error) {
	rec, err := p.record(ctx, townID)
	if err != nil {
		return nil, err
	}

	if IsCreator(rec, requester) || containsName(rec.Admins, requester) {
		return rec, nil
	}
	return nil, fmt.Errorf("%s may not change blockers: %w", NormalizeName(requester), town.ErrNotAuthorized)
}

// AuthorizeAdminChange allows only the creator to change the admin list.
func (p *Policy) AuthorizeAdminChange(ctx context.Context, townID, requester string) (*catalog.TownRecord, error) {
	rec, err := p.record(ctx, townID)
	if err != nil {
		return nil, err
	}

	if IsCreator(rec, requester) {
		return rec, nil
	}
	return nil, fmt.Errorf("%s may not change admins: %w", NormalizeName(requester), town.ErrNotAuthorized)
}

func (p *Policy) record(ctx context.Context, townID string) (*catalog.TownRecord, error) {
	rec, err := p.towns.GetTown(ctx, townID)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, town.ErrNoSuchTown
	}
	if err != nil {
		return nil, fmt.Errorf("reading town %s: %w", townID, err)
	}
	return rec, nil
}

// IsBlocked reports whether name is on the record's block list. A creator is never blocked.
func IsBlocked(rec *catalog.TownRecord, name string) bool {
	return !IsCreator(rec, name) && containsName(rec.Blockers, name)
}

func IsCreator(rec *catalog.TownRecord, name string) bool {
	return rec.Creator != "" && SameName(rec.Creator, name)
}

// NormalizeName puts a display name in the form stored on access lists.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// SameName compares two display names after normalization. Empty names never match.
func SameName(a, b string) bool {
	na := NormalizeName(a)
	return na != "" && na == NormalizeName(b)
}

// Matcher returns a predicate that matches display names equal to name.
func Matcher(name string) func(string) bool {
	return func(other string) bool {
		return SameName(name, other)
	}
}

func containsName(list []string, name string) bool {
	return slices.ContainsFunc(list, Matcher(name))
}
