package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pixil98/go-town/internal/access"
	"github.com/pixil98/go-town/internal/catalog"
	"github.com/pixil98/go-town/internal/town"
)

const (
	msgNoSuchTownBang   = "Error: No such town!"
	msgListNameRequired = "Error: name must be specified"
	msgListWriteErr     = "Error: Unable to update the town, please try again"
	msgCreatorBlocked   = "Error: The town creator cannot be blocked"
)

// ListChangeRequest asks to add or remove Name on one of a town's access
// lists. Requester is the display name of whoever is asking.
type ListChangeRequest struct {
	TownID    string
	Name      string
	Requester string
}

// AddBlocker puts a name on the town's block list. The creator or an admin
// may do this. When kick-on-block is enabled, connected players with that
// name are disconnected straight away.
func (h *Handlers) AddBlocker(ctx context.Context, req ListChangeRequest) Envelope[Empty] {
	name := access.NormalizeName(req.Name)
	if name == "" {
		return fail[Empty](msgListNameRequired)
	}

	c, found := h.store.ControllerForTown(req.TownID)
	if !found {
		return fail[Empty](msgNoSuchTownBang)
	}

	rec, env, authorized := h.authorize(ctx, h.policy.AuthorizeBlockerChange, req)
	if !authorized {
		return env
	}
	if access.IsCreator(rec, name) {
		return fail[Empty](msgCreatorBlocked)
	}

	added, err := h.catalog.AddBlocker(ctx, req.TownID, name)
	if err != nil {
		slog.WarnContext(ctx, "adding blocker", "town", req.TownID, "error", err)
		return fail[Empty](msgListWriteErr)
	}
	if !added {
		return okMessage[Empty]("User is already in the block list")
	}

	if h.kickOnBlock {
		if n := c.KickPlayers(access.Matcher(name)); n > 0 {
			slog.InfoContext(ctx, "kicked blocked players", "town", req.TownID, "count", n)
		}
	}

	return okMessage[Empty]("Add blocker")
}

func (h *Handlers) RemoveBlocker(ctx context.Context, req ListChangeRequest) Envelope[Empty] {
	name := access.NormalizeName(req.Name)
	if name == "" {
		return fail[Empty](msgListNameRequired)
	}

	_, env, authorized := h.authorize(ctx, h.policy.AuthorizeBlockerChange, req)
	if !authorized {
		return env
	}

	if _, err := h.catalog.RemoveBlocker(ctx, req.TownID, name); err != nil {
		slog.WarnContext(ctx, "removing blocker", "town", req.TownID, "error", err)
		return fail[Empty](msgListWriteErr)
	}
	return okMessage[Empty]("Blocker removed")
}

// AddAdmin puts a name on the town's admin list. Only the creator may do this.
func (h *Handlers) AddAdmin(ctx context.Context, req ListChangeRequest) Envelope[Empty] {
	name := access.NormalizeName(req.Name)
	if name == "" {
		return fail[Empty](msgListNameRequired)
	}

	if _, found := h.store.ControllerForTown(req.TownID); !found {
		return fail[Empty](msgNoSuchTownBang)
	}

	_, env, authorized := h.authorize(ctx, h.policy.AuthorizeAdminChange, req)
	if !authorized {
		return env
	}

	added, err := h.catalog.AddAdmin(ctx, req.TownID, name)
	if err != nil {
		slog.WarnContext(ctx, "adding admin", "town", req.TownID, "error", err)
		return fail[Empty](msgListWriteErr)
	}
	if !added {
		return okMessage[Empty]("User is already in the Admin list")
	}
	return okMessage[Empty]("Add Admin")
}

func (h *Handlers) RemoveAdmin(ctx context.Context, req ListChangeRequest) Envelope[Empty] {
	name := access.NormalizeName(req.Name)
	if name == "" {
		return fail[Empty](msgListNameRequired)
	}

	_, env, authorized := h.authorize(ctx, h.policy.AuthorizeAdminChange, req)
	if !authorized {
		return env
	}

	if _, err := h.catalog.RemoveAdmin(ctx, req.TownID, name); err != nil {
		slog.WarnContext(ctx, "removing admin", "town", req.TownID, "error", err)
		return fail[Empty](msgListWriteErr)
	}
	return okMessage[Empty]("Admin removed")
}

type authorizeFunc func(ctx context.Context, townID, requester string) (*catalog.TownRecord, error)

func (h *Handlers) authorize(ctx context.Context, fn authorizeFunc, req ListChangeRequest) (*catalog.TownRecord, Envelope[Empty], bool) {
	rec, err := fn(ctx, req.TownID, req.Requester)
	switch {
	case errors.Is(err, town.ErrNoSuchTown):
		return nil, fail[Empty](msgNoSuchTownBang), false
	case errors.Is(err, town.ErrNotAuthorized):
		return nil, fail[Empty](fmt.Sprintf("Error: %s is not allowed to change this town", access.NormalizeName(req.Requester))), false
	case err != nil:
		slog.WarnContext(ctx, "authorizing list change", "town", req.TownID, "error", err)
		return nil, fail[Empty](msgAccessCheckErr), false
	}
	return rec, Envelope[Empty]{}, true
}
