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
	msgNoSuchTown     = "Error: No such town"
	msgBadTownUpdate  = "Invalid password or update values specified. Please double check your town update password."
	msgBadTownDelete  = "Invalid password. Please double check your town update password."
	msgNameRequired   = "FriendlyName must be specified"
	msgUserRequired   = "Error: userName must be specified"
	msgTownFull       = "Error: Town is full"
	msgAccessCheckErr = "Error: Unable to verify town access, please try again"
)

type JoinRequest struct {
	UserName string `json:"userName"`
	TownID   string `json:"coveyTownID"`
}

type JoinResponse struct {
	UserID         string        `json:"coveyUserID"`
	SessionToken   string        `json:"coveySessionToken"`
	VideoToken     string        `json:"providerVideoToken"`
	CurrentPlayers []town.Player `json:"currentPlayers"`
	FriendlyName   string        `json:"friendlyName"`
	IsPublic       bool          `json:"isPubliclyListed"`
}

// JoinTown admits a player to a live town. The block list is checked before
// the player is added, so a rejected join creates no session and emits no event.
// CurrentPlayers lists everyone else in the town once the player has joined.
func (h *Handlers) JoinTown(ctx context.Context, req JoinRequest) Envelope[JoinResponse] {
	name := access.NormalizeName(req.UserName)
	if name == "" {
		return fail[JoinResponse](msgUserRequired)
	}

	c, found := h.store.ControllerForTown(req.TownID)
	if !found {
		return fail[JoinResponse](msgNoSuchTown)
	}

	err := h.policy.CheckJoin(ctx, req.TownID, name)
	switch {
	case errors.Is(err, town.ErrNoSuchTown):
		return fail[JoinResponse](msgNoSuchTown)
	case errors.Is(err, town.ErrBlocked):
		return fail[JoinResponse](fmt.Sprintf("User %s is in the block list", name))
	case err != nil:
		slog.WarnContext(ctx, "checking join access", "town", req.TownID, "error", err)
		return fail[JoinResponse](msgAccessCheckErr)
	}

	p := town.NewPlayer(name)
	s, err := c.AddPlayer(p)
	switch {
	case errors.Is(err, town.ErrNoSuchTown):
		return fail[JoinResponse](msgNoSuchTown)
	case errors.Is(err, town.ErrTownFull):
		return fail[JoinResponse](msgTownFull)
	case err != nil:
		slog.WarnContext(ctx, "adding player", "town", req.TownID, "error", err)
		return fail[JoinResponse](fmt.Sprintf("Error: %s", err))
	}

	others := []town.Player{}
	for _, other := range c.Players() {
		if other.ID != p.ID {
			others = append(others, other)
		}
	}

	slog.InfoContext(ctx, "player joined", "town", req.TownID, "player", p.ID)
	return ok(&JoinResponse{
		UserID:         p.ID,
		SessionToken:   s.Token(),
		VideoToken:     s.VideoToken(),
		CurrentPlayers: others,
		FriendlyName:   c.FriendlyName(),
		IsPublic:       c.IsPublic(),
	})
}

type CreateTownRequest struct {
	FriendlyName string `json:"friendlyName"`
	IsPublic     bool   `json:"isPubliclyListed"`
	CreatorName  string `json:"creatorName"`
}

type CreateTownResponse struct {
	TownID   string `json:"coveyTownID"`
	Password string `json:"coveyTownPassword"`
}

func (h *Handlers) CreateTown(ctx context.Context, req CreateTownRequest) Envelope[CreateTownResponse] {
	id, pw, err := h.store.CreateTown(ctx, req.FriendlyName, req.IsPublic, access.NormalizeName(req.CreatorName))
	if errors.Is(err, town.ErrInvalidName) {
		return fail[CreateTownResponse](msgNameRequired)
	}
	if err != nil {
		slog.ErrorContext(ctx, "creating town", "error", err)
		return fail[CreateTownResponse](fmt.Sprintf("Error: %s", err))
	}

	return ok(&CreateTownResponse{TownID: id, Password: pw})
}

type TownListResponse struct {
	Towns []town.Summary `json:"towns"`
}

// ListTowns reconciles the registry with the catalog and lists the public towns.
func (h *Handlers) ListTowns(ctx context.Context) Envelope[TownListResponse] {
	if err := h.store.LoadTownsFromCatalog(ctx); err != nil {
		slog.WarnContext(ctx, "reconciling towns before listing", "error", err)
	}

	towns := h.store.Towns()
	if towns == nil {
		towns = []town.Summary{}
	}
	return ok(&TownListResponse{Towns: towns})
}

type MembershipResponse struct {
	Creator  string   `json:"creator"`
	Admins   []string `json:"admins"`
	Blockers []string `json:"blockers"`
}

// TownMembership lists who created a town and who is on its admin and block lists.
func (h *Handlers) TownMembership(ctx context.Context, townID string) Envelope[MembershipResponse] {
	rec, err := h.catalog.GetTown(ctx, townID)
	if errors.Is(err, catalog.ErrNotFound) {
		return fail[MembershipResponse](msgNoSuchTown)
	}
	if err != nil {
		slog.WarnContext(ctx, "reading town membership", "town", townID, "error", err)
		return fail[MembershipResponse](msgAccessCheckErr)
	}

	return Envelope[MembershipResponse]{
		IsOK:    true,
		Message: "single town list",
		Response: &MembershipResponse{
			Creator:  rec.Creator,
			Admins:   rec.Admins,
			Blockers: rec.Blockers,
		},
	}
}

type UpdateTownRequest struct {
	TownID       string  `json:"coveyTownID"`
	Password     string  `json:"coveyTownPassword"`
	FriendlyName *string `json:"friendlyName,omitempty"`
	IsPublic     *bool   `json:"isPubliclyListed,omitempty"`
}

func (h *Handlers) UpdateTown(ctx context.Context, req UpdateTownRequest) Envelope[Empty] {
	if !h.store.UpdateTown(ctx, req.TownID, req.Password, req.FriendlyName, req.IsPublic) {
		return Envelope[Empty]{Message: msgBadTownUpdate, Response: &Empty{}}
	}
	return ok(&Empty{})
}

type DeleteTownRequest struct {
	TownID   string `json:"coveyTownID"`
	Password string `json:"coveyTownPassword"`
}

func (h *Handlers) DeleteTown(ctx context.Context, req DeleteTownRequest) Envelope[Empty] {
	if !h.store.DeleteTown(ctx, req.TownID, req.Password) {
		return Envelope[Empty]{Message: msgBadTownDelete, Response: &Empty{}}
	}
	return ok(&Empty{})
}
