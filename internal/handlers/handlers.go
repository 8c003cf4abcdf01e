// Package handlers implements the town service's request operations. Every
// operation reports its outcome in an Envelope and never returns a Go error:
// failures are logged and turned into a message for the caller.
package handlers

import (
	"github.com/pixil98/go-town/internal/access"
	"github.com/pixil98/go-town/internal/catalog"
	"github.com/pixil98/go-town/internal/town"
	"golang.org/x/crypto/bcrypt"
)

// Envelope wraps every response.
type Envelope[T any] struct {
	IsOK     bool   `json:"isOK"`
	Message  string `json:"message,omitempty"`
	Response *T     `json:"response,omitempty"`
}

// Empty is the response body of operations that only report success.
type Empty struct{}

func ok[T any](resp *T) Envelope[T] {
	return Envelope[T]{IsOK: true, Response: resp}
}

func okMessage[T any](msg string) Envelope[T] {
	return Envelope[T]{IsOK: true, Message: msg}
}

func fail[T any](msg string) Envelope[T] {
	return Envelope[T]{Message: msg}
}

type Handlers struct {
	store   *town.Store
	catalog catalog.Catalog
	policy  *access.Policy

	kickOnBlock bool
	hashCost    int
}

type Opt func(*Handlers)

// WithKickOnBlock disconnects connected players as soon as they are blocked.
func WithKickOnBlock(kick bool) Opt {
	return func(h *Handlers) {
		h.kickOnBlock = kick
	}
}

// WithHashCost sets the bcrypt cost for user passwords.
func WithHashCost(cost int) Opt {
	return func(h *Handlers) {
		h.hashCost = cost
	}
}

func New(store *town.Store, cat catalog.Catalog, opts ...Opt) *Handlers {
	h := &Handlers{
		store:    store,
		catalog:  cat,
		policy:   access.NewPolicy(cat),
		hashCost: bcrypt.DefaultCost,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}
