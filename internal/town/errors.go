package town

import "errors"

var (
	ErrNoSuchTown         = errors.New("no such town")
	ErrBlocked            = errors.New("user is in the block list")
	ErrInvalidCredential  = errors.New("invalid town credential")
	ErrInvalidName        = errors.New("name must be specified")
	ErrUnknownSession     = errors.New("unknown session")
	ErrTownFull           = errors.New("town is at maximum occupancy")
	ErrPlayerExists       = errors.New("player already exists")
	ErrPlayerNotFound     = errors.New("player not found")
	ErrNotAuthorized      = errors.New("not authorized")
	ErrSubscriptionClosed = errors.New("subscription closed")
)
