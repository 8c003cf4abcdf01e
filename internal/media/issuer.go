// Package media issues the signed credentials players present to a town's
// companion audio/video service.
package media

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultTTL    = 4 * time.Hour
	DefaultIssuer = "go-town"
)

// Claims identify one player in one town. The subject is the player id and the
// audience is the town id.
type Claims struct {
	jwt.RegisteredClaims
}

func (c *Claims) PlayerID() string {
	return c.Subject
}

func (c *Claims) TownID() string {
	if len(c.Audience) == 0 {
		return ""
	}
	return c.Audience[0]
}

// Issuer signs HS256 media credentials.
type Issuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

type IssuerOpt func(*Issuer)

func WithTTL(ttl time.Duration) IssuerOpt {
	return func(i *Issuer) {
		i.ttl = ttl
	}
}

func WithIssuerName(name string) IssuerOpt {
	return func(i *Issuer) {
		i.issuer = name
	}
}

func withClock(now func() time.Time) IssuerOpt {
	return func(i *Issuer) {
		i.now = now
	}
}

func NewIssuer(key []byte, opts ...IssuerOpt) (*Issuer, error) {
	if len(key) == 0 {
		return nil, errors.New("signing key is required")
	}

	i := &Issuer{
		key:    key,
		issuer: DefaultIssuer,
		ttl:    DefaultTTL,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(i)
	}

	return i, nil
}

// IssueCredential satisfies town.CredentialIssuer.
func (i *Issuer) IssueCredential(townID, playerID string) (string, error) {
	now := i.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			Subject:   playerID,
			Audience:  jwt.ClaimStrings{townID},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("signing media credential: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, issuer, audience and lifetime of a credential
// issued for townID.
func (i *Issuer) Verify(token, townID string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) {
			return i.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(townID),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parsing media credential: %w", err)
	}
	return claims, nil
}
