package command

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-town/internal/media"
)

const ephemeralKeyBytes = 32

type MediaConfig struct {
	SigningKey     string `json:"signing_key,omitempty"`
	SigningKeyPath string `json:"signing_key_path,omitempty"`
	Ttl            string `json:"ttl,omitempty"`
	Issuer         string `json:"issuer,omitempty"`
}

func (c *MediaConfig) Validate() error {
	el := errors.NewErrorList()

	if c.SigningKey != "" && c.SigningKeyPath != "" {
		el.Add(fmt.Errorf("only one of signing_key and signing_key_path may be set"))
	}
	if c.Ttl != "" {
		d, err := time.ParseDuration(c.Ttl)
		if err != nil {
			el.Add(fmt.Errorf("parsing ttl: %w", err))
		} else if d <= 0 {
			el.Add(fmt.Errorf("ttl must be positive"))
		}
	}

	return el.Err()
}

func (c *MediaConfig) buildIssuer() (*media.Issuer, error) {
	key, err := c.loadOrGenerateKey()
	if err != nil {
		return nil, fmt.Errorf("setting up signing key: %w", err)
	}

	var opts []media.IssuerOpt
	if c.Ttl != "" {
		d, err := time.ParseDuration(c.Ttl)
		if err != nil {
			return nil, fmt.Errorf("parsing ttl: %w", err)
		}
		opts = append(opts, media.WithTTL(d))
	}
	if c.Issuer != "" {
		opts = append(opts, media.WithIssuerName(c.Issuer))
	}

	return media.NewIssuer(key, opts...)
}

func (c *MediaConfig) loadOrGenerateKey() ([]byte, error) {
	if c.SigningKey != "" {
		return []byte(c.SigningKey), nil
	}

	if c.SigningKeyPath != "" {
		b, err := os.ReadFile(c.SigningKeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading signing key %q: %w", c.SigningKeyPath, err)
		}
		key := strings.TrimSpace(string(b))
		if key == "" {
			return nil, fmt.Errorf("signing key %q is empty", c.SigningKeyPath)
		}
		return []byte(key), nil
	}

	slog.Warn("no media signing key configured, generating ephemeral key")
	key := make([]byte, ephemeralKeyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating ephemeral key: %w", err)
	}
	return key, nil
}
