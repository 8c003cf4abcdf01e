package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-town/internal/handlers"
	"github.com/pixil98/go-town/internal/listener"
	"github.com/pixil98/go-town/internal/town"
)

const defaultHttpAddress = ":8081"

type HttpConfig struct {
	Address         string   `json:"address"`
	AllowedOrigins  []string `json:"allowed_origins"`
	ShutdownTimeout string   `json:"shutdown_timeout"`
}

func (c *HttpConfig) Validate() error {
	el := errors.NewErrorList()

	if c.ShutdownTimeout != "" {
		d, err := time.ParseDuration(c.ShutdownTimeout)
		if err != nil {
			el.Add(fmt.Errorf("parsing shutdown_timeout: %w", err))
		} else if d <= 0 {
			el.Add(fmt.Errorf("shutdown_timeout must be positive"))
		}
	}

	return el.Err()
}

func (c *HttpConfig) address() string {
	if c.Address == "" {
		return defaultHttpAddress
	}
	return c.Address
}

func (c *HttpConfig) buildListener(h *handlers.Handlers, store *town.Store) (*listener.HttpListener, error) {
	var opts []listener.HttpListenerOpt
	if c.ShutdownTimeout != "" {
		d, err := time.ParseDuration(c.ShutdownTimeout)
		if err != nil {
			return nil, fmt.Errorf("parsing shutdown_timeout: %w", err)
		}
		opts = append(opts, listener.WithShutdownTimeout(d))
	}

	ws := listener.NewSubscriptionHandler(store, func(origin string) bool {
		return listener.AllowsOrigin(c.AllowedOrigins, origin)
	})
	router := listener.NewRouter(h, ws, c.AllowedOrigins)

	return listener.NewHttpListener(c.address(), router, opts...), nil
}
