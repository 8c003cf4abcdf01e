// Package driver runs periodic upkeep for the town service.
package driver

import (
	"context"
	"log/slog"
	"time"

	"github.com/pixil98/go-errors"
)

const (
	DefaultTickLength = time.Second * 30
)

// Manager is anything that needs periodic upkeep, such as reconciling the
// live town registry with the catalog.
type Manager interface {
	Tick(context.Context) error
}

type TownDriver struct {
	tickLength time.Duration
	managers   []Manager
}

func NewTownDriver(managers []Manager, opts ...TownDriverOpt) *TownDriver {
	d := &TownDriver{
		tickLength: DefaultTickLength,
		managers:   managers,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *TownDriver) Start(ctx context.Context) error {
	ticker := time.NewTicker(d.tickLength)
	defer ticker.Stop()

	slog.InfoContext(ctx, "town driver started", "tick", d.tickLength)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := d.Tick(ctx)
			if err != nil {
				return err
			}
		}
	}
}

// Tick runs every manager once, even if an earlier one fails.
func (d *TownDriver) Tick(ctx context.Context) error {
	el := errors.NewErrorList()
	for _, m := range d.managers {
		el.Add(m.Tick(ctx))
	}
	return el.Err()
}
