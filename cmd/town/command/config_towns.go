package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-town/internal/driver"
)

type TownsConfig struct {
	MaxOccupancy      int    `json:"max_occupancy"`
	ReconcileInterval string `json:"reconcile_interval"`
	KickOnBlock       bool   `json:"kick_on_block"`
}

func (c *TownsConfig) Validate() error {
	el := errors.NewErrorList()

	if c.MaxOccupancy < 0 {
		el.Add(fmt.Errorf("max_occupancy must not be negative"))
	}
	if c.ReconcileInterval != "" {
		d, err := time.ParseDuration(c.ReconcileInterval)
		if err != nil {
			el.Add(fmt.Errorf("parsing reconcile_interval: %w", err))
		} else if d < time.Second {
			el.Add(fmt.Errorf("reconcile_interval must be at least 1 second"))
		}
	}

	return el.Err()
}

func (c *TownsConfig) driverOpts() ([]driver.TownDriverOpt, error) {
	if c.ReconcileInterval == "" {
		return nil, nil
	}

	d, err := time.ParseDuration(c.ReconcileInterval)
	if err != nil {
		return nil, fmt.Errorf("parsing reconcile_interval: %w", err)
	}
	return []driver.TownDriverOpt{driver.WithTickLength(d)}, nil
}
