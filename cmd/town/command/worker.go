package command

import (
	"context"
	"fmt"
	"io"

	"github.com/pixil98/go-service"

	"github.com/pixil98/go-town/internal/driver"
	"github.com/pixil98/go-town/internal/handlers"
	"github.com/pixil98/go-town/internal/messaging"
	"github.com/pixil98/go-town/internal/town"
)

func BuildWorkers(config interface{}) (service.WorkerList, error) {
	cfg, ok := config.(*Config)
	if !ok {
		return nil, fmt.Errorf("unable to cast config")
	}

	workers := service.WorkerList{}

	// Open the durable catalog
	cat, err := cfg.Storage.buildCatalog()
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	workers["catalog"] = &catalogCloser{closer: cat}

	issuer, err := cfg.Media.buildIssuer()
	if err != nil {
		return nil, fmt.Errorf("creating media issuer: %w", err)
	}

	storeOpts := []town.StoreOpt{town.WithIssuer(issuer)}
	if cfg.Towns.MaxOccupancy > 0 {
		storeOpts = append(storeOpts, town.WithDefaultCapacity(cfg.Towns.MaxOccupancy))
	}

	// Mirror every town's events onto the embedded broker
	if cfg.Nats.Enabled {
		ns, err := cfg.Nats.buildNatsServer()
		if err != nil {
			return nil, fmt.Errorf("creating nats server: %w", err)
		}
		storeOpts = append(storeOpts, town.WithListenerFactory(messaging.MirrorFactory(ns)))
		workers["nats"] = ns
	}

	store := town.NewStore(cat, storeOpts...)
	if err := store.LoadTownsFromCatalog(context.Background()); err != nil {
		return nil, fmt.Errorf("loading towns: %w", err)
	}

	h := handlers.New(store, cat,
		handlers.WithKickOnBlock(cfg.Towns.KickOnBlock),
	)

	httpListener, err := cfg.Http.buildListener(h, store)
	if err != nil {
		return nil, fmt.Errorf("creating http listener: %w", err)
	}
	workers["http"] = httpListener

	// Setup the town driver
	driverOpts, err := cfg.Towns.driverOpts()
	if err != nil {
		return nil, err
	}
	workers["driver"] = driver.NewTownDriver([]driver.Manager{store}, driverOpts...)

	return workers, nil
}

// catalogCloser releases the catalog once the app shuts down.
type catalogCloser struct {
	closer io.Closer
}

func (c *catalogCloser) Start(ctx context.Context) error {
	<-ctx.Done()
	return c.closer.Close()
}
