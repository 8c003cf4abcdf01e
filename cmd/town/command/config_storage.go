package command

import (
	"context"
	"fmt"
	"time"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-town/internal/catalog"
	"github.com/pixil98/go-town/internal/catalog/postgres"
)

const (
	StorageDriverFile     = "file"
	StorageDriverPostgres = "postgres"

	storageConnectTimeout = 30 * time.Second
)

type StorageConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path,omitempty"`
	Dsn    string `json:"dsn,omitempty"`
}

func (c *StorageConfig) Validate() error {
	el := errors.NewErrorList()

	switch c.Driver {
	case StorageDriverFile:
		if c.Path == "" {
			el.Add(fmt.Errorf("path is required for the %s driver", StorageDriverFile))
		}
	case StorageDriverPostgres:
		if c.Dsn == "" {
			el.Add(fmt.Errorf("dsn is required for the %s driver", StorageDriverPostgres))
		}
	case "":
		el.Add(fmt.Errorf("driver is required"))
	default:
		el.Add(fmt.Errorf("unknown driver: %s", c.Driver))
	}

	return el.Err()
}

func (c *StorageConfig) buildCatalog() (catalog.Catalog, error) {
	switch c.Driver {
	case StorageDriverFile:
		return catalog.OpenFile(c.Path)
	case StorageDriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), storageConnectTimeout)
		defer cancel()
		return postgres.Open(ctx, c.Dsn)
	default:
		return nil, fmt.Errorf("unknown driver: %s", c.Driver)
	}
}
