package command

import (
	"fmt"

	"github.com/pixil98/go-errors"
)

type Config struct {
	Http    HttpConfig    `json:"http"`
	Storage StorageConfig `json:"storage"`
	Nats    NatsConfig    `json:"nats"`
	Media   MediaConfig   `json:"media"`
	Towns   TownsConfig   `json:"towns"`
}

func (c *Config) Validate() error {
	el := errors.NewErrorList()

	el.Add(prefix("http", c.Http.Validate()))
	el.Add(prefix("storage", c.Storage.Validate()))
	el.Add(prefix("nats", c.Nats.Validate()))
	el.Add(prefix("media", c.Media.Validate()))
	el.Add(prefix("towns", c.Towns.Validate()))

	return el.Err()
}

func prefix(section string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", section, err)
}
