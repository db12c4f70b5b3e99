package backend

import (
	"errors"
	"fmt"
	"strings"

	"budgetchat/internal/config"
)

var errNilConfig = errors.New("backend: nil application config")

// FromAppConfig picks the storage and publisher settings out of the
// application config.
func FromAppConfig(app *config.Config) (Config, error) {
	if app == nil {
		return Config{}, errNilConfig
	}
	c := Config{
		Type:         Type(strings.ToLower(strings.TrimSpace(app.DataBackend))),
		SQLiteDBPath: app.SQLiteDBPath,
	}
	if app.AMQPEnabled() {
		c.AMQPURL = app.AMQPURL
		c.AMQPExchange = app.AMQPExchange
		c.AMQPQueue = app.AMQPQueue
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var errs []error
	if !c.Type.IsValid() {
		errs = append(errs, fmt.Errorf("unknown backend type %q (want %q or %q)", c.Type, Memory, SQLite))
	}
	if c.Type == SQLite && strings.TrimSpace(c.SQLiteDBPath) == "" {
		errs = append(errs, errors.New("sqlite backend needs a database path"))
	}
	if c.AMQPURL != "" {
		if c.AMQPExchange == "" {
			errs = append(errs, errors.New("AMQP exchange is required when a broker URL is set"))
		}
		if c.AMQPQueue == "" {
			errs = append(errs, errors.New("AMQP queue is required when a broker URL is set"))
		}
	}
	return errors.Join(errs...)
}
