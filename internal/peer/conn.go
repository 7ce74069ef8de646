// Package peer exchanges remote-host subscriptions and remote data with
// other bus nodes over NATS.
package peer

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Config configures the NATS connection backing peer forwarding.
type Config struct {
	URL             string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectJitter time.Duration
	PingInterval    time.Duration
	MaxPingsOut     int
}

// Conn wraps a NATS connection with the logging conventions the rest of
// the bus uses.
type Conn struct {
	nc     *nats.Conn
	logger zerolog.Logger
}

// Connect dials NATS with reconnect/ping options and structured
// connection-lifecycle logging.
func Connect(cfg Config, logger zerolog.Logger) (*Conn, error) {
	c := &Conn{logger: logger}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(cfg.ReconnectJitter, cfg.ReconnectJitter),
		nats.PingInterval(cfg.PingInterval),
		nats.MaxPingsOutstanding(cfg.MaxPingsOut),
		nats.ConnectHandler(c.onConnect),
		nats.DisconnectErrHandler(c.onDisconnect),
		nats.ReconnectHandler(c.onReconnect),
		nats.ErrorHandler(c.onError),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("peer: connect to nats at %s: %w", cfg.URL, err)
	}
	c.nc = nc
	return c, nil
}

func (c *Conn) onConnect(nc *nats.Conn) {
	c.logger.Info().Str("url", nc.ConnectedUrl()).Msg("peer: connected to nats")
}

func (c *Conn) onDisconnect(nc *nats.Conn, err error) {
	if err != nil {
		c.logger.Warn().Err(err).Msg("peer: disconnected from nats")
		return
	}
	c.logger.Info().Msg("peer: disconnected from nats")
}

func (c *Conn) onReconnect(nc *nats.Conn) {
	c.logger.Info().Str("url", nc.ConnectedUrl()).Msg("peer: reconnected to nats")
}

func (c *Conn) onError(nc *nats.Conn, sub *nats.Subscription, err error) {
	subject := ""
	if sub != nil {
		subject = sub.Subject
	}
	c.logger.Error().Err(err).Str("subject", subject).Msg("peer: nats error")
}

// Close drains and closes the underlying connection.
func (c *Conn) Close() {
	c.nc.Close()
}
