package nats

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Options controls how a prediction client or worker connects to NATS.
type Options struct {
	Name           string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
	// WaitForServer keeps retrying an unreachable server in the background
	// instead of failing the connect call. Workers set it; the API does not.
	WaitForServer bool
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "pneumonia-classifier"
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 2 * time.Second
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = 2 * time.Second
	}
	if o.MaxReconnects == 0 {
		o.MaxReconnects = 60
	}
	return o
}

func Connect(url string, options Options) (*nats.Conn, error) {
	o := options.withDefaults()
	conn, err := nats.Connect(url,
		nats.Name(o.Name),
		nats.Timeout(o.ConnectTimeout),
		nats.ReconnectWait(o.ReconnectWait),
		nats.MaxReconnects(o.MaxReconnects),
		nats.RetryOnFailedConnect(o.WaitForServer),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "name", o.Name, "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "name", o.Name, "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error("nats_async_error", "name", o.Name, "subject", subject, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return conn, nil
}
