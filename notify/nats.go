// Package notify publishes login events so other devices and services can
// react when a credential changes.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mesmerverse/vettid-dev/loginkit/login"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "loginkit.events"

// Config holds NATS connection settings.
type Config struct {
	URL             string `yaml:"url"`
	Prefix          string `yaml:"prefix"`
	CredentialsFile string `yaml:"credentials_file"`
	ReconnectWait   int    `yaml:"reconnect_wait_ms"`
	MaxReconnects   int    `yaml:"max_reconnects"`
}

// Publisher is the part of a NATS connection the notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier is a login.Notifier publishing each event as JSON on
// <prefix>.<loginId>.<kind>.
type NATSNotifier struct {
	pub    Publisher
	conn   *nats.Conn
	prefix string
}

var _ login.Notifier = (*NATSNotifier)(nil)

// NewNATSNotifier publishes through pub. An empty prefix selects
// DefaultPrefix.
func NewNATSNotifier(pub Publisher, prefix string) *NATSNotifier {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &NATSNotifier{pub: pub, prefix: prefix}
}

// Connect dials NATS and returns a notifier owning the connection.
func Connect(cfg Config) (*NATSNotifier, error) {
	conn, err := nats.Connect(cfg.URL, connectOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	n := NewNATSNotifier(conn, cfg.Prefix)
	n.conn = conn
	return n, nil
}

func connectOptions(cfg Config) []nats.Option {
	wait := time.Duration(cfg.ReconnectWait) * time.Millisecond
	if wait <= 0 {
		wait = 2 * time.Second
	}
	opts := []nats.Option{
		nats.Name("loginkit"),
		nats.ReconnectWait(wait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info().Msg("NATS connection closed")
		}),
	}
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err == nil {
			opts = append(opts, nats.UserCredentials(cfg.CredentialsFile))
		} else {
			log.Warn().Str("path", cfg.CredentialsFile).Msg("NATS credentials file not found, connecting without it")
		}
	}
	return opts
}

// Subject returns the subject an event is published on.
func (n *NATSNotifier) Subject(ev login.Event) string {
	return n.prefix + "." + token(ev.LoginID) + "." + token(string(ev.Kind))
}

// Notify implements login.Notifier. NATS publishes are fire-and-forget, so
// ctx is only checked before sending.
func (n *NATSNotifier) Notify(ctx context.Context, ev login.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subject := n.Subject(ev)
	if err := n.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	log.Debug().Str("subject", subject).Msg("Published login event")
	return nil
}

// Watch delivers events published under the notifier's prefix until ctx is
// done. It needs a notifier created by Connect.
func (n *NATSNotifier) Watch(ctx context.Context, events chan<- login.Event) error {
	if n.conn == nil {
		return fmt.Errorf("watch needs a NATS connection")
	}
	sub, err := n.conn.Subscribe(n.prefix+".>", func(msg *nats.Msg) {
		ev, err := DecodeEvent(msg.Data)
		if err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("Dropping malformed login event")
			return
		}
		select {
		case events <- ev:
		default:
			log.Warn().Str("subject", msg.Subject).Msg("Event channel full, dropping event")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	log.Debug().Str("subject", sub.Subject).Msg("Subscribed to NATS")
	<-ctx.Done()
	return nil
}

// Close closes the connection opened by Connect.
func (n *NATSNotifier) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

// DecodeEvent parses an event payload.
func DecodeEvent(data []byte) (login.Event, error) {
	var ev login.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return login.Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if ev.LoginID == "" || ev.Kind == "" {
		return login.Event{}, fmt.Errorf("event is missing loginId or kind")
	}
	return ev, nil
}

// token makes s safe as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, login.Event) error { return nil }
