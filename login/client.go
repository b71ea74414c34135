package login

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StashStore loads and saves the stash tree as a whole. Load returns
// (nil, nil) when nothing has been saved yet.
type StashStore interface {
	Load(ctx context.Context) (*LoginStash, error)
	Save(ctx context.Context, stash *LoginStash) error
}

// EventKind names a change reported to a Notifier.
type EventKind string

const (
	EventKitApplied EventKind = "kitApplied"
	EventLoggedIn   EventKind = "loggedIn"
	EventCreated    EventKind = "created"
)

// Event describes a committed change to one login.
type Event struct {
	Kind    EventKind `json:"kind"`
	LoginID string    `json:"loginId"`
	At      time.Time `json:"at"`
}

// Notifier is told about every committed change. Failures are logged and
// never undo the change.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Client ties the server, the stash and the notifier together.
type Client struct {
	fetcher  Fetcher
	stashes  StashStore
	notifier Notifier
	now      func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithNotifier reports committed changes to n.
func WithNotifier(n Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithClock overrides the wall clock used for lastLogin and OTP codes.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a new client
func NewClient(fetcher Fetcher, stashes StashStore, opts ...Option) *Client {
	c := &Client{
		fetcher: fetcher,
		stashes: stashes,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stashes returns the stash store backing this client.
func (c *Client) Stashes() StashStore {
	return c.stashes
}

func (c *Client) notify(ctx context.Context, kind EventKind, loginID string) {
	if c.notifier == nil {
		return
	}
	ev := Event{Kind: kind, LoginID: loginID, At: c.now().UTC()}
	if err := c.notifier.Notify(ctx, ev); err != nil {
		log.Warn().Err(err).
			Str("login_id", loginID).
			Str("kind", string(kind)).
			Msg("Failed to publish login event")
	}
}
