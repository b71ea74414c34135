// Package pin2 implements PIN login for a login tree.
//
// A device that enables PIN login keeps a random pin2Key per login. The
// server stores the login's master key wrapped under that key and releases
// it to anyone who can present pin2Auth, a MAC of the PIN under the same key.
package pin2

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mesmerverse/vettid-dev/loginkit/box"
	"github.com/mesmerverse/vettid-dev/loginkit/login"
)

// Path is the server resource holding a login's PIN credential.
const Path = "/v2/login/pin2"

// Body is the data sent to Path. Enabling fills every field; disabling sends
// only Pin2TextBox.
type Body struct {
	Pin2ID      []byte   `json:"pin2Id,omitempty"`
	Pin2Auth    []byte   `json:"pin2Auth,omitempty"`
	Pin2Box     *box.Box `json:"pin2Box,omitempty"`
	Pin2KeyBox  *box.Box `json:"pin2KeyBox,omitempty"`
	Pin2TextBox *box.Box `json:"pin2TextBox,omitempty"`
}

// FindStash returns the stash node holding the PIN credential for appID: the
// root if it has one, else the first descendant (pre-order) for appID that
// has one. It returns nil when PIN login is not enabled on this device.
func FindStash(stashTree *login.LoginStash, appID string) *login.LoginStash {
	if stashTree == nil {
		return nil
	}
	if len(stashTree.Pin2Key) > 0 {
		return stashTree
	}
	node, ok := login.Search(stashTree, func(s *login.LoginStash) bool {
		return s.AppID == appID && len(s.Pin2Key) > 0
	})
	if !ok {
		return nil
	}
	return node
}

// MakeID derives the server lookup handle for username.
func MakeID(key []byte, username string) []byte {
	return box.HMACSHA256([]byte(login.NormalizeUsername(username)), key)
}

// MakeAuth derives the proof of knowledge of pin.
func MakeAuth(key []byte, pin string) []byte {
	return box.HMACSHA256([]byte(pin), key)
}

// Login recovers the login tree for appID using a PIN. An empty username
// falls back to the one saved with the stash root.
func Login(ctx context.Context, c *login.Client, stashTree *login.LoginStash, appID, username, pin string, opts login.LoginOptions) (*login.LoginTree, error) {
	node := FindStash(stashTree, appID)
	if node == nil {
		return nil, login.ErrNotEnabled
	}
	if username == "" {
		username = stashTree.Username
	}

	pin2Key := box.Clone(node.Pin2Key)
	req := login.LoginRequest{
		Pin2ID:   MakeID(pin2Key, username),
		Pin2Auth: MakeAuth(pin2Key, pin),
	}

	return c.ServerLogin(ctx, stashTree, node, opts, req, func(reply *login.LoginReply) ([]byte, error) {
		if reply.Pin2Box == nil {
			return nil, fmt.Errorf("%w: no pin2Box", login.ErrMissingData)
		}
		loginKey, err := box.Decrypt(reply.Pin2Box, pin2Key)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt pin2Box: %w", err)
		}
		return loginKey, nil
	})
}

// Check proves pin against the server for the login in tree without changing
// the stash.
func Check(ctx context.Context, c *login.Client, tree *login.LoginTree, pin string) error {
	stashTree, err := c.Stashes().Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stash: %w", err)
	}
	if stashTree == nil {
		return login.ErrNotEnabled
	}
	_, err = Login(ctx, c, stashTree, tree.AppID, tree.Username, pin, login.LoginOptions{DryRun: true})
	return err
}

// Verify reports whether pin is the PIN of the login in tree. Every failure,
// including a disabled PIN or an unreachable server, reads as false.
func Verify(ctx context.Context, c *login.Client, tree *login.LoginTree, pin string) bool {
	if err := Check(ctx, c, tree, pin); err != nil {
		log.Debug().Err(err).Str("login_id", tree.LoginID).Msg("PIN check failed")
		return false
	}
	return true
}
