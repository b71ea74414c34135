package login

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// LoginOptions tune a single ServerLogin call.
type LoginOptions struct {
	// OTP overrides the code computed from the stash's cached OTP key.
	OTP string
	// Now, when set, is recorded as lastLogin instead of the client clock.
	Now time.Time
	// DryRun proves the factor without saving the stash or notifying.
	DryRun bool
}

// DecryptFunc recovers the master key from a successful login reply.
type DecryptFunc func(reply *LoginReply) ([]byte, error)

// ServerLogin sends req (plus a cached OTP code, if any) to the server and
// hands the reply to decrypt to recover the master key of node. The reply is
// merged into the stash, which is saved before the decrypted tree rooted at
// node is returned.
//
// node must belong to stashTree; stashTree is what gets saved.
func (c *Client) ServerLogin(ctx context.Context, stashTree, node *LoginStash, opts LoginOptions, req LoginRequest, decrypt DecryptFunc) (*LoginTree, error) {
	now := c.now()
	if req.OTP == "" {
		otp, err := StashOTP(node, opts.OTP, now)
		if err != nil {
			return nil, err
		}
		req.OTP = otp
	}

	raw, err := c.fetcher.Fetch(ctx, http.MethodPost, PathLogin, req)
	if err != nil {
		return nil, err
	}

	var reply LoginReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("failed to parse login reply: %w", err)
	}

	loginKey, err := decrypt(&reply)
	if err != nil {
		return nil, err
	}

	if opts.DryRun {
		tree, err := MakeLoginTree(mergedCopy(node, &reply), loginKey)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("login_id", node.LoginID).Msg("Dry-run login successful")
		return tree, nil
	}

	applyLoginReply(node, &reply)
	lastLogin := now.UTC()
	if !opts.Now.IsZero() {
		lastLogin = opts.Now.UTC()
	}
	node.LastLogin = &lastLogin

	if err := c.stashes.Save(ctx, stashTree); err != nil {
		return nil, fmt.Errorf("failed to save stash: %w", err)
	}

	tree, err := MakeLoginTree(node, loginKey)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("login_id", node.LoginID).
		Str("app_id", node.AppID).
		Int("children", len(tree.Children)).
		Msg("Login successful")

	c.notify(ctx, EventLoggedIn, node.LoginID)
	return tree, nil
}

func mergedCopy(node *LoginStash, reply *LoginReply) *LoginStash {
	clone := node.Clone()
	applyLoginReply(clone, reply)
	return clone
}

// applyLoginReply merges the server's view into the stash node. Device-local
// fields (credential keys, OTP secret, username) are kept, matched to
// children by login id.
func applyLoginReply(stash *LoginStash, reply *LoginReply) {
	if reply.AppID != "" {
		stash.AppID = reply.AppID
	}
	if reply.ParentBox != nil {
		stash.ParentBox = reply.ParentBox
	}
	if reply.LoginAuthBox != nil {
		stash.LoginAuthBox = reply.LoginAuthBox
	}
	if reply.Pin2TextBox != nil {
		stash.Pin2TextBox = reply.Pin2TextBox
	}
	if reply.Children == nil {
		return
	}

	existing := make(map[string]*LoginStash, len(stash.Children))
	for _, child := range stash.Children {
		existing[child.LoginID] = child
	}

	children := make([]*LoginStash, 0, len(reply.Children))
	for _, childReply := range reply.Children {
		child, ok := existing[childReply.LoginID]
		if !ok {
			child = &LoginStash{LoginID: childReply.LoginID}
		}
		applyLoginReply(child, childReply)
		children = append(children, child)
	}
	stash.Children = children
}
