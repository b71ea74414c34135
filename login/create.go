package login

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mesmerverse/vettid-dev/loginkit/box"
)

// CreateOptions describe a login to register.
type CreateOptions struct {
	AppID    string
	Username string
	// OTPKey is an optional base32 TOTP secret cached with the new login.
	OTPKey string
}

// CreateLogin registers a new login with a fresh master key. With a nil
// parent it becomes the root of a new stash, which must not exist yet;
// otherwise it is added below parent, whose master key wraps the new one.
func (c *Client) CreateLogin(ctx context.Context, parent *LoginTree, opts CreateOptions) (*LoginTree, error) {
	stashTree, err := c.stashes.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stash: %w", err)
	}

	var parentStash *LoginStash
	if parent == nil {
		if stashTree != nil {
			return nil, ErrStashExists
		}
	} else {
		if stashTree == nil {
			return nil, ErrStashNotFound
		}
		var ok bool
		if parentStash, ok = FindStash(stashTree, parent.LoginID); !ok {
			return nil, fmt.Errorf("%w in stash: %s", ErrLoginNotFound, parent.LoginID)
		}
	}

	loginKey, err := box.RandomKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate login key: %w", err)
	}
	loginAuth, err := box.RandomKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate login auth: %w", err)
	}
	loginAuthBox, err := box.Encrypt(loginAuth, loginKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt login auth: %w", err)
	}

	req := CreateRequest{
		AppID:        opts.AppID,
		LoginAuth:    loginAuth,
		LoginAuthBox: loginAuthBox,
		OTPKey:       opts.OTPKey,
	}
	if parent != nil {
		parentBox, err := box.Encrypt(loginKey, parent.LoginKey)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt parent box: %w", err)
		}
		req.ParentID = parent.LoginID
		req.ParentAuth = parent.LoginAuth
		req.ParentBox = parentBox
	}

	raw, err := c.fetcher.Fetch(ctx, http.MethodPost, PathCreate, req)
	if err != nil {
		return nil, err
	}
	var reply CreateReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("failed to parse create reply: %w", err)
	}
	if reply.LoginID == "" {
		return nil, fmt.Errorf("%w: create reply has no loginId", ErrMissingData)
	}

	node := &LoginStash{
		LoginID:      reply.LoginID,
		AppID:        opts.AppID,
		ParentBox:    req.ParentBox,
		LoginAuthBox: loginAuthBox,
		OTPKey:       opts.OTPKey,
	}
	if parent == nil {
		node.Username = opts.Username
		stashTree = node
	} else {
		parentStash.Children = append(parentStash.Children, node)
	}
	if err := c.stashes.Save(ctx, stashTree); err != nil {
		return nil, fmt.Errorf("failed to save stash: %w", err)
	}

	tree := &LoginTree{
		LoginID:   reply.LoginID,
		AppID:     opts.AppID,
		Username:  opts.Username,
		LoginKey:  loginKey,
		LoginAuth: loginAuth,
	}
	if parent != nil {
		if tree.Username == "" {
			tree.Username = parent.Username
		}
		parent.Children = append(parent.Children, tree)
	}

	log.Info().
		Str("login_id", tree.LoginID).
		Str("app_id", tree.AppID).
		Bool("root", parent == nil).
		Msg("Login created")

	c.notify(ctx, EventCreated, tree.LoginID)
	return tree, nil
}
