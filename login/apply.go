package login

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ApplyKits commits kits one at a time, in order. For each kit the server
// request is sent first; only when it succeeds are the stash and tree patches
// merged and the stash saved.
//
// The first failure stops the sequence and is returned as a *KitError.
// Kits applied before it are not rolled back, so after a failure the server,
// stash and tree agree for the committed prefix only.
func (c *Client) ApplyKits(ctx context.Context, tree *LoginTree, kits []Kit) error {
	for i, kit := range kits {
		if err := c.applyKit(ctx, tree, kit); err != nil {
			log.Warn().Err(err).
				Int("kit", i).
				Int("kits", len(kits)).
				Str("login_id", kit.LoginID).
				Msg("Kit application stopped")
			return &KitError{Index: i, LoginID: kit.LoginID, Err: err}
		}
		log.Debug().
			Int("kit", i).
			Str("login_id", kit.LoginID).
			Str("path", kit.Request.ServerPath()).
			Msg("Kit applied")
	}
	return nil
}

func (c *Client) applyKit(ctx context.Context, tree *LoginTree, kit Kit) error {
	node, ok := FindLogin(tree, kit.LoginID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrLoginNotFound, kit.LoginID)
	}

	envelope := AuthEnvelope{
		LoginID:   node.LoginID,
		LoginAuth: node.LoginAuth,
	}

	switch req := kit.Request.(type) {
	case UpsertRequest:
		envelope.Data = req.Body
	case DeleteRequest:
	default:
		return fmt.Errorf("unsupported server request %T", kit.Request)
	}

	if _, err := c.fetcher.Fetch(ctx, kit.Request.Method(), kit.Request.ServerPath(), envelope); err != nil {
		return err
	}

	stashTree, err := c.stashes.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stash: %w", err)
	}
	if stashTree == nil {
		return ErrStashNotFound
	}
	stashNode, ok := FindStash(stashTree, kit.LoginID)
	if !ok {
		return fmt.Errorf("%w in stash: %s", ErrLoginNotFound, kit.LoginID)
	}
	stashNode.Apply(kit.Stash)
	if err := c.stashes.Save(ctx, stashTree); err != nil {
		return fmt.Errorf("failed to save stash: %w", err)
	}

	node.Apply(kit.Tree)
	c.notify(ctx, EventKitApplied, kit.LoginID)
	return nil
}
