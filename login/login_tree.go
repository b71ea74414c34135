package login

import (
	"fmt"

	"github.com/mesmerverse/vettid-dev/loginkit/box"
)

// MakeLoginTree decrypts the stash subtree rooted at stash, given its master
// key. Each child's key is unwrapped from its parentBox.
func MakeLoginTree(stash *LoginStash, loginKey []byte) (*LoginTree, error) {
	tree := &LoginTree{
		LoginID:  stash.LoginID,
		AppID:    stash.AppID,
		Username: stash.Username,
		LoginKey: loginKey,
		Pin2Key:  box.Clone(stash.Pin2Key),
	}

	if stash.LoginAuthBox != nil {
		loginAuth, err := box.Decrypt(stash.LoginAuthBox, loginKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt loginAuthBox for %s: %w", stash.LoginID, err)
		}
		tree.LoginAuth = loginAuth
	}

	if stash.Pin2TextBox != nil {
		pin, err := box.Decrypt(stash.Pin2TextBox, loginKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt pin2TextBox for %s: %w", stash.LoginID, err)
		}
		tree.Pin = string(pin)
	}

	for _, child := range stash.Children {
		if child.ParentBox == nil {
			return nil, fmt.Errorf("%w: login %s has no parentBox", ErrMissingData, child.LoginID)
		}
		childKey, err := box.Decrypt(child.ParentBox, loginKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt parentBox for %s: %w", child.LoginID, err)
		}
		childTree, err := MakeLoginTree(child, childKey)
		if err != nil {
			return nil, err
		}
		if childTree.Username == "" {
			childTree.Username = tree.Username
		}
		tree.Children = append(tree.Children, childTree)
	}

	return tree, nil
}
