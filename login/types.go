// Package login holds the credential tree of an account and its sub-accounts,
// and the machinery that keeps the server, the on-device stash and the
// in-memory tree in step when a credential changes.
//
// Changes are described as Kits, one per tree node, and committed in order by
// Client.ApplyKits. Secrets are recovered through Client.ServerLogin, which
// exchanges a factor-specific proof for a box holding the master key.
package login

import (
	"fmt"
	"time"

	"github.com/mesmerverse/vettid-dev/loginkit/box"
)

// LoginStash is the persisted, per-device record of one login and its
// children. It never holds a master key in the clear.
type LoginStash struct {
	LoginID   string     `json:"loginId"`
	AppID     string     `json:"appId"`
	Username  string     `json:"username,omitempty"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`

	// ParentBox is this login's master key encrypted with the parent's.
	ParentBox    *box.Box `json:"parentBox,omitempty"`
	LoginAuthBox *box.Box `json:"loginAuthBox,omitempty"`

	// OTPKey is a base32 TOTP secret cached for this login.
	OTPKey string `json:"otpKey,omitempty"`

	// Pin2Key is present only when PIN login is enabled on this device.
	Pin2Key     []byte   `json:"pin2Key,omitempty"`
	Pin2TextBox *box.Box `json:"pin2TextBox,omitempty"`

	Children []*LoginStash `json:"children,omitempty"`
}

// ChildNodes implements Node.
func (s *LoginStash) ChildNodes() []*LoginStash {
	return s.Children
}

// Clone returns a deep copy of the stash subtree.
func (s *LoginStash) Clone() *LoginStash {
	if s == nil {
		return nil
	}
	out := *s
	out.Pin2Key = box.Clone(s.Pin2Key)
	if s.LastLogin != nil {
		t := *s.LastLogin
		out.LastLogin = &t
	}
	out.Children = nil
	for _, child := range s.Children {
		out.Children = append(out.Children, child.Clone())
	}
	return &out
}

// LoginTree is the decrypted, in-memory mirror of a stash subtree. It is
// valid only for the current session and is never serialized.
type LoginTree struct {
	LoginID  string
	AppID    string
	Username string

	LoginKey  []byte
	LoginAuth []byte

	Pin     string
	Pin2Key []byte

	Children []*LoginTree
}

// ChildNodes implements Node.
func (t *LoginTree) ChildNodes() []*LoginTree {
	return t.Children
}

// String describes the node without revealing any secret.
func (t *LoginTree) String() string {
	return fmt.Sprintf("LoginTree{loginId=%s appId=%q children=%d pin2=%t}",
		t.LoginID, t.AppID, len(t.Children), len(t.Pin2Key) > 0)
}
