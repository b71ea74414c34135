package pin2

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mesmerverse/vettid-dev/loginkit/box"
	"github.com/mesmerverse/vettid-dev/loginkit/login"
)

// MakeChangeKits builds one kit per login in tree, root first, that sets the
// cached PIN to pin and turns PIN login on or off. Enabling reuses a node's
// existing pin2Key or generates a fresh one.
func MakeChangeKits(tree *login.LoginTree, username, pin string, enable bool) ([]login.Kit, error) {
	return login.CollectKits(tree, func(node *login.LoginTree) (login.Kit, error) {
		return makeChangeKit(node, username, pin, enable)
	})
}

func makeChangeKit(node *login.LoginTree, username, pin string, enable bool) (login.Kit, error) {
	if username == "" {
		username = node.Username
	}

	pin2TextBox, err := box.Encrypt([]byte(pin), node.LoginKey)
	if err != nil {
		return login.Kit{}, fmt.Errorf("failed to encrypt pin2TextBox: %w", err)
	}

	if !enable {
		return login.Kit{
			LoginID: node.LoginID,
			Request: login.UpsertRequest{Path: Path, Body: Body{Pin2TextBox: pin2TextBox}},
			Stash: login.StashPatch{
				Pin2Key:     login.Clear[[]byte](),
				Pin2TextBox: login.Set(pin2TextBox),
			},
			Tree: login.TreePatch{
				Pin2Key: login.Clear[[]byte](),
				Pin:     login.Set(pin),
			},
		}, nil
	}

	pin2Key := box.Clone(node.Pin2Key)
	if len(pin2Key) == 0 {
		if pin2Key, err = box.RandomKey(); err != nil {
			return login.Kit{}, fmt.Errorf("failed to generate pin2Key: %w", err)
		}
	}

	pin2Box, err := box.Encrypt(node.LoginKey, pin2Key)
	if err != nil {
		return login.Kit{}, fmt.Errorf("failed to encrypt pin2Box: %w", err)
	}
	pin2KeyBox, err := box.Encrypt(pin2Key, node.LoginKey)
	if err != nil {
		return login.Kit{}, fmt.Errorf("failed to encrypt pin2KeyBox: %w", err)
	}

	body := Body{
		Pin2ID:      MakeID(pin2Key, username),
		Pin2Auth:    MakeAuth(pin2Key, pin),
		Pin2Box:     pin2Box,
		Pin2KeyBox:  pin2KeyBox,
		Pin2TextBox: pin2TextBox,
	}

	return login.Kit{
		LoginID: node.LoginID,
		Request: login.UpsertRequest{Path: Path, Body: body},
		Stash: login.StashPatch{
			Pin2Key:     login.Set(pin2Key),
			Pin2TextBox: login.Set(pin2TextBox),
		},
		Tree: login.TreePatch{
			Pin2Key: login.Set(pin2Key),
			Pin:     login.Set(pin),
		},
	}, nil
}

// MakeDeleteKits builds one kit per login in tree, root first, that removes
// the PIN credential from the server and forgets the local pin2Key. It is
// safe on logins that never had PIN login enabled.
func MakeDeleteKits(tree *login.LoginTree) []login.Kit {
	kits, _ := login.CollectKits(tree, func(node *login.LoginTree) (login.Kit, error) {
		return login.Kit{
			LoginID: node.LoginID,
			Request: login.DeleteRequest{Path: Path},
			Stash:   login.StashPatch{Pin2Key: login.Clear[[]byte]()},
			Tree:    login.TreePatch{Pin2Key: login.Clear[[]byte]()},
		}, nil
	})
	return kits
}

// ChangeState is what is currently known about a login's PIN.
type ChangeState struct {
	Enabled bool
	Pin     string
}

// StateOf reads the PIN state of a tree node.
func StateOf(tree *login.LoginTree) ChangeState {
	return ChangeState{Enabled: len(tree.Pin2Key) > 0, Pin: tree.Pin}
}

// Change is a resolved PIN change. Delete means no PIN is known and PIN
// login is to be turned off, so the credential is removed entirely.
type Change struct {
	Pin    string
	Enable bool
	Delete bool
}

// ResolveChange fills in what the caller left unspecified. Enable defaults to
// true when PIN login is already on, or when a PIN is supplied and none was
// known. Pin defaults to the known PIN.
func ResolveChange(state ChangeState, pin *string, enable *bool) (Change, error) {
	resolvedEnable := state.Enabled || (pin != nil && *pin != "" && state.Pin == "")
	if enable != nil {
		resolvedEnable = *enable
	}
	resolvedPin := state.Pin
	if pin != nil {
		resolvedPin = *pin
	}

	if resolvedPin == "" {
		if resolvedEnable {
			return Change{}, login.ErrPinRequiredToEnable
		}
		return Change{Delete: true}, nil
	}
	return Change{Pin: resolvedPin, Enable: resolvedEnable}, nil
}

// ChangeOptions leave a field nil to keep or infer it.
type ChangeOptions struct {
	Pin    *string
	Enable *bool
}

// ChangePin sets, enables or disables the PIN for tree and every login below
// it.
func ChangePin(ctx context.Context, c *login.Client, tree *login.LoginTree, username string, opts ChangeOptions) error {
	change, err := ResolveChange(StateOf(tree), opts.Pin, opts.Enable)
	if err != nil {
		return err
	}

	var kits []login.Kit
	if change.Delete {
		kits = MakeDeleteKits(tree)
	} else {
		kits, err = MakeChangeKits(tree, username, change.Pin, change.Enable)
		if err != nil {
			return err
		}
	}

	log.Info().
		Str("login_id", tree.LoginID).
		Bool("enable", change.Enable).
		Bool("delete", change.Delete).
		Int("kits", len(kits)).
		Msg("Changing PIN")

	return c.ApplyKits(ctx, tree, kits)
}

// DeletePin removes the PIN credential from tree and every login below it.
func DeletePin(ctx context.Context, c *login.Client, tree *login.LoginTree) error {
	return c.ApplyKits(ctx, tree, MakeDeleteKits(tree))
}
