package login

import (
	"errors"
	"fmt"
)

var (
	// ErrNotEnabled is returned when this device holds no credential key for
	// the requested factor and app.
	ErrNotEnabled = errors.New("login: factor not enabled on this device")
	// ErrMissingData is returned when a server reply lacks the box the factor
	// needs to recover the master key.
	ErrMissingData = errors.New("login: missing data in server reply")
	// ErrPinRequiredToEnable is returned when enabling PIN login without any
	// known PIN value.
	ErrPinRequiredToEnable = errors.New("login: a PIN is required to enable PIN login")

	// ErrStashNotFound is returned when no stash is saved on this device.
	ErrStashNotFound = errors.New("login: no stash on this device")
	// ErrStashExists is returned when creating a root login over an existing stash.
	ErrStashExists = errors.New("login: a stash already exists on this device")
	// ErrLoginNotFound is returned when a login id is absent from a tree.
	ErrLoginNotFound = errors.New("login: login not found")
)

// ServerError is a non-2xx reply from the login server.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("login server returned status %d", e.Status)
	}
	return fmt.Sprintf("login server returned status %d: %s", e.Status, e.Message)
}

// KitError reports the kit that stopped Client.ApplyKits. Kits before Index
// stay committed.
type KitError struct {
	Index   int
	LoginID string
	Err     error
}

func (e *KitError) Error() string {
	return fmt.Sprintf("kit %d for login %s: %v", e.Index, e.LoginID, e.Err)
}

func (e *KitError) Unwrap() error {
	return e.Err
}
