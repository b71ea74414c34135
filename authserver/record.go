// Package authserver is a reference login server speaking the /v2/login
// protocol. It keeps one Record per login in a RecordStore and never sees a
// master key, PIN or credential key in the clear.
package authserver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/mesmerverse/vettid-dev/loginkit/box"
)

// ErrRecordNotFound is returned when no record matches a lookup.
var ErrRecordNotFound = errors.New("record not found")

// Record is the server-side state of one login. Secrets presented by
// clients are kept only as SHA-256 hashes.
type Record struct {
	LoginID  string `json:"loginId"`
	AppID    string `json:"appId"`
	ParentID string `json:"parentId,omitempty"`

	LoginAuthHash []byte   `json:"loginAuthHash"`
	LoginAuthBox  *box.Box `json:"loginAuthBox,omitempty"`
	ParentBox     *box.Box `json:"parentBox,omitempty"`

	OTPKey string `json:"otpKey,omitempty"`

	Pin2ID       []byte   `json:"pin2Id,omitempty"`
	Pin2AuthHash []byte   `json:"pin2AuthHash,omitempty"`
	Pin2Box      *box.Box `json:"pin2Box,omitempty"`
	Pin2KeyBox   *box.Box `json:"pin2KeyBox,omitempty"`
	Pin2TextBox  *box.Box `json:"pin2TextBox,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// pin2Handle is the index key for a record's pin2Id, or "" when PIN login
// is off.
func (r *Record) pin2Handle() string {
	if len(r.Pin2ID) == 0 {
		return ""
	}
	return hex.EncodeToString(r.Pin2ID)
}

func (r *Record) clearPin2() {
	r.Pin2ID = nil
	r.Pin2AuthHash = nil
	r.Pin2Box = nil
	r.Pin2KeyBox = nil
}

// RecordStore persists login records.
type RecordStore interface {
	GetLogin(ctx context.Context, loginID string) (*Record, error)
	GetLoginByPin2ID(ctx context.Context, pin2ID []byte) (*Record, error)
	ListChildren(ctx context.Context, parentID string) ([]*Record, error)
	PutLogin(ctx context.Context, rec *Record) error
	Close() error
}

func hashSecret(secret []byte) []byte {
	sum := sha256.Sum256(secret)
	return sum[:]
}

// secretMatches compares secret against a stored hash in constant time.
func secretMatches(secret, hash []byte) bool {
	if len(secret) == 0 || len(hash) == 0 {
		return false
	}
	return box.Equal(hashSecret(secret), hash)
}
