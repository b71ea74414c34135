package login

import (
	"context"
	"encoding/json"

	"github.com/mesmerverse/vettid-dev/loginkit/box"
)

// Server paths shared by every factor.
const (
	PathLogin  = "/v2/login"
	PathCreate = "/v2/login/create"
)

// Fetcher performs one JSON request against the login server. A nil body
// sends no payload. Non-2xx replies are returned as *ServerError.
type Fetcher interface {
	Fetch(ctx context.Context, method, path string, body any) (json.RawMessage, error)
}

// AuthEnvelope wraps kit requests with the credentials of the login they
// modify.
type AuthEnvelope struct {
	LoginID   string `json:"loginId"`
	LoginAuth []byte `json:"loginAuth"`
	Data      any    `json:"data,omitempty"`
}

// LoginRequest is the body of POST /v2/login. Each factor fills in its own
// identification and proof fields.
type LoginRequest struct {
	Pin2ID   []byte `json:"pin2Id,omitempty"`
	Pin2Auth []byte `json:"pin2Auth,omitempty"`
	OTP      string `json:"otp,omitempty"`
}

// LoginReply is the server's view of a login and its children after a
// successful authentication.
type LoginReply struct {
	LoginID      string   `json:"loginId"`
	AppID        string   `json:"appId"`
	ParentBox    *box.Box `json:"parentBox,omitempty"`
	LoginAuthBox *box.Box `json:"loginAuthBox,omitempty"`

	Pin2Box     *box.Box `json:"pin2Box,omitempty"`
	Pin2KeyBox  *box.Box `json:"pin2KeyBox,omitempty"`
	Pin2TextBox *box.Box `json:"pin2TextBox,omitempty"`

	Children []*LoginReply `json:"children,omitempty"`
}

// CreateRequest registers a new login, optionally below an existing parent.
type CreateRequest struct {
	LoginID      string   `json:"loginId,omitempty"`
	AppID        string   `json:"appId"`
	LoginAuth    []byte   `json:"loginAuth"`
	LoginAuthBox *box.Box `json:"loginAuthBox"`

	// OTPKey, when set, makes the server require a TOTP code at login.
	OTPKey string `json:"otpKey,omitempty"`

	ParentID   string   `json:"parentId,omitempty"`
	ParentAuth []byte   `json:"parentAuth,omitempty"`
	ParentBox  *box.Box `json:"parentBox,omitempty"`
}

// CreateReply carries the id assigned to a new login.
type CreateReply struct {
	LoginID string `json:"loginId"`
}

// ErrorReply is the body of every non-2xx server reply.
type ErrorReply struct {
	Error string `json:"error"`
}
