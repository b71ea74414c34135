package login

import "net/http"

// ServerRequest is the server half of a Kit. It is implemented only by
// UpsertRequest and DeleteRequest.
type ServerRequest interface {
	Method() string
	ServerPath() string
	isServerRequest()
}

// UpsertRequest creates or replaces server-side state with Body.
type UpsertRequest struct {
	Path string
	Body any
}

func (UpsertRequest) Method() string       { return http.MethodPost }
func (r UpsertRequest) ServerPath() string { return r.Path }
func (UpsertRequest) isServerRequest()     {}

// DeleteRequest removes server-side state. It carries no body.
type DeleteRequest struct {
	Path string
}

func (DeleteRequest) Method() string       { return http.MethodDelete }
func (r DeleteRequest) ServerPath() string { return r.Path }
func (DeleteRequest) isServerRequest()     {}

// Kit describes one change to exactly one login node, to be applied to the
// server, the stash and the in-memory tree, in that order. Kits are consumed
// once by Client.ApplyKits and never stored.
type Kit struct {
	LoginID string
	Request ServerRequest
	Stash   StashPatch
	Tree    TreePatch
}
