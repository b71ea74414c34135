package pin2

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesmerverse/vettid-dev/loginkit/box"
	"github.com/mesmerverse/vettid-dev/loginkit/login"
	"github.com/mesmerverse/vettid-dev/loginkit/stash"
)

type call struct {
	method string
	path   string
	body   json.RawMessage
}

// scriptedFetcher records requests and answers each with the next reply,
// or "{}" when none are left.
type scriptedFetcher struct {
	calls   []call
	replies []any
	err     error
}

func (f *scriptedFetcher) Fetch(_ context.Context, method, path string, body any) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	f.calls = append(f.calls, call{method: method, path: path, body: data})
	if f.err != nil {
		return nil, f.err
	}
	if len(f.replies) == 0 {
		return json.RawMessage(`{}`), nil
	}
	next := f.replies[0]
	f.replies = f.replies[1:]
	return json.Marshal(next)
}

func randomKey(t *testing.T) []byte {
	t.Helper()
	key, err := box.RandomKey()
	require.NoError(t, err)
	return key
}

func decrypt(t *testing.T, b *box.Box, key []byte) []byte {
	t.Helper()
	require.NotNil(t, b)
	plaintext, err := box.Decrypt(b, key)
	require.NoError(t, err)
	return plaintext
}

func sampleTree(t *testing.T) *login.LoginTree {
	return &login.LoginTree{
		LoginID:   "root",
		Username:  "alice",
		LoginKey:  randomKey(t),
		LoginAuth: []byte("root-auth"),
		Children: []*login.LoginTree{
			{
				LoginID:   "c1",
				AppID:     "app.one",
				Username:  "alice",
				LoginKey:  randomKey(t),
				LoginAuth: []byte("c1-auth"),
				Children: []*login.LoginTree{
					{LoginID: "c1a", AppID: "app.deep", Username: "alice", LoginKey: randomKey(t), LoginAuth: []byte("c1a-auth")},
				},
			},
			{LoginID: "c2", AppID: "app.two", Username: "alice", LoginKey: randomKey(t), LoginAuth: []byte("c2-auth")},
		},
	}
}

// sampleStash mirrors sampleTree without secrets.
func sampleStash() *login.LoginStash {
	return &login.LoginStash{
		LoginID:  "root",
		Username: "alice",
		Children: []*login.LoginStash{
			{LoginID: "c1", AppID: "app.one", Children: []*login.LoginStash{
				{LoginID: "c1a", AppID: "app.deep"},
			}},
			{LoginID: "c2", AppID: "app.two"},
		},
	}
}

func TestMakeChangeKits_Enable(t *testing.T) {
	tree := sampleTree(t)

	kits, err := MakeChangeKits(tree, "", "1234", true)
	require.NoError(t, err)

	ids := make([]string, 0, len(kits))
	for _, kit := range kits {
		ids = append(ids, kit.LoginID)
	}
	assert.Equal(t, []string{"root", "c1", "c1a", "c2"}, ids, "parents come before children")

	nodes := []*login.LoginTree{tree, tree.Children[0], tree.Children[0].Children[0], tree.Children[1]}
	for i, kit := range kits {
		node := nodes[i]
		upsert, ok := kit.Request.(login.UpsertRequest)
		require.True(t, ok, kit.LoginID)
		assert.Equal(t, Path, upsert.Path)
		body := upsert.Body.(Body)

		pin2Key, ok := kit.Stash.Pin2Key.Value()
		require.True(t, ok)
		require.Len(t, pin2Key, box.KeySize)
		treeKey, _ := kit.Tree.Pin2Key.Value()
		assert.Equal(t, pin2Key, treeKey)

		assert.Equal(t, MakeID(pin2Key, "alice"), body.Pin2ID)
		assert.Equal(t, MakeAuth(pin2Key, "1234"), body.Pin2Auth)
		assert.Equal(t, node.LoginKey, decrypt(t, body.Pin2Box, pin2Key))
		assert.Equal(t, pin2Key, decrypt(t, body.Pin2KeyBox, node.LoginKey))
		assert.Equal(t, []byte("1234"), decrypt(t, body.Pin2TextBox, node.LoginKey))

		textBox, _ := kit.Stash.Pin2TextBox.Value()
		assert.Same(t, body.Pin2TextBox, textBox)
		pin, _ := kit.Tree.Pin.Value()
		assert.Equal(t, "1234", pin)
	}
}

func TestMakeChangeKits_ReusesExistingKey(t *testing.T) {
	tree := sampleTree(t)
	existing := randomKey(t)
	tree.Pin2Key = existing

	kits, err := MakeChangeKits(tree, "alice", "9999", true)
	require.NoError(t, err)

	rootKey, _ := kits[0].Stash.Pin2Key.Value()
	assert.Equal(t, existing, rootKey)
	childKey, _ := kits[1].Stash.Pin2Key.Value()
	assert.NotEqual(t, existing, childKey, "nodes without a key get a fresh one")
}

func TestMakeChangeKits_UsernameIsNormalized(t *testing.T) {
	tree := sampleTree(t)
	tree.Children = nil
	tree.Pin2Key = randomKey(t)

	kits, err := MakeChangeKits(tree, "  Alice  ", "1234", true)
	require.NoError(t, err)
	body := kits[0].Request.(login.UpsertRequest).Body.(Body)
	assert.Equal(t, MakeID(tree.Pin2Key, "alice"), body.Pin2ID)
}

func TestMakeChangeKits_Disable(t *testing.T) {
	tree := sampleTree(t)

	kits, err := MakeChangeKits(tree, "", "4321", false)
	require.NoError(t, err)
	require.Len(t, kits, 4)

	for _, kit := range kits {
		node, ok := login.FindLogin(tree, kit.LoginID)
		require.True(t, ok)

		body := kit.Request.(login.UpsertRequest).Body.(Body)
		assert.Nil(t, body.Pin2ID)
		assert.Nil(t, body.Pin2Auth)
		assert.Nil(t, body.Pin2Box)
		assert.Nil(t, body.Pin2KeyBox)
		assert.Equal(t, []byte("4321"), decrypt(t, body.Pin2TextBox, node.LoginKey))

		assert.True(t, kit.Stash.Pin2Key.IsClear())
		assert.True(t, kit.Tree.Pin2Key.IsClear())
		pin, _ := kit.Tree.Pin.Value()
		assert.Equal(t, "4321", pin)
	}
}

func TestMakeDeleteKits(t *testing.T) {
	kits := MakeDeleteKits(sampleTree(t))
	require.Len(t, kits, 4)
	for _, kit := range kits {
		assert.Equal(t, login.DeleteRequest{Path: Path}, kit.Request)
		assert.True(t, kit.Stash.Pin2Key.IsClear())
		assert.True(t, kit.Tree.Pin2Key.IsClear())
		assert.False(t, kit.Stash.Pin2TextBox.IsSet() || kit.Stash.Pin2TextBox.IsClear())
	}
}

func TestResolveChange(t *testing.T) {
	str := func(s string) *string { return &s }
	yes, no := true, false

	tests := []struct {
		name    string
		state   ChangeState
		pin     *string
		enable  *bool
		want    Change
		wantErr error
	}{
		{"new pin enables", ChangeState{}, str("1234"), nil, Change{Pin: "1234", Enable: true}, nil},
		{"new pin with known pin stays off", ChangeState{Pin: "1111"}, str("1234"), nil, Change{Pin: "1234"}, nil},
		{"enabled stays enabled", ChangeState{Enabled: true, Pin: "1111"}, str("2222"), nil, Change{Pin: "2222", Enable: true}, nil},
		{"disable keeps known pin", ChangeState{Enabled: true, Pin: "1111"}, nil, &no, Change{Pin: "1111"}, nil},
		{"enable uses known pin", ChangeState{Pin: "1111"}, nil, &yes, Change{Pin: "1111", Enable: true}, nil},
		{"enable without pin", ChangeState{}, nil, &yes, Change{}, login.ErrPinRequiredToEnable},
		{"enabled but pin unknown", ChangeState{Enabled: true}, nil, nil, Change{}, login.ErrPinRequiredToEnable},
		{"nothing known deletes", ChangeState{}, nil, nil, Change{Delete: true}, nil},
		{"empty pin off deletes", ChangeState{Pin: "1111"}, str(""), &no, Change{Delete: true}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveChange(tt.state, tt.pin, tt.enable)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindStash(t *testing.T) {
	root := sampleStash()
	assert.Nil(t, FindStash(root, "app.one"), "nothing enabled")
	assert.Nil(t, FindStash(nil, "app.one"))

	deep := root.Children[0].Children[0]
	deep.Pin2Key = []byte{1}
	assert.Same(t, deep, FindStash(root, "app.deep"))
	assert.Nil(t, FindStash(root, "app.one"), "appId must match too")

	root.Pin2Key = []byte{2}
	assert.Same(t, root, FindStash(root, "app.deep"), "the root wins when enabled")
}

func newClient(t *testing.T, fetcher login.Fetcher, stashTree *login.LoginStash) (*login.Client, *stash.Store) {
	t.Helper()
	store := stash.NewStore(stash.NewMemoryDisk(), "")
	if stashTree != nil {
		require.NoError(t, store.Save(context.Background(), stashTree))
	}
	return login.NewClient(fetcher, store), store
}

func TestChangePin_EnablesEveryLogin(t *testing.T) {
	ctx := context.Background()
	fetcher := &scriptedFetcher{}
	client, store := newClient(t, fetcher, sampleStash())
	tree := sampleTree(t)

	pin := "1234"
	require.NoError(t, ChangePin(ctx, client, tree, "", ChangeOptions{Pin: &pin}))

	require.Len(t, fetcher.calls, 4)
	for _, c := range fetcher.calls {
		assert.Equal(t, http.MethodPost, c.method)
		assert.Equal(t, Path, c.path)
	}
	var env login.AuthEnvelope
	require.NoError(t, json.Unmarshal(fetcher.calls[0].body, &env))
	assert.Equal(t, "root", env.LoginID)
	assert.Equal(t, []byte("root-auth"), env.LoginAuth)

	saved, err := store.Load(ctx)
	require.NoError(t, err)
	for _, id := range []string{"root", "c1", "c1a", "c2"} {
		node, ok := login.FindStash(saved, id)
		require.True(t, ok)
		treeNode, _ := login.FindLogin(tree, id)
		assert.Equal(t, treeNode.Pin2Key, node.Pin2Key, id)
		assert.NotNil(t, node.Pin2TextBox, id)
		assert.Equal(t, "1234", treeNode.Pin, id)
	}
}

func TestChangePin_PartialFailureKeepsPrefix(t *testing.T) {
	ctx := context.Background()
	fetcher := &scriptedFetcher{}
	client, store := newClient(t, fetcher, sampleStash())
	tree := sampleTree(t)

	// the stash has no node for c2, so the last kit fails after the server call
	saved, err := store.Load(ctx)
	require.NoError(t, err)
	saved.Children = saved.Children[:1]
	require.NoError(t, store.Save(ctx, saved))

	pin := "1234"
	err = ChangePin(ctx, client, tree, "", ChangeOptions{Pin: &pin})
	var kitErr *login.KitError
	require.ErrorAs(t, err, &kitErr)
	assert.Equal(t, 3, kitErr.Index)
	assert.Equal(t, "c2", kitErr.LoginID)
	assert.ErrorIs(t, err, login.ErrLoginNotFound)

	assert.NotEmpty(t, tree.Pin2Key)
	assert.Empty(t, tree.Children[1].Pin2Key)
}

func TestChangePin_RequiresPinToEnable(t *testing.T) {
	fetcher := &scriptedFetcher{}
	client, _ := newClient(t, fetcher, sampleStash())
	yes := true

	err := ChangePin(context.Background(), client, sampleTree(t), "", ChangeOptions{Enable: &yes})
	assert.ErrorIs(t, err, login.ErrPinRequiredToEnable)
	assert.Empty(t, fetcher.calls)
}

func TestDeletePin(t *testing.T) {
	ctx := context.Background()
	enabled := sampleStash()
	login.Search(enabled, func(s *login.LoginStash) bool {
		s.Pin2Key = []byte{7}
		return false
	})
	fetcher := &scriptedFetcher{}
	client, store := newClient(t, fetcher, enabled)
	tree := sampleTree(t)
	tree.Pin2Key = []byte{7}

	require.NoError(t, DeletePin(ctx, client, tree))

	require.Len(t, fetcher.calls, 4)
	assert.Equal(t, http.MethodDelete, fetcher.calls[0].method)
	saved, err := store.Load(ctx)
	require.NoError(t, err)
	_, found := login.Search(saved, func(s *login.LoginStash) bool { return len(s.Pin2Key) > 0 })
	assert.False(t, found)
	assert.Empty(t, tree.Pin2Key)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	loginKey := randomKey(t)
	pin2Key := randomKey(t)

	stashTree := &login.LoginStash{LoginID: "root", Username: "Alice", Pin2Key: pin2Key}
	reply := login.LoginReply{
		LoginID:      "root",
		LoginAuthBox: mustBox(t, []byte("root-auth"), loginKey),
		Pin2Box:      mustBox(t, loginKey, pin2Key),
		Pin2TextBox:  mustBox(t, []byte("1234"), loginKey),
	}
	fetcher := &scriptedFetcher{replies: []any{reply}}
	client, store := newClient(t, fetcher, stashTree)

	tree, err := Login(ctx, client, stashTree, "", "", "1234", login.LoginOptions{})
	require.NoError(t, err)
	assert.Equal(t, loginKey, tree.LoginKey)
	assert.Equal(t, []byte("root-auth"), tree.LoginAuth)
	assert.Equal(t, "1234", tree.Pin)

	var req login.LoginRequest
	require.NoError(t, json.Unmarshal(fetcher.calls[0].body, &req))
	assert.Equal(t, MakeID(pin2Key, "alice"), req.Pin2ID, "falls back to the stash username")
	assert.Equal(t, MakeAuth(pin2Key, "1234"), req.Pin2Auth)

	saved, err := store.Load(ctx)
	require.NoError(t, err)
	assert.NotNil(t, saved.LastLogin)
}

func TestLogin_Errors(t *testing.T) {
	ctx := context.Background()

	client, _ := newClient(t, &scriptedFetcher{}, nil)
	_, err := Login(ctx, client, sampleStash(), "app.one", "alice", "1234", login.LoginOptions{})
	assert.ErrorIs(t, err, login.ErrNotEnabled)

	enabled := &login.LoginStash{LoginID: "root", Pin2Key: randomKey(t)}
	client, _ = newClient(t, &scriptedFetcher{replies: []any{login.LoginReply{LoginID: "root"}}}, enabled)
	_, err = Login(ctx, client, enabled, "", "alice", "1234", login.LoginOptions{})
	assert.ErrorIs(t, err, login.ErrMissingData)

	rejected := &scriptedFetcher{err: &login.ServerError{Status: http.StatusUnauthorized, Message: "invalid credentials"}}
	client, _ = newClient(t, rejected, enabled)
	_, err = Login(ctx, client, enabled, "", "alice", "0000", login.LoginOptions{})
	var serverErr *login.ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, http.StatusUnauthorized, serverErr.Status)
}

func TestVerify_DoesNotSave(t *testing.T) {
	ctx := context.Background()
	loginKey := randomKey(t)
	pin2Key := randomKey(t)
	stashTree := &login.LoginStash{LoginID: "root", Username: "alice", Pin2Key: pin2Key}
	reply := login.LoginReply{LoginID: "root", Pin2Box: mustBox(t, loginKey, pin2Key)}

	fetcher := &scriptedFetcher{replies: []any{reply}}
	client, store := newClient(t, fetcher, stashTree)
	tree := &login.LoginTree{LoginID: "root", Username: "alice", LoginKey: loginKey}

	assert.True(t, Verify(ctx, client, tree, "1234"))

	saved, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, saved.LastLogin)

	fetcher.err = &login.ServerError{Status: http.StatusUnauthorized}
	assert.False(t, Verify(ctx, client, tree, "0000"))
}

func mustBox(t *testing.T, plaintext, key []byte) *box.Box {
	t.Helper()
	b, err := box.Encrypt(plaintext, key)
	require.NoError(t, err)
	return b
}

func TestMakeID(t *testing.T) {
	key := bytes.Repeat([]byte{3}, box.KeySize)
	other := bytes.Repeat([]byte{4}, box.KeySize)

	assert.Equal(t, MakeID(key, "alice"), MakeID(key, "alice"))
	assert.Equal(t, MakeID(key, "alice"), MakeID(key, " ALICE "))
	assert.NotEqual(t, MakeID(key, "alice"), MakeID(key, "bob"))
	assert.NotEqual(t, MakeID(key, "alice"), MakeID(other, "alice"))
	assert.Len(t, MakeID(key, "alice"), 32)
}

func TestMakeAuth(t *testing.T) {
	key := bytes.Repeat([]byte{3}, box.KeySize)
	other := bytes.Repeat([]byte{4}, box.KeySize)

	assert.Equal(t, MakeAuth(key, "1234"), MakeAuth(key, "1234"))
	assert.NotEqual(t, MakeAuth(key, "1234"), MakeAuth(key, "1235"))
	assert.NotEqual(t, MakeAuth(key, "1234"), MakeAuth(other, "1234"))
	assert.NotEqual(t, MakeAuth(key, "1234"), MakeAuth(key, " 1234"), "the PIN is not normalized")
}

func TestFindStash_SecondChild(t *testing.T) {
	root := sampleStash()
	second := root.Children[1]
	second.Pin2Key = []byte{1}

	assert.Same(t, second, FindStash(root, "app.two"))
	assert.Nil(t, FindStash(root, "app.one"))
}

func TestMakeChangeKits_FreshKeysAreDistinct(t *testing.T) {
	kits, err := MakeChangeKits(sampleTree(t), "alice", "1234", true)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, kit := range kits {
		key, _ := kit.Stash.Pin2Key.Value()
		assert.False(t, seen[string(key)], kit.LoginID)
		seen[string(key)] = true
	}
}

func TestDeletePin_Idempotent(t *testing.T) {
	ctx := context.Background()
	fetcher := &scriptedFetcher{}
	client, store := newClient(t, fetcher, sampleStash())
	tree := sampleTree(t)

	require.NoError(t, DeletePin(ctx, client, tree))
	require.NoError(t, DeletePin(ctx, client, tree))
	assert.Len(t, fetcher.calls, 8)

	saved, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, FindStash(saved, ""))
}
