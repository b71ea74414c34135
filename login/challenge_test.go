package login

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesmerverse/vettid-dev/loginkit/box"
)

const testOTPSecret = "JBSWY3DPEHPK3PXP"

func mustKey(t *testing.T) []byte {
	t.Helper()
	key, err := box.RandomKey()
	require.NoError(t, err)
	return key
}

func mustEncrypt(t *testing.T, plaintext, key []byte) *box.Box {
	t.Helper()
	b, err := box.Encrypt(plaintext, key)
	require.NoError(t, err)
	return b
}

type loginFixture struct {
	rootKey, rootAuth   []byte
	childKey, childAuth []byte
	reply               *LoginReply
}

func newLoginFixture(t *testing.T) *loginFixture {
	f := &loginFixture{
		rootKey:   mustKey(t),
		rootAuth:  []byte("root-auth"),
		childKey:  mustKey(t),
		childAuth: []byte("child-auth"),
	}
	f.reply = &LoginReply{
		LoginID:      "root",
		AppID:        "",
		LoginAuthBox: mustEncrypt(t, f.rootAuth, f.rootKey),
		Pin2TextBox:  mustEncrypt(t, []byte("1234"), f.rootKey),
		Children: []*LoginReply{
			{
				LoginID:      "c1",
				AppID:        "app.one",
				ParentBox:    mustEncrypt(t, f.childKey, f.rootKey),
				LoginAuthBox: mustEncrypt(t, f.childAuth, f.childKey),
			},
		},
	}
	return f
}

func (f *loginFixture) decrypt(*LoginReply) ([]byte, error) {
	return f.rootKey, nil
}

func TestServerLogin_MergesReplyAndBuildsTree(t *testing.T) {
	f := newLoginFixture(t)
	stashTree := &LoginStash{
		LoginID:  "root",
		Username: "alice",
		Pin2Key:  []byte{1},
		Children: []*LoginStash{
			{LoginID: "c1", AppID: "app.one", Pin2Key: []byte{9}, OTPKey: testOTPSecret},
			{LoginID: "gone", AppID: "app.gone"},
		},
	}

	fetcher := &fakeFetcher{}
	fetcher.queue(f.reply, nil)
	stashes := &memoryStashes{}
	notifier := &recordingNotifier{}
	client := NewClient(fetcher, stashes, WithNotifier(notifier))

	when := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	req := LoginRequest{Pin2ID: []byte("id"), Pin2Auth: []byte("auth")}
	tree, err := client.ServerLogin(context.Background(), stashTree, stashTree, LoginOptions{Now: when}, req, f.decrypt)
	require.NoError(t, err)

	require.Len(t, fetcher.calls, 1)
	assert.Equal(t, http.MethodPost, fetcher.calls[0].Method)
	assert.Equal(t, PathLogin, fetcher.calls[0].Path)

	assert.Equal(t, "alice", tree.Username)
	assert.Equal(t, f.rootKey, tree.LoginKey)
	assert.Equal(t, f.rootAuth, tree.LoginAuth)
	assert.Equal(t, "1234", tree.Pin)
	assert.Equal(t, []byte{1}, tree.Pin2Key)

	require.Len(t, tree.Children, 1)
	child := tree.Children[0]
	assert.Equal(t, "c1", child.LoginID)
	assert.Equal(t, f.childKey, child.LoginKey)
	assert.Equal(t, f.childAuth, child.LoginAuth)
	assert.Equal(t, []byte{9}, child.Pin2Key)
	assert.Equal(t, "alice", child.Username)

	saved, err := stashes.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, saved.LastLogin)
	assert.True(t, saved.LastLogin.Equal(when))
	require.Len(t, saved.Children, 1)
	assert.Equal(t, []byte{9}, saved.Children[0].Pin2Key)
	assert.Equal(t, testOTPSecret, saved.Children[0].OTPKey)
	assert.NotNil(t, saved.Children[0].ParentBox)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, EventLoggedIn, notifier.events[0].Kind)
}

func TestServerLogin_StampsClockWithoutNow(t *testing.T) {
	f := newLoginFixture(t)
	f.reply.Children = nil
	stashTree := &LoginStash{LoginID: "root", Children: []*LoginStash{{LoginID: "kept"}}}

	fetcher := &fakeFetcher{}
	fetcher.queue(f.reply, nil)
	stashes := &memoryStashes{}
	clock := time.Date(2026, 5, 5, 5, 5, 5, 0, time.UTC)
	client := NewClient(fetcher, stashes, WithClock(func() time.Time { return clock }))

	_, err := client.ServerLogin(context.Background(), stashTree, stashTree, LoginOptions{}, LoginRequest{}, f.decrypt)
	// "kept" has no parentBox, so the tree cannot be rebuilt
	require.ErrorIs(t, err, ErrMissingData)

	saved, loadErr := stashes.Load(context.Background())
	require.NoError(t, loadErr)
	require.NotNil(t, saved.LastLogin)
	assert.True(t, saved.LastLogin.Equal(clock))
	assert.Len(t, saved.Children, 1)
}

func TestServerLogin_SendsCachedOTP(t *testing.T) {
	f := newLoginFixture(t)
	f.reply.Children = nil
	stashTree := &LoginStash{LoginID: "root", OTPKey: testOTPSecret}

	fetcher := &fakeFetcher{}
	fetcher.queue(f.reply, nil)
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	client := NewClient(fetcher, &memoryStashes{}, WithClock(func() time.Time { return clock }))

	_, err := client.ServerLogin(context.Background(), stashTree, stashTree, LoginOptions{}, LoginRequest{}, f.decrypt)
	require.NoError(t, err)

	var sent LoginRequest
	require.NoError(t, json.Unmarshal(fetcher.calls[0].Body, &sent))
	want, err := totp.GenerateCode(testOTPSecret, clock)
	require.NoError(t, err)
	assert.Equal(t, want, sent.OTP)
}

func TestServerLogin_ExplicitOTPWins(t *testing.T) {
	f := newLoginFixture(t)
	f.reply.Children = nil
	stashTree := &LoginStash{LoginID: "root", OTPKey: testOTPSecret}

	fetcher := &fakeFetcher{}
	fetcher.queue(f.reply, nil)
	client := NewClient(fetcher, &memoryStashes{})

	_, err := client.ServerLogin(context.Background(), stashTree, stashTree, LoginOptions{OTP: "123456"}, LoginRequest{}, f.decrypt)
	require.NoError(t, err)

	var sent LoginRequest
	require.NoError(t, json.Unmarshal(fetcher.calls[0].Body, &sent))
	assert.Equal(t, "123456", sent.OTP)
}

func TestServerLogin_ServerRejects(t *testing.T) {
	stashTree := &LoginStash{LoginID: "root"}
	fetcher := &fakeFetcher{}
	fetcher.queue(nil, &ServerError{Status: http.StatusUnauthorized, Message: "bad pin"})
	stashes := &memoryStashes{}
	client := NewClient(fetcher, stashes)

	_, err := client.ServerLogin(context.Background(), stashTree, stashTree, LoginOptions{}, LoginRequest{},
		func(*LoginReply) ([]byte, error) { return nil, errors.New("not reached") })

	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusUnauthorized, serverErr.Status)
	assert.Zero(t, stashes.saves)
}

func TestServerLogin_DecryptFailureSavesNothing(t *testing.T) {
	f := newLoginFixture(t)
	stashTree := &LoginStash{LoginID: "root"}
	fetcher := &fakeFetcher{}
	fetcher.queue(f.reply, nil)
	stashes := &memoryStashes{}
	client := NewClient(fetcher, stashes)

	_, err := client.ServerLogin(context.Background(), stashTree, stashTree, LoginOptions{}, LoginRequest{},
		func(*LoginReply) ([]byte, error) { return nil, ErrMissingData })

	assert.ErrorIs(t, err, ErrMissingData)
	assert.Zero(t, stashes.saves)
	assert.Nil(t, stashTree.LastLogin)
}

func TestMakeLoginTree_WrongKey(t *testing.T) {
	f := newLoginFixture(t)
	stash := &LoginStash{LoginID: "root"}
	applyLoginReply(stash, f.reply)

	_, err := MakeLoginTree(stash, mustKey(t))
	assert.ErrorIs(t, err, box.ErrDecrypt)
}

func TestApplyLoginReply_KeepsDeviceFields(t *testing.T) {
	f := newLoginFixture(t)
	stash := &LoginStash{
		LoginID:  "root",
		Username: "alice",
		OTPKey:   testOTPSecret,
		Pin2Key:  []byte{5},
	}

	applyLoginReply(stash, f.reply)

	assert.Equal(t, "alice", stash.Username)
	assert.Equal(t, testOTPSecret, stash.OTPKey)
	assert.Equal(t, []byte{5}, stash.Pin2Key)
	assert.Same(t, f.reply.LoginAuthBox, stash.LoginAuthBox)
	require.Len(t, stash.Children, 1)
	assert.Equal(t, "app.one", stash.Children[0].AppID)
}

func TestServerLogin_DryRunLeavesStash(t *testing.T) {
	f := newLoginFixture(t)
	stashTree := &LoginStash{LoginID: "root"}
	fetcher := &fakeFetcher{}
	fetcher.queue(f.reply, nil)
	stashes := &memoryStashes{}
	notifier := &recordingNotifier{}
	client := NewClient(fetcher, stashes, WithNotifier(notifier))

	tree, err := client.ServerLogin(context.Background(), stashTree, stashTree, LoginOptions{DryRun: true}, LoginRequest{}, f.decrypt)
	require.NoError(t, err)
	assert.Equal(t, f.rootAuth, tree.LoginAuth)

	assert.Zero(t, stashes.saves)
	assert.Empty(t, notifier.events)
	assert.Nil(t, stashTree.LoginAuthBox)
	assert.Nil(t, stashTree.LastLogin)
}
