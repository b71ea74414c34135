package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesmerverse/vettid-dev/loginkit/login"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return nil
}

func TestNATSNotifier_Publishes(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNATSNotifier(pub, "")
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	err := n.Notify(context.Background(), login.Event{Kind: login.EventLoggedIn, LoginID: "abc-123", At: at})
	require.NoError(t, err)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "loginkit.events.abc-123.loggedIn", pub.msgs[0].subject)

	ev, err := DecodeEvent(pub.msgs[0].data)
	require.NoError(t, err)
	assert.Equal(t, login.Event{Kind: login.EventLoggedIn, LoginID: "abc-123", At: at}, ev)
}

func TestNATSNotifier_SubjectTokens(t *testing.T) {
	n := NewNATSNotifier(&fakePublisher{}, "acme.logins")
	assert.Equal(t, "acme.logins.a_b_c.created", n.Subject(login.Event{LoginID: "a.b*c", Kind: login.EventCreated}))
	assert.Equal(t, "acme.logins._.kitApplied", n.Subject(login.Event{Kind: login.EventKitApplied}))
}

func TestNATSNotifier_Errors(t *testing.T) {
	n := NewNATSNotifier(&fakePublisher{err: errors.New("nats: connection closed")}, "")
	err := n.Notify(context.Background(), login.Event{Kind: login.EventCreated, LoginID: "x"})
	assert.ErrorContains(t, err, "connection closed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewNATSNotifier(&fakePublisher{}, "").Notify(ctx, login.Event{}), context.Canceled)

	assert.Error(t, n.Watch(context.Background(), make(chan login.Event)))
}

func TestDecodeEvent_Rejects(t *testing.T) {
	for _, data := range []string{`not json`, `{}`, `{"kind":"created"}`} {
		_, err := DecodeEvent([]byte(data))
		assert.Error(t, err, data)
	}
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Notify(context.Background(), login.Event{}))
}
