package login

import (
	"context"
	"encoding/json"
	"sync"
)

type fetchCall struct {
	Method string
	Path   string
	Body   json.RawMessage
}

// fakeFetcher records every request and answers from a queue of replies.
// Once the queue is exhausted it answers "{}".
type fakeFetcher struct {
	mu      sync.Mutex
	calls   []fetchCall
	replies []fakeReply
}

type fakeReply struct {
	body any
	err  error
}

func (f *fakeFetcher) queue(body any, err error) {
	f.replies = append(f.replies, fakeReply{body: body, err: err})
}

func (f *fakeFetcher) Fetch(_ context.Context, method, path string, body any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var raw json.RawMessage
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	f.calls = append(f.calls, fetchCall{Method: method, Path: path, Body: raw})

	if len(f.replies) == 0 {
		return json.RawMessage(`{}`), nil
	}
	next := f.replies[0]
	f.replies = f.replies[1:]
	if next.err != nil {
		return nil, next.err
	}
	if next.body == nil {
		return json.RawMessage(`{}`), nil
	}
	data, err := json.Marshal(next.body)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// memoryStashes keeps the stash as serialized JSON so tests see exactly what
// a disk would.
type memoryStashes struct {
	mu    sync.Mutex
	data  []byte
	saves int
	err   error
}

func (m *memoryStashes) Load(context.Context) (*LoginStash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	var s LoginStash
	if err := json.Unmarshal(m.data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *memoryStashes) Save(_ context.Context, s *LoginStash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.data = data
	m.saves++
	return nil
}

func (m *memoryStashes) put(s *LoginStash) {
	data, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	m.data = data
}

type recordingNotifier struct {
	events []Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev Event) error {
	n.events = append(n.events, ev)
	return n.err
}
