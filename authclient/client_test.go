package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesmerverse/vettid-dev/loginkit/login"
)

func TestFetch_SendsJSONAndHeaders(t *testing.T) {
	var gotMethod, gotPath, gotAuth, gotRequestID, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-Id")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"loginId":"abc"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/", APIKey: "secret"})
	raw, err := c.Fetch(context.Background(), http.MethodPost, "/v2/login/create", map[string]string{"appId": "x"})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/v2/login/create", gotPath)
	assert.Equal(t, "Token secret", gotAuth)
	assert.NotEmpty(t, gotRequestID)
	assert.JSONEq(t, `{"appId":"x"}`, gotBody)
	assert.JSONEq(t, `{"loginId":"abc"}`, string(raw))
}

func TestFetch_NonSuccessIsServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(login.ErrorReply{Error: "invalid credentials"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MaxRetries: 3, RetryWait: time.Millisecond})
	_, err := c.Fetch(context.Background(), http.MethodPost, "/v2/login", nil)

	var serverErr *login.ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, http.StatusUnauthorized, serverErr.Status)
	assert.Equal(t, "invalid credentials", serverErr.Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "server replies are never retried")
}

func TestFetch_PlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).Fetch(context.Background(), http.MethodGet, "/x", nil)

	var serverErr *login.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "gateway down", serverErr.Message)
}

func TestFetch_EmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	raw, err := New(Config{BaseURL: srv.URL}).Fetch(context.Background(), http.MethodDelete, "/v2/login/pin2", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))
}

type flakyTransport struct {
	failures int32
	calls    int32
	next     http.RoundTripper
}

func (f *flakyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failures {
		return nil, errors.New("connection reset")
	}
	return f.next.RoundTrip(r)
}

func TestFetch_RetriesTransportErrors(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(data))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	transport := &flakyTransport{failures: 2, next: http.DefaultTransport}
	c := New(Config{
		BaseURL:    srv.URL,
		MaxRetries: 2,
		RetryWait:  time.Millisecond,
		HTTPClient: &http.Client{Transport: transport},
	})

	_, err := c.Fetch(context.Background(), http.MethodPost, "/v2/login", map[string]int{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&transport.calls))
	require.Len(t, bodies, 1)
	assert.JSONEq(t, `{"n":1}`, bodies[0])
}

func TestFetch_GivesUpAfterMaxRetries(t *testing.T) {
	transport := &flakyTransport{failures: 10, next: http.DefaultTransport}
	c := New(Config{
		BaseURL:    "http://login.invalid",
		MaxRetries: 1,
		RetryWait:  time.Millisecond,
		HTTPClient: &http.Client{Transport: transport},
	})

	_, err := c.Fetch(context.Background(), http.MethodPost, "/v2/login", nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "connection reset"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&transport.calls))
}

func TestFetch_CancelledContext(t *testing.T) {
	transport := &flakyTransport{failures: 10, next: http.DefaultTransport}
	c := New(Config{
		BaseURL:    "http://login.invalid",
		MaxRetries: 5,
		RetryWait:  time.Hour,
		HTTPClient: &http.Client{Transport: transport},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Fetch(ctx, http.MethodPost, "/v2/login", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetch_ReplyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", maxResponseBytes+1)))
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).Fetch(context.Background(), http.MethodGet, "/", nil)
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	c := New(Config{MaxRetries: -1})
	assert.Equal(t, DefaultConfig().BaseURL, c.baseURL)
	assert.Equal(t, 0, c.maxRetries)
	assert.Equal(t, DefaultConfig().RetryWait, c.retryWait)
	assert.Equal(t, DefaultConfig().Timeout, c.http.Timeout)
}
