package glpi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	apperrors "github.com/harunnryd/autopdf/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGLPI struct {
	t *testing.T

	mu          sync.Mutex
	initCalls   int
	killCalls   int
	calls       map[string]int
	tokens      []string
	bodies      map[string]string
	unauthorize int // remaining 401 responses for non-session endpoints
	handlers    map[string]http.HandlerFunc
	initStatus  int
	emptyToken  bool
}

func newFakeGLPI(t *testing.T) (*fakeGLPI, *httptest.Server) {
	f := &fakeGLPI{
		t:        t,
		calls:    map[string]int{},
		bodies:   map[string]string{},
		handlers: map[string]http.HandlerFunc{},
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeGLPI) handle(key string, h http.HandlerFunc) {
	f.handlers[key] = h
}

func (f *fakeGLPI) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	assert.Equal(f.t, "app-token", r.Header.Get("App-Token"))

	switch r.URL.Path {
	case "/initSession":
		f.initCalls++
		assert.Equal(f.t, "user_token user-token", r.Header.Get("Authorization"))
		if f.initStatus != 0 {
			w.WriteHeader(f.initStatus)
			return
		}
		if f.emptyToken {
			_, _ = io.WriteString(w, `{}`)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"session_token": tokenFor(f.initCalls)})
		return
	case "/killSession":
		f.killCalls++
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	key := r.Method + " " + r.URL.Path
	f.calls[key]++
	f.tokens = append(f.tokens, r.Header.Get("Session-Token"))
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		f.bodies[key] = string(data)
	}

	if f.unauthorize > 0 {
		f.unauthorize--
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `["ERROR_SESSION_TOKEN_INVALID","session expired"]`)
		return
	}

	h, ok := f.handlers[key]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `["ERROR_ITEM_NOT_FOUND",""]`)
		return
	}
	h(w, r)
}

func tokenFor(n int) string {
	return "session-" + string(rune('0'+n))
}

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(Options{
		BaseURL:    srv.URL + "/",
		AppToken:   "app-token",
		UserToken:  "user-token",
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestAcquire_MissingTokenIsAuthError(t *testing.T) {
	f, srv := newFakeGLPI(t)
	f.emptyToken = true
	c := newTestClient(t, srv)

	err := c.Acquire(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrAuth)
	assert.False(t, c.HasSession())
}

func TestAcquire_RejectedCredentialsIsAuthError(t *testing.T) {
	f, srv := newFakeGLPI(t)
	f.initStatus = http.StatusUnauthorized
	c := newTestClient(t, srv)

	err := c.Acquire(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrAuth)
	assert.Equal(t, "AuthError", apperrors.Category(err))
}

func TestRequest_AcquiresSessionLazily(t *testing.T) {
	f, srv := newFakeGLPI(t)
	f.handle("GET /Ticket/7", jsonHandler(`{"id":7,"name":"Printer down"}`))
	c := newTestClient(t, srv)

	raw, err := c.GetIncident(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Printer down", raw.Name)
	assert.Equal(t, 1, f.initCalls)
	assert.Equal(t, []string{"session-1"}, f.tokens)
}

func TestRequest_RefreshesOnceOnUnauthorized(t *testing.T) {
	f, srv := newFakeGLPI(t)
	f.unauthorize = 1
	f.handle("GET /Ticket/7", jsonHandler(`{"id":7,"name":"VPN"}`))
	c := newTestClient(t, srv)

	raw, err := c.GetIncident(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "VPN", raw.Name)
	assert.Equal(t, 2, f.initCalls)
	assert.Equal(t, 2, f.calls["GET /Ticket/7"])
	assert.Equal(t, []string{"session-1", "session-2"}, f.tokens, "retry must carry the refreshed token")
}

func TestRequest_SecondUnauthorizedIsAuthError(t *testing.T) {
	f, srv := newFakeGLPI(t)
	f.unauthorize = 5
	c := newTestClient(t, srv)

	_, err := c.GetIncident(context.Background(), 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAuth)
	assert.Equal(t, 2, f.initCalls, "exactly one re-acquisition")
	assert.Equal(t, 2, f.calls["GET /Ticket/7"], "exactly one retry")
	assert.False(t, c.HasSession())
}

func TestRequest_ServerErrorIsUpstreamError(t *testing.T) {
	f, srv := newFakeGLPI(t)
	f.handle("GET /Ticket/7", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c := newTestClient(t, srv)

	_, err := c.GetIncident(context.Background(), 7)
	var upstream *apperrors.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusBadGateway, upstream.StatusCode)
	assert.Equal(t, "UpstreamError", apperrors.Category(err))
	assert.Equal(t, 1, f.calls["GET /Ticket/7"], "non-auth failures are not retried")
}

func TestClose_ClearsTokenEvenWhenRemoteFails(t *testing.T) {
	f, srv := newFakeGLPI(t)
	c := newTestClient(t, srv)
	require.NoError(t, c.Acquire(context.Background()))

	c.Close(context.Background())
	assert.False(t, c.HasSession())
	assert.Equal(t, 1, f.killCalls)

	c.Close(context.Background())
	assert.Equal(t, 1, f.killCalls, "no session, nothing to kill")
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, int64(0), int64(retryAfterSeconds("")))
	assert.Equal(t, int64(0), int64(retryAfterSeconds("soon")))
	assert.Equal(t, "5s", retryAfterSeconds("5").String())
}
