package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	mu          sync.Mutex
	token       string
	err         error
	invalidated int
}

func (f *fakeTokens) Token(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.err
}

func (f *fakeTokens) Invalidate(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
	f.token = ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestLogin(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret1" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "tok",
			"user":         map[string]any{"id": "u1", "email": body["email"], "role": "USER", "name": "A"},
		})
	})
	tokens := &fakeTokens{}
	c := New(srv.URL, WithTokenSource(tokens))

	res, err := c.Login(context.Background(), "a@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "tok", res.AccessToken)
	assert.Equal(t, "a@example.com", res.User.Email)

	_, err = c.Login(context.Background(), "a@example.com", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid credentials", apiErr.Message)
	assert.False(t, errors.Is(err, ErrUnauthenticated), "a failed login is not a lost session")
	assert.Zero(t, tokens.invalidated)
}

func TestProtectedCall_SendsBearer(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]string{"id": "u1", "email": "a@example.com", "role": "ADMIN"})
	})
	c := New(srv.URL, WithTokenSource(&fakeTokens{token: "tok-1"}))

	id, err := c.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Identity{ID: "u1", Email: "a@example.com", Role: "ADMIN"}, *id)
}

func TestProtectedCall_401InvalidatesSession(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
	})
	tokens := &fakeTokens{token: "stale"}
	c := New(srv.URL, WithTokenSource(tokens))

	_, err := c.Me(context.Background())
	require.ErrorIs(t, err, ErrUnauthenticated)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid or expired token", apiErr.Message)
	assert.Equal(t, 1, tokens.invalidated)
}

func TestProtectedCall_OtherErrorsKeepSession(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users":
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "insufficient role"})
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, "<html>bad gateway</html>")
		}
	})
	tokens := &fakeTokens{token: "tok"}
	c := New(srv.URL, WithTokenSource(tokens))

	_, err := c.ListUsers(context.Background(), ListOptions{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "insufficient role", apiErr.Message)

	_, err = c.GetUser(context.Background(), "u1")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Bad Gateway", apiErr.Message)

	assert.Zero(t, tokens.invalidated)
}

func TestProtectedCall_NoSession(t *testing.T) {
	calls := 0
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) { calls++ })

	_, err := New(srv.URL).Me(context.Background())
	require.ErrorIs(t, err, ErrUnauthenticated)

	expired := errors.New("expired")
	_, err = New(srv.URL, WithTokenSource(&fakeTokens{err: expired})).Me(context.Background())
	require.ErrorIs(t, err, expired)
	assert.Zero(t, calls, "no request is sent without a token")
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url).Login(context.Background(), "a@example.com", "secret1")
	require.ErrorIs(t, err, ErrNetwork)
}

func TestUnavailableIsRetryable(t *testing.T) {
	for _, status := range []int{http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, status, map[string]string{"error": "service temporarily unavailable, retry later"})
			})
			tokens := &fakeTokens{token: "tok"}
			c := New(srv.URL, WithTokenSource(tokens))

			_, err := c.Me(context.Background())
			require.ErrorIs(t, err, ErrNetwork)
			assert.False(t, errors.Is(err, ErrUnauthenticated))
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, status, apiErr.Status)
			assert.Zero(t, tokens.invalidated)
		})
	}
}

func TestListUsers(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "nina", r.URL.Query().Get("search"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Header().Set("X-Total-Count", "7")
		writeJSON(w, http.StatusOK, []map[string]string{{"id": "u6"}, {"id": "u7"}})
	})
	c := New(srv.URL, WithTokenSource(&fakeTokens{token: "tok"}))

	page, err := c.ListUsers(context.Background(), ListOptions{Search: "nina", Page: 2, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(7), page.Total)
	require.Len(t, page.Users, 2)
	assert.Equal(t, "u7", page.Users[1].ID)
}

func TestUploadAvatar(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, fh, err := r.FormFile("avatar")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "me.png", fh.Filename)
		assert.Equal(t, "image-bytes", string(data))
		writeJSON(w, http.StatusOK, map[string]string{"id": "u1", "avatar": "https://cdn.test/a.png"})
	})
	c := New(srv.URL, WithTokenSource(&fakeTokens{token: "tok"}))

	u, err := c.UploadAvatar(context.Background(), "me.png", strings.NewReader("image-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/a.png", u.Avatar)
}

func TestUpdateUserSendsOnlySetFields(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/users/u1", r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"role":"ADMIN"}`, string(data))
		writeJSON(w, http.StatusOK, map[string]string{"id": "u1", "role": "ADMIN"})
	})
	c := New(srv.URL, WithTokenSource(&fakeTokens{token: "tok"}))

	role := "ADMIN"
	u, err := c.UpdateUser(context.Background(), "u1", UpdateUserRequest{Role: &role})
	require.NoError(t, err)
	assert.Equal(t, "ADMIN", u.Role)
}
