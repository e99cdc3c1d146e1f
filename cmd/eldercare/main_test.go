package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/princinho/eldercarebackend/auth"
	"github.com/princinho/eldercarebackend/controllers"
	"github.com/princinho/eldercarebackend/services"
	"github.com/princinho/eldercarebackend/store"
	"github.com/princinho/eldercarebackend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type harness struct {
	server    *httptest.Server
	sessionDB string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := auth.NewTokenIssuer("cli-test-secret", time.Hour)
	require.NoError(t, err)
	deps := services.Deps{
		Users:  store.NewMemoryUserStore(),
		Hasher: auth.NewBcryptHasher(bcrypt.MinCost),
		Tokens: tokens,
	}
	users := services.NewUserService(deps)
	_, err = users.EnsureAdmin(context.Background(), "admin@example.com", "admin-pass", "Admin")
	require.NoError(t, err)

	router := controllers.NewRouter(&controllers.Server{
		Auth:   services.NewAuthService(deps),
		Users:  users,
		Tokens: tokens,
		Limits: utils.QueryLimits{Default: 20, Max: 100},
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &harness{server: srv, sessionDB: filepath.Join(t.TempDir(), "session.db")}
}

// run executes one CLI invocation with stdin as input.
func (h *harness) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &out, &errOut)
	cmd.SetArgs(append([]string{"--server", h.server.URL, "--session-db", h.sessionDB}, args...))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestCLI_AdminFlow(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run(t, "admin-pass\n", "login", "--email", "admin@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as admin@example.com (ADMIN)")

	// the session survives between invocations
	out, _, err = h.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "admin@example.com")

	out, _, err = h.run(t, "nina-pass\n", "users", "create", "--email", "nina@example.com", "--name", "Nina")
	require.NoError(t, err)
	assert.Contains(t, out, "nina@example.com")

	out, _, err = h.run(t, "", "users", "list", "--search", "NINA")
	require.NoError(t, err)
	assert.Contains(t, out, "nina@example.com")
	assert.Contains(t, out, "1 of 1 users")
	assert.NotContains(t, out, "admin@example.com")

	_, _, err = h.run(t, "", "users", "get", "missing-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user not found")

	out, _, err = h.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	_, _, err = h.run(t, "", "users", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestCLI_RegisterAndForbidden(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run(t, "secret12\n", "register", "--email", "Paul@Example.com", "--name", "Paul")
	require.NoError(t, err)
	assert.Contains(t, out, "paul@example.com (USER)")

	_, _, err = h.run(t, "", "users", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient role")

	// a forbidden call does not end the session
	out, _, err = h.run(t, "", "whoami", "--local")
	require.NoError(t, err)
	assert.Contains(t, out, "paul@example.com")
}

func TestCLI_BadCredentials(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run(t, "wrong\n", "login", "--email", "admin@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credentials")

	_, _, err = h.run(t, "", "whoami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestCLI_MissingInput(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run(t, "", "login", "--email", "admin@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no input")
}

func TestCLI_Version(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd(strings.NewReader(""), &out, &out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "eldercare version "+Version+"\n", out.String())
}
