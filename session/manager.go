// Package session owns the client side of authentication: the current
// token and profile, their persistence, and the logout that follows an
// expired or rejected token.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/princinho/eldercarebackend/client"
	"go.uber.org/zap"
)

type State int

const (
	LoggedOut State = iota
	Authenticating
	LoggedIn
	Error
)

func (s State) String() string {
	switch s {
	case LoggedOut:
		return "logged_out"
	case Authenticating:
		return "authenticating"
	case LoggedIn:
		return "logged_in"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrBusy        = errors.New("an authentication request is already in flight")
	ErrLoggedIn    = errors.New("already logged in, log out first")
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrSessionExpired is returned by Token when the stored token has
	// already expired. It matches client.ErrUnauthenticated.
	ErrSessionExpired = fmt.Errorf("%w: token expired", client.ErrUnauthenticated)
)

// Authenticator is the part of the API client the manager calls.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*client.AuthResponse, error)
	Register(ctx context.Context, in client.RegisterRequest) (*client.AuthResponse, error)
}

// Event describes one state transition.
type Event struct {
	From    State
	To      State
	Message string
}

type Option func(*Manager)

func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager is safe for concurrent use. Observers are called outside the
// lock, in registration order.
type Manager struct {
	api   Authenticator
	store Store
	log   *zap.Logger
	now   func() time.Time

	// persistMu is held across a state check and the store write that must
	// agree with it. Lock order: persistMu, then mu.
	persistMu sync.Mutex

	mu        sync.Mutex
	state     State
	token     string
	user      *client.User
	message   string
	observers map[int]func(Event)
	nextObs   int
}

var _ client.TokenSource = (*Manager)(nil)

func NewManager(api Authenticator, store Store, opts ...Option) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	m := &Manager{
		api:       api,
		store:     store,
		log:       zap.NewNop(),
		now:       time.Now,
		observers: make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers fn for every transition and returns a function that
// removes it.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.observers, id)
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError is the message stored by the last failed login or registration.
func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.message
}

// User returns a copy of the cached profile.
func (m *Manager) User() (client.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return client.User{}, false
	}
	return *m.user, true
}

func (m *Manager) Login(ctx context.Context, email, password string) (*client.User, error) {
	return m.authenticate(ctx, "login", func(ctx context.Context) (*client.AuthResponse, error) {
		return m.api.Login(ctx, email, password)
	})
}

func (m *Manager) Register(ctx context.Context, in client.RegisterRequest) (*client.User, error) {
	return m.authenticate(ctx, "register", func(ctx context.Context) (*client.AuthResponse, error) {
		return m.api.Register(ctx, in)
	})
}

func (m *Manager) authenticate(ctx context.Context, op string, call func(context.Context) (*client.AuthResponse, error)) (*client.User, error) {
	m.mu.Lock()
	switch m.state {
	case Authenticating:
		m.mu.Unlock()
		return nil, ErrBusy
	case LoggedIn:
		m.mu.Unlock()
		return nil, ErrLoggedIn
	}
	m.message = ""
	ev := m.transition(Authenticating, "")
	m.mu.Unlock()
	m.notify(ev)

	res, err := call(ctx)
	if err == nil && (res == nil || res.AccessToken == "") {
		err = errors.New("server returned no token")
	}
	if err == nil {
		err = m.store.Save(ctx, Snapshot{Token: res.AccessToken, User: &res.User})
		if err != nil {
			err = fmt.Errorf("persist session: %w", err)
		}
	}

	m.mu.Lock()
	if err != nil {
		m.message = errorMessage(err)
		ev = m.transition(Error, m.message)
		m.mu.Unlock()
		m.notify(ev)
		m.log.Info("authentication failed", zap.String("operation", op), zap.Error(err))
		return nil, err
	}
	u := res.User
	m.token = res.AccessToken
	m.user = &u
	ev = m.transition(LoggedIn, "")
	m.mu.Unlock()
	m.notify(ev)

	m.log.Debug("authenticated", zap.String("operation", op), zap.String("user_id", u.ID), zap.String("role", u.Role))
	return &u, nil
}

// Token returns the stored token for a protected request. An expired or
// undecodable token logs the session out first.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.state != LoggedIn || m.token == "" {
		m.mu.Unlock()
		return "", client.ErrUnauthenticated
	}
	token := m.token
	m.mu.Unlock()

	if !m.expired(token) {
		return token, nil
	}
	m.log.Info("stored token expired, logging out")
	m.clear(ctx, token, "session expired")
	return "", ErrSessionExpired
}

// Invalidate drops the session after the server rejected its token.
func (m *Manager) Invalidate(ctx context.Context) {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()
	if token == "" {
		return
	}
	m.log.Info("token rejected by server, logging out")
	m.clear(ctx, token, "session expired")
}

// clear logs out only if the session still holds token, so a stale 401 does
// not end a newer session.
func (m *Manager) clear(ctx context.Context, token, reason string) {
	m.persistMu.Lock()
	m.mu.Lock()
	if m.token != token || m.state != LoggedIn {
		m.mu.Unlock()
		m.persistMu.Unlock()
		return
	}
	m.token, m.user = "", nil
	ev := m.transition(LoggedOut, reason)
	m.mu.Unlock()

	if err := m.store.Clear(ctx); err != nil {
		m.log.Warn("failed to clear stored session", zap.Error(err))
	}
	m.persistMu.Unlock()
	m.notify(ev)
}

// Logout clears all local session state. No request is sent.
func (m *Manager) Logout(ctx context.Context) error {
	m.persistMu.Lock()
	m.mu.Lock()
	if m.state == Authenticating {
		m.mu.Unlock()
		m.persistMu.Unlock()
		return ErrBusy
	}
	m.token, m.user, m.message = "", nil, ""
	ev := m.transition(LoggedOut, "")
	m.mu.Unlock()

	err := m.store.Clear(ctx)
	m.persistMu.Unlock()
	m.notify(ev)
	return err
}

// Reset acknowledges a failed login and returns to LoggedOut.
func (m *Manager) Reset() {
	m.mu.Lock()
	if m.state != Error {
		m.mu.Unlock()
		return
	}
	m.message = ""
	ev := m.transition(LoggedOut, "")
	m.mu.Unlock()
	m.notify(ev)
}

// Restore loads the persisted session. A half-written pair or an expired
// token is wiped and leaves the manager logged out.
func (m *Manager) Restore(ctx context.Context) (State, error) {
	if st := m.State(); st != LoggedOut {
		return st, nil
	}
	snap, err := m.store.Load(ctx)
	if err != nil {
		return m.State(), err
	}

	if snap.Empty() {
		return m.State(), nil
	}
	if !snap.complete() || m.expired(snap.Token) {
		m.log.Info("discarding stored session", zap.Bool("complete", snap.complete()))
		return m.State(), m.store.Clear(ctx)
	}

	m.mu.Lock()
	if m.state != LoggedOut {
		st := m.state
		m.mu.Unlock()
		return st, nil
	}
	m.token = snap.Token
	m.user = snap.User
	ev := m.transition(LoggedIn, "")
	m.mu.Unlock()
	m.notify(ev)
	return LoggedIn, nil
}

// UpdateProfile replaces the cached profile, e.g. with the record the server
// returned after an edit. The token is unchanged. Nothing changes when the
// store write fails.
func (m *Manager) UpdateProfile(ctx context.Context, u client.User) error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	if m.state != LoggedIn {
		m.mu.Unlock()
		return ErrNotLoggedIn
	}
	snap := Snapshot{Token: m.token, User: &u}
	m.mu.Unlock()

	if err := m.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("persist profile: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = &u
	return nil
}

func (m *Manager) SetAvatar(ctx context.Context, avatarURL string) error {
	u, ok := m.User()
	if !ok {
		return ErrNotLoggedIn
	}
	u.Avatar = avatarURL
	return m.UpdateProfile(ctx, u)
}

// expired reports whether the token's exp claim has passed. The signature
// is not checked here; the server does that.
func (m *Manager) expired(token string) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !m.now().Before(claims.ExpiresAt.Time)
}

// transition must be called with mu held.
func (m *Manager) transition(to State, msg string) Event {
	ev := Event{From: m.state, To: to, Message: msg}
	m.state = to
	return ev
}

func (m *Manager) notify(ev Event) {
	if ev.From == ev.To {
		return
	}
	m.mu.Lock()
	ids := make([]int, 0, len(m.observers))
	for id := range m.observers {
		ids = append(ids, id)
	}
	fns := make([]func(Event), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, m.observers[id])
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func errorMessage(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
