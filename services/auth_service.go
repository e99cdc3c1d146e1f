// Package services holds the account use cases shared by the HTTP
// controllers and the admin commands.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/princinho/eldercarebackend/apperrors"
	"github.com/princinho/eldercarebackend/auth"
	"github.com/princinho/eldercarebackend/logging"
	"github.com/princinho/eldercarebackend/metrics"
	"github.com/princinho/eldercarebackend/models"
	"github.com/princinho/eldercarebackend/storage"
	"github.com/princinho/eldercarebackend/store"
	"go.uber.org/zap"
)

// Deps are the collaborators of both services. Avatars and Validator may
// be nil when uploads are disabled; Log and Metrics may be nil in tests.
type Deps struct {
	Users     store.UserStore
	Hasher    auth.PasswordHasher
	Tokens    *auth.TokenIssuer
	Emails    EmailNormalizer
	Avatars   storage.AvatarStore
	Validator *storage.FileValidator
	Log       *zap.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

func (d *Deps) defaults() {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
}

// AuthResult is returned by login and registration.
type AuthResult struct {
	AccessToken string      `json:"access_token"`
	User        models.User `json:"user"`
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Role     string
}

type AuthService struct {
	deps Deps

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(deps Deps) *AuthService {
	deps.defaults()
	return &AuthService{deps: deps}
}

// Login verifies credentials and issues an access token. Unknown emails and
// wrong passwords produce the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = s.deps.Emails.Normalize(email)

	u, err := s.deps.Users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.deps.Metrics.AuthResult("login", "error")
			return nil, err
		}
		// Spend the same hashing time as a real check.
		s.deps.Hasher.Verify(password, s.dummy())
		s.deps.Metrics.AuthResult("login", "invalid_credentials")
		s.deps.Log.Info("login rejected", zap.String("email", logging.MaskEmail(email)))
		return nil, apperrors.ErrInvalidCredentials
	}

	if !s.deps.Hasher.Verify(password, u.PasswordHash) {
		s.deps.Metrics.AuthResult("login", "invalid_credentials")
		s.deps.Log.Info("login rejected", zap.String("email", logging.MaskEmail(email)))
		return nil, apperrors.ErrInvalidCredentials
	}

	res, err := s.issue(u)
	if err != nil {
		s.deps.Metrics.AuthResult("login", "error")
		return nil, err
	}
	s.deps.Metrics.AuthResult("login", "ok")
	s.deps.Log.Debug("login succeeded", zap.String("user_id", u.ID.Hex()))
	return res, nil
}

// Register creates an account and logs it in. Only an authenticated admin
// caller may request the ADMIN role.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, caller *auth.Identity) (*AuthResult, error) {
	u, err := createAccount(ctx, &s.deps, accountInput{
		Email:    in.Email,
		Password: in.Password,
		Name:     in.Name,
		Role:     in.Role,
	}, caller)
	if err != nil {
		s.deps.Metrics.AuthResult("register", resultLabel(err))
		return nil, err
	}

	res, err := s.issue(u)
	if err != nil {
		s.deps.Metrics.AuthResult("register", "error")
		return nil, err
	}
	s.deps.Metrics.AuthResult("register", "ok")
	s.deps.Log.Info("user registered",
		zap.String("user_id", u.ID.Hex()),
		zap.String("email", logging.MaskEmail(u.Email)),
		zap.String("role", string(u.Role)),
	)
	return res, nil
}

// Profile returns what the caller's token says about them.
func (s *AuthService) Profile(id auth.Identity) auth.Identity {
	id.Role = models.NormalizeRole(string(id.Role))
	return id
}

func (s *AuthService) issue(u *models.User) (*AuthResult, error) {
	token, err := s.deps.Tokens.Issue(auth.Identity{
		UserID: u.ID.Hex(),
		Email:  u.Email,
		Role:   u.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResult{AccessToken: token, User: u.Stripped()}, nil
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.deps.Hasher.Hash("not-a-real-password")
	})
	return s.dummyHash
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return "invalid"
	case errors.Is(err, apperrors.ErrDuplicateEmail):
		return "duplicate"
	case errors.Is(err, apperrors.ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}
