package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/princinho/eldercarebackend/apperrors"
	"github.com/princinho/eldercarebackend/auth"
	"github.com/princinho/eldercarebackend/logging"
	"github.com/princinho/eldercarebackend/models"
	"github.com/princinho/eldercarebackend/storage"
	"go.uber.org/zap"
)

type accountInput struct {
	Email    string
	Password string
	Name     string
	Role     string
	Avatar   string
}

// createAccount validates, hashes and inserts a new account. The email
// pre-check is only a fast path: the store's unique constraint decides.
func createAccount(ctx context.Context, d *Deps, in accountInput, caller *auth.Identity) (*models.User, error) {
	email := d.Emails.Normalize(in.Email)
	if !validEmail(email) {
		return nil, apperrors.Validation("invalid email address")
	}
	if len(in.Password) < minPasswordLength {
		return nil, apperrors.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	name := normalizeName(in.Name)
	if name == "" {
		return nil, apperrors.Validation("name is required")
	}

	role := models.RoleUser
	if strings.TrimSpace(in.Role) != "" {
		role = models.NormalizeRole(in.Role)
		if !role.Valid() {
			return nil, apperrors.Validation("role must be USER or ADMIN")
		}
	}
	if role == models.RoleAdmin && (caller == nil || models.NormalizeRole(string(caller.Role)) != models.RoleAdmin) {
		return nil, fmt.Errorf("create admin account: %w", apperrors.ErrForbidden)
	}

	if _, err := d.Users.FindByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("create account: %w", apperrors.ErrDuplicateEmail)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	hash, err := d.Hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	avatar := strings.TrimSpace(in.Avatar)
	if avatar == "" {
		avatar = models.DefaultAvatar
	}

	now := d.Now()
	u := &models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         role,
		Avatar:       avatar,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.Users.Create(ctx, u); err != nil {
		return nil, err
	}
	stripped := u.Stripped()
	return &stripped, nil
}

type CreateUserInput struct {
	Email    string
	Password string
	Name     string
	Role     string
	Avatar   string
}

// UpdateUserInput is a partial update; nil fields are left untouched.
type UpdateUserInput struct {
	Email    *string
	Password *string
	Name     *string
	Role     *string
	Avatar   *string
}

type UpdateProfileInput struct {
	Name   *string
	Avatar *string
}

type UserService struct {
	deps Deps
}

func NewUserService(deps Deps) *UserService {
	deps.defaults()
	return &UserService{deps: deps}
}

// Create adds an account on behalf of an admin.
func (s *UserService) Create(ctx context.Context, in CreateUserInput, caller *auth.Identity) (*models.User, error) {
	u, err := createAccount(ctx, &s.deps, accountInput(in), caller)
	if err != nil {
		return nil, err
	}
	s.deps.Log.Info("user created",
		zap.String("user_id", u.ID.Hex()),
		zap.String("email", logging.MaskEmail(u.Email)),
		zap.String("role", string(u.Role)),
	)
	return u, nil
}

func (s *UserService) List(ctx context.Context, f models.UserFilter) ([]models.User, int64, error) {
	f.Search = strings.TrimSpace(f.Search)
	users, total, err := s.deps.Users.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	if users == nil {
		users = []models.User{}
	}
	return users, total, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	return s.deps.Users.FindByID(ctx, id)
}

// Update applies an admin patch. A changed email is checked for
// uniqueness again and a new password is re-hashed.
func (s *UserService) Update(ctx context.Context, id string, in UpdateUserInput) (*models.User, error) {
	var patch models.UserPatch

	if in.Email != nil {
		email := s.deps.Emails.Normalize(*in.Email)
		if !validEmail(email) {
			return nil, apperrors.Validation("invalid email address")
		}
		patch.Email = &email
	}
	if in.Password != nil {
		if len(*in.Password) < minPasswordLength {
			return nil, apperrors.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
		}
		hash, err := s.deps.Hasher.Hash(*in.Password)
		if err != nil {
			return nil, err
		}
		patch.PasswordHash = &hash
	}
	if in.Name != nil {
		name := normalizeName(*in.Name)
		if name == "" {
			return nil, apperrors.Validation("name cannot be empty")
		}
		patch.Name = &name
	}
	if in.Role != nil {
		role := models.NormalizeRole(*in.Role)
		if !role.Valid() {
			return nil, apperrors.Validation("role must be USER or ADMIN")
		}
		patch.Role = &role
	}
	if in.Avatar != nil {
		avatar := avatarOrDefault(*in.Avatar)
		patch.Avatar = &avatar
	}

	if patch.Empty() {
		return s.Get(ctx, id)
	}
	u, err := s.deps.Users.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.deps.Log.Info("user updated", zap.String("user_id", id))
	return u, nil
}

// Delete removes an account permanently and returns what was removed.
func (s *UserService) Delete(ctx context.Context, id string) (*models.User, error) {
	u, err := s.deps.Users.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.deps.Log.Info("user deleted", zap.String("user_id", id))
	s.removeAvatarObject(ctx, id, u.Avatar)
	return u, nil
}

// UpdateProfile is the self-service edit. The avatar can only be reset to
// the placeholder or pointed at an image this account uploaded.
func (s *UserService) UpdateProfile(ctx context.Context, id string, in UpdateProfileInput) (*models.User, error) {
	if in.Avatar != nil {
		avatar := avatarOrDefault(*in.Avatar)
		if avatar != models.DefaultAvatar && !s.ownsAvatar(id, avatar) {
			return nil, apperrors.Validation("avatar must be uploaded through /users/profile/avatar")
		}
	}
	return s.Update(ctx, id, UpdateUserInput{Name: in.Name, Avatar: in.Avatar})
}

// ChangePassword replaces the caller's password after checking the
// current one. A wrong current password is a validation failure, not an
// authentication failure: the caller's session stays valid.
func (s *UserService) ChangePassword(ctx context.Context, id, current, next string) error {
	hash, err := s.deps.Users.PasswordHash(ctx, id)
	if err != nil {
		return err
	}
	if !s.deps.Hasher.Verify(current, hash) {
		return apperrors.Validation("current password is incorrect")
	}
	if _, err := s.Update(ctx, id, UpdateUserInput{Password: &next}); err != nil {
		return err
	}
	s.deps.Log.Info("password changed", zap.String("user_id", id))
	return nil
}

// UploadAvatar validates an image, stores it and points the account's
// avatar at it. The previous uploaded image, if any, is removed.
func (s *UserService) UploadAvatar(ctx context.Context, id, filename string, size int64, body io.ReadSeeker) (*models.User, error) {
	if s.deps.Avatars == nil || s.deps.Validator == nil {
		return nil, apperrors.Validation("avatar uploads are not enabled")
	}

	current, err := s.deps.Users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	contentType, err := s.deps.Validator.Validate(filename, size, body)
	if err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	objectName := storage.AvatarObjectName(id, filename)
	url, err := s.deps.Avatars.Put(ctx, objectName, contentType, body)
	if err != nil {
		return nil, fmt.Errorf("store avatar: %w", err)
	}

	u, err := s.deps.Users.Update(ctx, id, models.UserPatch{Avatar: &url})
	if err != nil {
		if delErr := s.deps.Avatars.Delete(ctx, objectName); delErr != nil {
			s.deps.Log.Warn("failed to remove orphaned avatar", zap.String("object", objectName), zap.Error(delErr))
		}
		return nil, err
	}

	s.removeAvatarObject(ctx, id, current.Avatar)
	s.deps.Log.Info("avatar uploaded", zap.String("user_id", id), zap.String("object", objectName))
	return u, nil
}

// avatarObject returns the stored object behind avatarURL when it sits
// under userID's prefix. URLs pointing at another account's objects are
// never resolved.
func (s *UserService) avatarObject(userID, avatarURL string) (string, bool) {
	if s.deps.Avatars == nil {
		return "", false
	}
	name, ok := s.deps.Avatars.ObjectName(avatarURL)
	if !ok || !strings.HasPrefix(name, storage.AvatarPrefix(userID)) || strings.Contains(name, "..") {
		return "", false
	}
	return name, true
}

func (s *UserService) ownsAvatar(userID, avatarURL string) bool {
	_, ok := s.avatarObject(userID, avatarURL)
	return ok
}

func (s *UserService) removeAvatarObject(ctx context.Context, userID, avatarURL string) {
	name, ok := s.avatarObject(userID, avatarURL)
	if !ok {
		return
	}
	if err := s.deps.Avatars.Delete(ctx, name); err != nil {
		s.deps.Log.Warn("failed to remove previous avatar", zap.String("object", name), zap.Error(err))
	}
}

// EnsureAdmin creates an admin account unless the email is already taken.
// It reports whether an account was created.
func (s *UserService) EnsureAdmin(ctx context.Context, email, password, name string) (bool, error) {
	system := &auth.Identity{Role: models.RoleAdmin}
	_, err := s.Create(ctx, CreateUserInput{
		Email:    email,
		Password: password,
		Name:     name,
		Role:     string(models.RoleAdmin),
	}, system)
	if errors.Is(err, apperrors.ErrDuplicateEmail) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func avatarOrDefault(avatar string) string {
	if avatar = strings.TrimSpace(avatar); avatar == "" {
		return models.DefaultAvatar
	}
	return avatar
}
