// Package store is the credential store: persistence of user accounts with
// email uniqueness enforced by the backend itself.
package store

import (
	"context"

	"github.com/princinho/eldercarebackend/models"
)

// UserStore persists accounts. Implementations must enforce email
// uniqueness atomically and report violations as
// apperrors.ErrDuplicateEmail; application-level pre-checks are only a
// fast path. Lookups of unknown ids or emails return apperrors.ErrNotFound.
// Only FindByEmail and PasswordHash return the password hash.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	PasswordHash(ctx context.Context, id string) (string, error)
	List(ctx context.Context, f models.UserFilter) ([]models.User, int64, error)
	Update(ctx context.Context, id string, patch models.UserPatch) (*models.User, error)
	Delete(ctx context.Context, id string) (*models.User, error)
}
