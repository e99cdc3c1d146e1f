package store

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/princinho/eldercarebackend/apperrors"
	"github.com/princinho/eldercarebackend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(email, name string, created time.Time) *models.User {
	return &models.User{
		Email:        email,
		PasswordHash: "hash-" + email,
		Name:         name,
		Role:         models.RoleUser,
		Avatar:       models.DefaultAvatar,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func TestMemoryUserStore_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUserStore()

	u := newUser("a@x.com", "A", time.Now())
	require.NoError(t, s.Create(ctx, u))
	require.False(t, u.ID.IsZero())

	byID, err := s.FindByID(ctx, u.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", byID.Email)
	assert.Empty(t, byID.PasswordHash, "reads by id are stripped")

	byEmail, err := s.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "hash-a@x.com", byEmail.PasswordHash)

	hash, err := s.PasswordHash(ctx, u.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "hash-a@x.com", hash)
}

func TestMemoryUserStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUserStore()

	_, err := s.FindByID(ctx, "not-an-object-id")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = s.FindByID(ctx, "65f0c0ffee0000000000abcd")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = s.FindByEmail(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = s.Update(ctx, "65f0c0ffee0000000000abcd", models.UserPatch{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = s.Delete(ctx, "65f0c0ffee0000000000abcd")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMemoryUserStore_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUserStore()

	require.NoError(t, s.Create(ctx, newUser("a@x.com", "A", time.Now())))
	err := s.Create(ctx, newUser("a@x.com", "Other", time.Now()))
	require.ErrorIs(t, err, apperrors.ErrDuplicateEmail)

	_, total, err := s.List(ctx, models.UserFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestMemoryUserStore_ConcurrentCreateSameEmail(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUserStore()

	var ok, dup atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Create(ctx, newUser("race@x.com", "R", time.Now()))
			switch {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, apperrors.ErrDuplicateEmail):
				dup.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, 31, dup.Load())
}

func TestMemoryUserStore_UpdateEmailUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUserStore()

	a := newUser("a@x.com", "A", time.Now())
	b := newUser("b@x.com", "B", time.Now())
	require.NoError(t, s.Create(ctx, a))
	require.NoError(t, s.Create(ctx, b))

	taken := "a@x.com"
	_, err := s.Update(ctx, b.ID.Hex(), models.UserPatch{Email: &taken})
	require.ErrorIs(t, err, apperrors.ErrDuplicateEmail)

	fresh := "c@x.com"
	name := "Bee"
	updated, err := s.Update(ctx, b.ID.Hex(), models.UserPatch{Email: &fresh, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "c@x.com", updated.Email)
	assert.Equal(t, "Bee", updated.Name)
	assert.Empty(t, updated.PasswordHash)

	_, err = s.FindByEmail(ctx, "b@x.com")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = s.FindByEmail(ctx, "c@x.com")
	assert.NoError(t, err)
}

func TestMemoryUserStore_ListSearchAndPaging(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUserStore()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Create(ctx, newUser(fmt.Sprintf("user%d@x.com", i), fmt.Sprintf("User %d", i), base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, s.Create(ctx, newUser("grandma@care.org", "Margaret", base.Add(time.Hour))))

	items, total, err := s.List(ctx, models.UserFilter{Search: "MARG"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "grandma@care.org", items[0].Email)

	items, total, err = s.List(ctx, models.UserFilter{Search: "x.com", Skip: 1, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, items, 2)
	assert.Equal(t, "user3@x.com", items[0].Email, "newest first")
	assert.Equal(t, "user2@x.com", items[1].Email)

	items, _, err = s.List(ctx, models.UserFilter{Skip: 50})
	require.NoError(t, err)
	assert.Empty(t, items)

	items, _, err = s.List(ctx, models.UserFilter{Skip: math.MaxInt64, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, items)

	items, _, err = s.List(ctx, models.UserFilter{Skip: -20, Limit: 2})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "grandma@care.org", items[0].Email)
}

func TestMemoryUserStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUserStore()

	u := newUser("a@x.com", "A", time.Now())
	require.NoError(t, s.Create(ctx, u))

	deleted, err := s.Delete(ctx, u.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, u.ID, deleted.ID)

	_, err = s.FindByID(ctx, u.ID.Hex())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, s.Create(ctx, newUser("a@x.com", "A again", time.Now())), "email is free after delete")
}
