package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/princinho/eldercarebackend/apperrors"
	"github.com/princinho/eldercarebackend/models"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// MemoryUserStore keeps accounts in process memory. Writes are serialized
// so the email uniqueness check and the insert are a single atomic step,
// which gives the same guarantee as the unique index on the Mongo side.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[bson.ObjectID]models.User
	byEmail map[string]bson.ObjectID
	now     func() time.Time
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[bson.ObjectID]models.User),
		byEmail: make(map[string]bson.ObjectID),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryUserStore) Create(ctx context.Context, u *models.User) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("insert user: %w", apperrors.ErrStoreUnavailable)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[u.Email]; exists {
		return fmt.Errorf("insert user: %w", apperrors.ErrDuplicateEmail)
	}
	if u.ID.IsZero() {
		u.ID = bson.NewObjectID()
	}
	if _, exists := s.byID[u.ID]; exists {
		return fmt.Errorf("insert user: duplicate id %s", u.ID.Hex())
	}
	s.byID[u.ID] = *u
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *MemoryUserStore) lookup(id string) (models.User, bool) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return models.User{}, false
	}
	u, ok := s.byID[oid]
	return u, ok
}

func (s *MemoryUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.lookup(id)
	if !ok {
		return nil, fmt.Errorf("find user by id: %w", apperrors.ErrNotFound)
	}
	u = u.Stripped()
	return &u, nil
}

func (s *MemoryUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	oid, ok := s.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("find user by email: %w", apperrors.ErrNotFound)
	}
	u := s.byID[oid]
	return &u, nil
}

func (s *MemoryUserStore) PasswordHash(ctx context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.lookup(id)
	if !ok {
		return "", fmt.Errorf("find password hash: %w", apperrors.ErrNotFound)
	}
	return u.PasswordHash, nil
}

func matches(u models.User, search string) bool {
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(u.Name), search) ||
		strings.Contains(strings.ToLower(u.Email), search)
}

func (s *MemoryUserStore) List(ctx context.Context, f models.UserFilter) ([]models.User, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	all := make([]models.User, 0, len(s.byID))
	for _, u := range s.byID {
		if matches(u, search) {
			all = append(all, u.Stripped())
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID.Hex() > all[j].ID.Hex()
	})

	total := int64(len(all))
	start := min(max(f.Skip, 0), total)
	end := total
	if f.Limit > 0 && start+f.Limit < end {
		end = start + f.Limit
	}
	return all[start:end], total, nil
}

func (s *MemoryUserStore) Update(ctx context.Context, id string, patch models.UserPatch) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.lookup(id)
	if !ok {
		return nil, fmt.Errorf("update user: %w", apperrors.ErrNotFound)
	}

	if patch.Email != nil && *patch.Email != u.Email {
		if _, taken := s.byEmail[*patch.Email]; taken {
			return nil, fmt.Errorf("update user: %w", apperrors.ErrDuplicateEmail)
		}
		delete(s.byEmail, u.Email)
		u.Email = *patch.Email
		s.byEmail[u.Email] = u.ID
	}
	if patch.PasswordHash != nil {
		u.PasswordHash = *patch.PasswordHash
	}
	if patch.Name != nil {
		u.Name = *patch.Name
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	if patch.Avatar != nil {
		u.Avatar = *patch.Avatar
	}
	u.UpdatedAt = s.now()
	s.byID[u.ID] = u

	out := u.Stripped()
	return &out, nil
}

func (s *MemoryUserStore) Delete(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.lookup(id)
	if !ok {
		return nil, fmt.Errorf("delete user: %w", apperrors.ErrNotFound)
	}
	delete(s.byID, u.ID)
	delete(s.byEmail, u.Email)

	out := u.Stripped()
	return &out, nil
}
