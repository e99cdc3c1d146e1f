package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/princinho/eldercarebackend/apperrors"
	"github.com/princinho/eldercarebackend/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const UsersCollection = "users"

// Projection applied to reads by id and to listings. FindByEmail keeps the
// hash because login needs it.
var withoutPassword = bson.M{"passwordHash": 0}

type MongoUserStore struct {
	col     *mongo.Collection
	timeout time.Duration
}

func NewMongoUserStore(db *mongo.Database, timeout time.Duration) *MongoUserStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MongoUserStore{col: db.Collection(UsersCollection), timeout: timeout}
}

// EnsureIndexes creates the unique email index that backs the duplicate
// registration guarantee.
func (s *MongoUserStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	if err != nil {
		return classify("create email index", err)
	}
	return nil
}

func (s *MongoUserStore) Create(ctx context.Context, u *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if u.ID.IsZero() {
		u.ID = bson.NewObjectID()
	}
	if _, err := s.col.InsertOne(ctx, u); err != nil {
		return classify("insert user", err)
	}
	return nil
}

func (s *MongoUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var user models.User
	opts := options.FindOne().SetProjection(withoutPassword)
	if err := s.col.FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&user); err != nil {
		return nil, classify("find user by id", err)
	}
	return &user, nil
}

func (s *MongoUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var user models.User
	if err := s.col.FindOne(ctx, bson.M{"email": email}).Decode(&user); err != nil {
		return nil, classify("find user by email", err)
	}
	return &user, nil
}

// PasswordHash returns the stored hash for id. Every other read by id
// strips it.
func (s *MongoUserStore) PasswordHash(ctx context.Context, id string) (string, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return "", apperrors.ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var user models.User
	opts := options.FindOne().SetProjection(bson.M{"passwordHash": 1})
	if err := s.col.FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&user); err != nil {
		return "", classify("find password hash", err)
	}
	return user.PasswordHash, nil
}

func searchFilter(search string) bson.M {
	filter := bson.M{}
	if q := strings.TrimSpace(search); q != "" {
		pattern := regexp.QuoteMeta(q)
		filter["$or"] = bson.A{
			bson.M{"name": bson.M{"$regex": pattern, "$options": "i"}},
			bson.M{"email": bson.M{"$regex": pattern, "$options": "i"}},
		}
	}
	return filter
}

func (s *MongoUserStore) List(ctx context.Context, f models.UserFilter) ([]models.User, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := searchFilter(f.Search)
	opts := options.Find().
		SetProjection(withoutPassword).
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if f.Skip > 0 {
		opts.SetSkip(f.Skip)
	}
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}

	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, classify("list users", err)
	}
	defer cursor.Close(ctx)

	items := make([]models.User, 0)
	for cursor.Next(ctx) {
		var u models.User
		if err := cursor.Decode(&u); err != nil {
			return nil, 0, fmt.Errorf("decode user: %w", err)
		}
		items = append(items, u)
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, classify("list users", err)
	}

	total, err := s.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, classify("count users", err)
	}
	return items, total, nil
}

func patchDocument(p models.UserPatch, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	if p.Email != nil {
		set["email"] = *p.Email
	}
	if p.PasswordHash != nil {
		set["passwordHash"] = *p.PasswordHash
	}
	if p.Name != nil {
		set["name"] = *p.Name
	}
	if p.Role != nil {
		set["role"] = *p.Role
	}
	if p.Avatar != nil {
		set["avatar"] = *p.Avatar
	}
	return bson.M{"$set": set}
}

func (s *MongoUserStore) Update(ctx context.Context, id string, patch models.UserPatch) (*models.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(withoutPassword)

	var user models.User
	err = s.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, patchDocument(patch, time.Now().UTC()), opts).Decode(&user)
	if err != nil {
		return nil, classify("update user", err)
	}
	return &user, nil
}

func (s *MongoUserStore) Delete(ctx context.Context, id string) (*models.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var user models.User
	opts := options.FindOneAndDelete().SetProjection(withoutPassword)
	if err := s.col.FindOneAndDelete(ctx, bson.M{"_id": oid}, opts).Decode(&user); err != nil {
		return nil, classify("delete user", err)
	}
	return &user, nil
}

// classify maps driver errors onto the application error kinds.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%s: %w", op, apperrors.ErrNotFound)
	case IsDuplicateKey(err):
		return fmt.Errorf("%s: %w", op, apperrors.ErrDuplicateEmail)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, mongo.ErrClientDisconnected):
		return fmt.Errorf("%s: %w: %v", op, apperrors.ErrStoreUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// IsDuplicateKey reports whether err is a unique index violation (E11000).
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsDuplicateKeyError(err) {
		return true
	}

	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 || e.Code == 11001 {
				return true
			}
		}
	}

	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, e := range bwe.WriteErrors {
			if e.Code == 11000 || e.Code == 11001 {
				return true
			}
		}
	}

	return strings.Contains(err.Error(), "E11000 duplicate key error")
}
