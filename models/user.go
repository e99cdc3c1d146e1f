package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

const DefaultAvatar = "https://via.placeholder.com/100"

// NormalizeRole returns the canonical (upper-case) form of a role string.
func NormalizeRole(role string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(role)))
}

// Valid reports whether r is one of the known canonical roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type User struct {
	ID           bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string        `bson:"email" json:"email"`
	PasswordHash string        `bson:"passwordHash" json:"-"` // never expose
	Name         string        `bson:"name" json:"name"`
	Role         Role          `bson:"role" json:"role"`
	Avatar       string        `bson:"avatar" json:"avatar"`
	CreatedAt    time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// Stripped returns a copy of the user safe to hand to any read path.
func (u User) Stripped() User {
	u.PasswordHash = ""
	return u
}

// UserPatch carries a partial update. Nil fields are left untouched.
type UserPatch struct {
	Email        *string
	PasswordHash *string
	Name         *string
	Role         *Role
	Avatar       *string
}

func (p UserPatch) Empty() bool {
	return p.Email == nil && p.PasswordHash == nil && p.Name == nil && p.Role == nil && p.Avatar == nil
}

// UserFilter selects users for listing. Search is a case-insensitive
// substring matched against name and email.
type UserFilter struct {
	Search string
	Skip   int64
	Limit  int64
}
