package user

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when a user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when another user already has the email.
	ErrEmailTaken = errors.New("email already registered")
)

// Role is the authorization role of a user.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAdmin
}

// User is a storefront account.
type User struct {
	ID    string
	Name  string
	Email string
	Role  Role
}

// Repository provides user lookups and upserts.
type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	Upsert(ctx context.Context, u *User) error
}
