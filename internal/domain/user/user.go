package user

import (
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already in use")
)

// Role is the fixed role set of the platform. Roles are mutable after
// creation, which is why authorization reads them from the store rather
// than from token claims.
type Role string

const (
	RoleMusician    Role = "musician"
	RoleProducer    Role = "producer"
	RoleBandManager Role = "band_manager"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleMusician, RoleProducer, RoleBandManager:
		return true
	default:
		return false
	}
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Phone        string    `json:"phone,omitempty"`
	Bio          string    `json:"bio,omitempty"`
	Role         Role      `json:"role"`
	IsVerified   bool      `json:"isVerified"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CreateRequest is what a store needs to persist a new account. The
// password arrives pre-hashed; stores never see plaintext.
type CreateRequest struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Phone        string
	Role         Role
}

// Identity is the per-request resolved identity, sourced from the store
// at request time, never from token claims.
type Identity struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	IsVerified bool   `json:"isVerified"`
}
