package user

import (
	"errors"
	"time"

	"github.com/operio-app/operio/internal"
)

// User is the directory record behind every principal. The password hash
// never leaves this package except through CheckPassword.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

var ErrNotFound = errors.New("user not found")

// ToPrincipal converts a directory record into the request-scoped identity.
func (u *User) ToPrincipal() *internal.Principal {
	return &internal.Principal{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		Role:     u.Role,
		IsActive: u.IsActive,
	}
}

// RepositoryAPI is the persistence surface the directory service needs.
type RepositoryAPI interface {
	GetByID(id int64) (*User, error)
	GetByEmail(email string) (*User, error)
}

// DirectoryAPI is the lookup collaborator consumed by the authenticator.
type DirectoryAPI interface {
	GetActiveUser(id int64) (*User, error)
	VerifyCredentials(email, password string) (*User, error)
}
