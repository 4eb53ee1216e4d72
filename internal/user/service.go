package user

import (
	"errors"
	"log/slog"

	"github.com/operio-app/operio/internal"
	"golang.org/x/crypto/bcrypt"
)

// Service is the user-directory collaborator: lookup-by-id for the
// authenticator and credential verification for the login entry point.
type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// GetActiveUser resolves an id to a directory record. A missing or
// deactivated user both map to ErrInvalidUser so callers cannot tell the
// two apart from the response.
func (s *Service) GetActiveUser(id int64) (*User, error) {
	u, err := s.repo.GetByID(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, internal.ErrInvalidUser
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, internal.ErrInvalidUser
	}
	return u, nil
}

// VerifyCredentials checks an email/password pair against the directory.
// Unknown user, wrong password and inactive account all return the same
// invalid-credentials error.
func (s *Service) VerifyCredentials(email, password string) (*User, error) {
	u, err := s.repo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, internal.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, internal.ErrInvalidCredentials
	}

	if !u.IsActive {
		s.logger.Warn("login attempt for inactive user", "user_id", u.ID)
		return nil, internal.ErrInvalidCredentials
	}

	return u, nil
}
