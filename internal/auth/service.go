package auth

import (
	"log/slog"
	"strconv"

	"github.com/operio-app/operio/internal"
	"github.com/operio-app/operio/internal/session"
	"github.com/operio-app/operio/internal/user"
)

// UserDirectory is the lookup collaborator that resolves token claims to a
// live account.
type UserDirectory interface {
	GetActiveUser(id int64) (*user.User, error)
	VerifyCredentials(email, password string) (*user.User, error)
}

// SessionRecorder is the slice of the session store the authenticator
// drives: best-effort creation at login, fire-and-forget activity bumps,
// and ending on logout.
type SessionRecorder interface {
	CreateSession(userID int64, rawToken string, meta session.ClientMeta, loginMethod string) (*session.Session, error)
	RecordActivity(rawToken string)
	EndSession(rawToken string, reason session.EndReason) error
}

// Service verifies bearer tokens and resolves principals. It is the single
// gate every authenticated request passes through.
type Service struct {
	tokens    TokenGeneratorAPI
	directory UserDirectory
	sessions  SessionRecorder
	logger    *slog.Logger
}

func NewService(tokens TokenGeneratorAPI, directory UserDirectory, sessions SessionRecorder, logger *slog.Logger) *Service {
	return &Service{
		tokens:    tokens,
		directory: directory,
		sessions:  sessions,
		logger:    logger,
	}
}

// Authenticate verifies the Authorization header and returns the principal.
// On success it schedules a session-activity bump keyed by the token; that
// side effect never blocks and its failure never reaches the caller.
func (s *Service) Authenticate(authorizationHeader string, meta session.ClientMeta) (*internal.Principal, error) {
	rawToken, err := ExtractBearer(authorizationHeader)
	if err != nil {
		return nil, err
	}

	claims, err := s.tokens.ValidateToken(rawToken)
	if err != nil {
		return nil, err
	}

	principal, err := s.resolvePrincipal(claims)
	if err != nil {
		return nil, err
	}

	s.sessions.RecordActivity(rawToken)

	return principal, nil
}

// Refresh issues a fresh token pair for a token whose signature still
// verifies, even if its expiry has passed. Refreshing is a token operation:
// no new session row is created.
func (s *Service) Refresh(rawToken string) (AuthTokens, error) {
	claims, err := s.tokens.ParseExpiredToken(rawToken)
	if err != nil {
		return AuthTokens{}, err
	}

	principal, err := s.resolvePrincipal(claims)
	if err != nil {
		return AuthTokens{}, err
	}

	accessToken, err := s.tokens.GenerateAccessToken(principal.ID, principal.Email, principal.Role)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to issue access token", err)
	}
	refreshToken, err := s.tokens.GenerateRefreshToken(principal.ID, principal.Email, principal.Role)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to issue refresh token", err)
	}

	return AuthTokens{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Login verifies credentials, issues tokens and records the login session.
// Session persistence is best-effort: a failing session write is logged and
// the login still succeeds.
func (s *Service) Login(dto LoginDTO, meta session.ClientMeta) (AuthTokens, error) {
	if err := dto.Validate(); err != nil {
		return AuthTokens{}, err
	}

	account, err := s.directory.VerifyCredentials(dto.Email, dto.Password)
	if err != nil {
		return AuthTokens{}, err
	}

	accessToken, err := s.tokens.GenerateAccessToken(account.ID, account.Email, account.Role)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to issue access token", err)
	}
	refreshToken, err := s.tokens.GenerateRefreshToken(account.ID, account.Email, account.Role)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to issue refresh token", err)
	}

	if _, err := s.sessions.CreateSession(account.ID, accessToken, meta, "password"); err != nil {
		s.logger.Error("failed to record login session", "user_id", account.ID, "error", err)
	}

	return AuthTokens{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Logout validates the token and ends its session. Ending an already-ended
// session is a no-op, so a double-submitted logout succeeds.
func (s *Service) Logout(rawToken string) error {
	if _, err := s.tokens.ValidateToken(rawToken); err != nil {
		return err
	}
	return s.sessions.EndSession(rawToken, session.EndReasonLogout)
}

func (s *Service) resolvePrincipal(claims *Claims) (*internal.Principal, error) {
	userID, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil {
		s.logger.Warn("token carries malformed user id", "value", claims.UserID)
		return nil, internal.ErrInvalidToken
	}

	account, err := s.directory.GetActiveUser(userID)
	if err != nil {
		if appErr, ok := internal.IsAppError(err); ok {
			return nil, appErr
		}
		return nil, internal.NewInternalError("user directory lookup failed", err)
	}

	return account.ToPrincipal(), nil
}
