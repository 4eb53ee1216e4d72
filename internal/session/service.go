package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/operio-app/operio/internal"
	"github.com/operio-app/operio/internal/events"
)

const activityEventType = "session.activity"

// Service is the session store's business logic. Activity updates are
// dispatched through the event bus on detached goroutines: the response
// path never waits on them and their failures are logged, not raised.
type Service struct {
	repo       RepositoryAPI
	bus        *events.EventBus
	logger     *slog.Logger
	sessionTTL time.Duration
	now        func() time.Time
}

func NewService(repo RepositoryAPI, bus *events.EventBus, logger *slog.Logger, sessionTTL time.Duration) *Service {
	s := &Service{
		repo:       repo,
		bus:        bus,
		logger:     logger,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
	if bus != nil {
		bus.Subscribe(activityEventType, s.handleActivityEvent)
	}
	return s
}

// CreateSession persists a new active session for a fresh login. The
// session's expiry mirrors the issued token's TTL policy.
func (s *Service) CreateSession(userID int64, rawToken string, meta ClientMeta, loginMethod string) (*Session, error) {
	now := s.now()
	sess := &Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		TokenHash:      HashToken(rawToken),
		DeviceInfo:     ParseDeviceInfo(meta.UserAgent),
		IP:             meta.ClientIP(),
		LoginMethod:    loginMethod,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.sessionTTL),
		IsActive:       true,
	}

	if err := s.repo.Create(sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// RecordActivity schedules a best-effort bump of the session's
// last-activity timestamp. It returns immediately; the update runs on a
// detached handler and may not complete if the process exits first.
func (s *Service) RecordActivity(rawToken string) {
	s.bus.Publish(context.Background(), events.NewEvent(activityEventType, map[string]interface{}{
		"token_hash": HashToken(rawToken),
	}))
}

func (s *Service) handleActivityEvent(ctx context.Context, event events.Event) error {
	data, ok := event.Payload().(map[string]interface{})
	if !ok {
		return fmt.Errorf("unexpected payload for %s event", event.EventType())
	}
	tokenHash, _ := data["token_hash"].(string)
	if tokenHash == "" {
		return fmt.Errorf("activity event without token hash")
	}
	return s.repo.UpdateActivity(tokenHash, s.now())
}

// EndSession deactivates the session matching the token. Ending an
// already-ended or unknown session is a successful no-op; a duplicate
// logout must not fail.
func (s *Service) EndSession(rawToken string, reason EndReason) error {
	_, err := s.repo.EndByTokenHash(HashToken(rawToken), reason, s.now())
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// EndOwnSession ends one of the caller's sessions by id. The caller cannot
// end the session backing the current request; that path is logout.
func (s *Service) EndOwnSession(userID int64, sessionID, currentRawToken string) error {
	sess, err := s.repo.GetByID(sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return internal.ErrSessionNotFound
		}
		return err
	}
	if sess.UserID != userID {
		// not the caller's session; do not reveal that it exists
		return internal.ErrSessionNotFound
	}
	if sess.TokenHash == HashToken(currentRawToken) {
		return internal.ErrCannotEndCurrentSession
	}

	if _, err := s.repo.EndByID(sessionID, EndReasonRevoked, s.now()); err != nil {
		return fmt.Errorf("end session %s: %w", sessionID, err)
	}
	return nil
}

// AdminEndSession ends any session by id, regardless of owner.
func (s *Service) AdminEndSession(sessionID string) error {
	if _, err := s.repo.GetByID(sessionID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return internal.ErrSessionNotFound
		}
		return err
	}
	if _, err := s.repo.EndByID(sessionID, EndReasonRevoked, s.now()); err != nil {
		return fmt.Errorf("end session %s: %w", sessionID, err)
	}
	return nil
}

// GetActiveSessions lists the user's live sessions, most recently active
// first.
func (s *Service) GetActiveSessions(userID int64) ([]Session, error) {
	return s.repo.GetActiveByUser(userID, s.now())
}

// EndAllOtherSessions ends every active session of the user except the one
// backing the current token, returning how many were ended.
func (s *Service) EndAllOtherSessions(userID int64, currentRawToken string, reason EndReason) (int64, error) {
	count, err := s.repo.EndAllForUserExcept(userID, HashToken(currentRawToken), reason, s.now())
	if err != nil {
		return 0, fmt.Errorf("end other sessions: %w", err)
	}
	return count, nil
}

// EndAllSessionsForUser ends every active session of the user, used by the
// admin surface when an account is compromised or deactivated.
func (s *Service) EndAllSessionsForUser(userID int64, reason EndReason) (int64, error) {
	count, err := s.repo.EndAllForUser(userID, reason, s.now())
	if err != nil {
		return 0, fmt.Errorf("end all sessions: %w", err)
	}
	return count, nil
}

// IsSessionValid reports whether the token maps to a live, unexpired
// session. A token with no matching session is invalid.
func (s *Service) IsSessionValid(rawToken string) bool {
	sess, err := s.repo.GetByTokenHash(HashToken(rawToken))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("session validity lookup failed", "error", err)
		}
		return false
	}
	return sess.IsActive && sess.ExpiresAt.After(s.now())
}

// CleanExpiredSessions deactivates every active session whose expiry has
// passed, in one conditional bulk update. Safe to call repeatedly and from
// multiple instances; each row is affected at most once.
func (s *Service) CleanExpiredSessions() (int64, error) {
	count, err := s.repo.CleanExpired(s.now())
	if err != nil {
		return 0, fmt.Errorf("clean expired sessions: %w", err)
	}
	if count > 0 {
		s.logger.Info("expired sessions cleaned", "count", count)
	}
	return count, nil
}

// ListAllSessions is the admin view across users.
func (s *Service) ListAllSessions(limit, offset int) ([]Session, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListAll(limit, offset)
}

// GetUserSessionStats returns the read-only aggregate for one user.
func (s *Service) GetUserSessionStats(userID int64) (*Stats, error) {
	return s.repo.StatsForUser(userID, s.now())
}
