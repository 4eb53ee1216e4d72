package postgres

import (
	"errors"
	"time"

	"github.com/operio-app/operio/internal/session"
	"gorm.io/gorm"
)

type sessionModel struct {
	ID             string     `gorm:"primaryKey;column:id"`
	UserID         int64      `gorm:"column:user_id;index;not null"`
	TokenHash      string     `gorm:"column:token_hash;uniqueIndex;not null"`
	BrowserName    string     `gorm:"column:browser_name"`
	BrowserVersion string     `gorm:"column:browser_version"`
	OSName         string     `gorm:"column:os_name"`
	OSVersion      string     `gorm:"column:os_version"`
	DeviceType     string     `gorm:"column:device_type"`
	IP             string     `gorm:"column:ip"`
	LoginMethod    string     `gorm:"column:login_method"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	LastActivityAt time.Time  `gorm:"column:last_activity_at;index"`
	ExpiresAt      time.Time  `gorm:"column:expires_at;index"`
	IsActive       bool       `gorm:"column:is_active;index"`
	EndedAt        *time.Time `gorm:"column:ended_at"`
	EndReason      string     `gorm:"column:end_reason"`
}

func (sessionModel) TableName() string {
	return "sessions"
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(s *session.Session) error {
	return r.db.Create(toModel(s)).Error
}

// UpdateActivity bumps last_activity_at for the active session matching the
// hash. Concurrent bumps race under last-write-wins, which is the accepted
// ordering for this column.
func (r *Repository) UpdateActivity(tokenHash string, at time.Time) error {
	return r.db.Model(&sessionModel{}).
		Where("token_hash = ? AND is_active = ?", tokenHash, true).
		Update("last_activity_at", at).Error
}

// EndByTokenHash deactivates the matching active session. The is_active
// predicate makes the call idempotent: a second invocation matches nothing.
func (r *Repository) EndByTokenHash(tokenHash string, reason session.EndReason, at time.Time) (int64, error) {
	res := r.db.Model(&sessionModel{}).
		Where("token_hash = ? AND is_active = ?", tokenHash, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"ended_at":   at,
			"end_reason": string(reason),
		})
	return res.RowsAffected, res.Error
}

func (r *Repository) EndByID(id string, reason session.EndReason, at time.Time) (int64, error) {
	res := r.db.Model(&sessionModel{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"ended_at":   at,
			"end_reason": string(reason),
		})
	return res.RowsAffected, res.Error
}

func (r *Repository) GetByID(id string) (*session.Session, error) {
	var m sessionModel
	if err := r.db.First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, session.ErrNotFound
		}
		return nil, err
	}
	return toDomain(&m), nil
}

func (r *Repository) GetByTokenHash(tokenHash string) (*session.Session, error) {
	var m sessionModel
	if err := r.db.First(&m, "token_hash = ?", tokenHash).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, session.ErrNotFound
		}
		return nil, err
	}
	return toDomain(&m), nil
}

func (r *Repository) GetActiveByUser(userID int64, now time.Time) ([]session.Session, error) {
	var models []sessionModel
	err := r.db.
		Where("user_id = ? AND is_active = ? AND expires_at > ?", userID, true, now).
		Order("last_activity_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainSlice(models), nil
}

func (r *Repository) EndAllForUserExcept(userID int64, keepTokenHash string, reason session.EndReason, at time.Time) (int64, error) {
	res := r.db.Model(&sessionModel{}).
		Where("user_id = ? AND is_active = ? AND token_hash <> ?", userID, true, keepTokenHash).
		Updates(map[string]interface{}{
			"is_active":  false,
			"ended_at":   at,
			"end_reason": string(reason),
		})
	return res.RowsAffected, res.Error
}

func (r *Repository) EndAllForUser(userID int64, reason session.EndReason, at time.Time) (int64, error) {
	res := r.db.Model(&sessionModel{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"ended_at":   at,
			"end_reason": string(reason),
		})
	return res.RowsAffected, res.Error
}

// CleanExpired deactivates every overdue active session in a single
// conditional update, so a session cannot slip back to active between a
// read and a write. Redundant sweeps affect zero additional rows.
func (r *Repository) CleanExpired(now time.Time) (int64, error) {
	res := r.db.Model(&sessionModel{}).
		Where("is_active = ? AND expires_at <= ?", true, now).
		Updates(map[string]interface{}{
			"is_active":  false,
			"ended_at":   now,
			"end_reason": string(session.EndReasonExpired),
		})
	return res.RowsAffected, res.Error
}

func (r *Repository) ListAll(limit, offset int) ([]session.Session, error) {
	var models []sessionModel
	err := r.db.
		Order("last_activity_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainSlice(models), nil
}

type statsRow struct {
	Total      int64
	Active     int64
	Today      int64
	UniqueDays int64
}

func (r *Repository) StatsForUser(userID int64, now time.Time) (*session.Stats, error) {
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var row statsRow
	err := r.db.Raw(`
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN is_active = ? AND expires_at > ? THEN 1 ELSE 0 END), 0) AS active,
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0) AS today,
			COUNT(DISTINCT DATE(created_at)) AS unique_days
		FROM sessions
		WHERE user_id = ?`,
		true, now, startOfDay, userID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}

	stats := &session.Stats{
		Total:      row.Total,
		Active:     row.Active,
		Today:      row.Today,
		UniqueDays: row.UniqueDays,
	}

	if row.Total > 0 {
		var lastActivity []time.Time
		err = r.db.Model(&sessionModel{}).
			Where("user_id = ?", userID).
			Order("last_activity_at DESC").
			Limit(1).
			Pluck("last_activity_at", &lastActivity).Error
		if err != nil {
			return nil, err
		}
		if len(lastActivity) > 0 {
			stats.LastActivity = &lastActivity[0]
		}
	}

	return stats, nil
}

func toModel(s *session.Session) *sessionModel {
	return &sessionModel{
		ID:             s.ID,
		UserID:         s.UserID,
		TokenHash:      s.TokenHash,
		BrowserName:    s.DeviceInfo.BrowserName,
		BrowserVersion: s.DeviceInfo.BrowserVersion,
		OSName:         s.DeviceInfo.OSName,
		OSVersion:      s.DeviceInfo.OSVersion,
		DeviceType:     s.DeviceInfo.DeviceType,
		IP:             s.IP,
		LoginMethod:    s.LoginMethod,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		ExpiresAt:      s.ExpiresAt,
		IsActive:       s.IsActive,
		EndedAt:        s.EndedAt,
		EndReason:      string(s.EndReason),
	}
}

func toDomain(m *sessionModel) *session.Session {
	return &session.Session{
		ID:     m.ID,
		UserID: m.UserID,
		DeviceInfo: session.DeviceInfo{
			BrowserName:    m.BrowserName,
			BrowserVersion: m.BrowserVersion,
			OSName:         m.OSName,
			OSVersion:      m.OSVersion,
			DeviceType:     m.DeviceType,
		},
		TokenHash:      m.TokenHash,
		IP:             m.IP,
		LoginMethod:    m.LoginMethod,
		CreatedAt:      m.CreatedAt,
		LastActivityAt: m.LastActivityAt,
		ExpiresAt:      m.ExpiresAt,
		IsActive:       m.IsActive,
		EndedAt:        m.EndedAt,
		EndReason:      session.EndReason(m.EndReason),
	}
}

func toDomainSlice(models []sessionModel) []session.Session {
	out := make([]session.Session, 0, len(models))
	for i := range models {
		out = append(out, *toDomain(&models[i]))
	}
	return out
}
