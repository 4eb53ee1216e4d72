// Package session tracks server-side login sessions: one row per
// device/browser login, looked up by a one-way hash of the bearer token.
// The raw token is never persisted. Ended sessions are terminal; they are
// deactivated, never reactivated and never hard-deleted here.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrNotFound is returned by repositories when no session matches.
var ErrNotFound = errors.New("session not found")

type EndReason string

const (
	EndReasonLogout  EndReason = "logout"
	EndReasonRevoked EndReason = "revoked"
	EndReasonExpired EndReason = "expired"
)

type DeviceInfo struct {
	BrowserName    string `json:"browser_name"`
	BrowserVersion string `json:"browser_version"`
	OSName         string `json:"os_name"`
	OSVersion      string `json:"os_version"`
	DeviceType     string `json:"device_type"`
}

type Session struct {
	ID             string     `json:"id"`
	UserID         int64      `json:"user_id"`
	TokenHash      string     `json:"-"`
	DeviceInfo     DeviceInfo `json:"device_info"`
	IP             string     `json:"ip"`
	LoginMethod    string     `json:"login_method"`
	CreatedAt      time.Time  `json:"created_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	IsActive       bool       `json:"is_active"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	EndReason      EndReason  `json:"end_reason,omitempty"`
}

// Stats is the read-only aggregate over a user's session history.
type Stats struct {
	Total        int64      `json:"total"`
	Active       int64      `json:"active"`
	Today        int64      `json:"today"`
	UniqueDays   int64      `json:"unique_days"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// ClientMeta carries the request attributes a session records at creation.
type ClientMeta struct {
	UserAgent    string
	RemoteAddr   string
	ForwardedFor string
	RealIP       string
}

// ClientMetaFromRequest captures user agent and address material from an
// incoming request.
func ClientMetaFromRequest(r *http.Request) ClientMeta {
	return ClientMeta{
		UserAgent:    r.UserAgent(),
		RemoteAddr:   r.RemoteAddr,
		ForwardedFor: r.Header.Get("X-Forwarded-For"),
		RealIP:       r.Header.Get("X-Real-IP"),
	}
}

// ClientIP resolves the client address through the proxy-header fallback
// chain: X-Forwarded-For, then X-Real-IP, then the socket address.
func (m ClientMeta) ClientIP() string {
	if m.ForwardedFor != "" {
		// the first entry is the originating client
		first := strings.TrimSpace(strings.Split(m.ForwardedFor, ",")[0])
		if first != "" {
			return first
		}
	}
	if m.RealIP != "" {
		return m.RealIP
	}
	if host, _, err := net.SplitHostPort(m.RemoteAddr); err == nil {
		return host
	}
	return m.RemoteAddr
}

// HashToken digests a raw bearer token for storage and lookup. SHA-256
// collisions are treated as impossible: one hash identifies at most one
// active session.
func HashToken(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}

// RepositoryAPI is the persistence surface of the session store. All
// mutating calls that target multiple rows must be single conditional
// updates so they stay race-free against live traffic.
type RepositoryAPI interface {
	Create(s *Session) error
	UpdateActivity(tokenHash string, at time.Time) error
	EndByTokenHash(tokenHash string, reason EndReason, at time.Time) (int64, error)
	EndByID(id string, reason EndReason, at time.Time) (int64, error)
	GetByID(id string) (*Session, error)
	GetByTokenHash(tokenHash string) (*Session, error)
	GetActiveByUser(userID int64, now time.Time) ([]Session, error)
	EndAllForUserExcept(userID int64, keepTokenHash string, reason EndReason, at time.Time) (int64, error)
	EndAllForUser(userID int64, reason EndReason, at time.Time) (int64, error)
	CleanExpired(now time.Time) (int64, error)
	ListAll(limit, offset int) ([]Session, error)
	StatsForUser(userID int64, now time.Time) (*Stats, error)
}
