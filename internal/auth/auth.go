package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/operio-app/operio/internal"
)

// Claims are the identity claims carried by every issued token.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// AuthTokens is the token pair returned by login and refresh.
type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// TokenGeneratorAPI creates and verifies bearer tokens.
type TokenGeneratorAPI interface {
	GenerateAccessToken(userID int64, email, role string) (string, error)
	GenerateRefreshToken(userID int64, email, role string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
	ParseExpiredToken(tokenString string) (*Claims, error)
}

type JWTTokenGenerator struct {
	Secret          []byte
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// NewJWTTokenGenerator creates an HS256 token generator over a shared secret.
func NewJWTTokenGenerator(secret string, accessTTL, refreshTTL time.Duration) *JWTTokenGenerator {
	if accessTTL <= 0 {
		accessTTL = internal.DefaultAccessTokenTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = internal.DefaultRefreshTokenTTL
	}
	return &JWTTokenGenerator{
		Secret:          []byte(secret),
		AccessTokenTTL:  accessTTL,
		RefreshTokenTTL: refreshTTL,
	}
}

func (j *JWTTokenGenerator) GenerateAccessToken(userID int64, email, role string) (string, error) {
	return j.generate(userID, email, role, j.AccessTokenTTL)
}

func (j *JWTTokenGenerator) GenerateRefreshToken(userID int64, email, role string) (string, error) {
	return j.generate(userID, email, role, j.RefreshTokenTTL)
}

func (j *JWTTokenGenerator) generate(userID int64, email, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	subject := fmt.Sprintf("%d", userID)

	claims := &Claims{
		UserID: subject,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.Secret)
}

// ValidateToken verifies signature and expiry. Expiry of an otherwise-valid
// token is reported distinctly so callers can drive refresh-vs-reject UX;
// any signature or structure problem is an invalid token.
func (j *JWTTokenGenerator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, j.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, internal.ErrTokenExpired
		}
		return nil, internal.ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, internal.ErrInvalidToken
}

// ParseExpiredToken verifies the signature while skipping claim validation,
// so an expired token can still be refreshed. Tampering still fails.
func (j *JWTTokenGenerator) ParseExpiredToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, j.keyFunc, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, internal.ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok {
		return claims, nil
	}
	return nil, internal.ErrInvalidToken
}

func (j *JWTTokenGenerator) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return j.Secret, nil
}

// ExtractBearer pulls the token from a "Bearer <token>" header value. A
// missing or malformed header is a distinct failure from a bad token.
func ExtractBearer(authorizationHeader string) (string, error) {
	if authorizationHeader == "" {
		return "", internal.ErrNoToken
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authorizationHeader, prefix) {
		return "", internal.ErrNoToken
	}
	token := strings.TrimSpace(authorizationHeader[len(prefix):])
	if token == "" {
		return "", internal.ErrNoToken
	}
	return token, nil
}
