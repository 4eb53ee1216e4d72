package auth

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/operio-app/operio/internal"
	"github.com/operio-app/operio/internal/session"
	"github.com/operio-app/operio/internal/user"
)

func TestAuth(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Auth Module Suite")
}

// Mock user directory for testing
type mockDirectory struct {
	users         map[int64]*user.User
	passwords     map[string]string // email -> plain password
	returnError   bool
	errorToReturn error
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		users: map[int64]*user.User{
			1: {ID: 1, Email: "tech@operio.local", Name: "Tech One", Role: "technician", IsActive: true},
			2: {ID: 2, Email: "admin@operio.local", Name: "Admin One", Role: "admin", IsActive: true},
			3: {ID: 3, Email: "former@operio.local", Name: "Former Employee", Role: "agent", IsActive: false},
		},
		passwords: map[string]string{
			"tech@operio.local":  "correct_password",
			"admin@operio.local": "correct_password",
		},
	}
}

func (m *mockDirectory) GetActiveUser(id int64) (*user.User, error) {
	if m.returnError {
		return nil, m.errorToReturn
	}
	u, exists := m.users[id]
	if !exists || !u.IsActive {
		return nil, internal.ErrInvalidUser
	}
	return u, nil
}

func (m *mockDirectory) VerifyCredentials(email, password string) (*user.User, error) {
	if m.returnError {
		return nil, m.errorToReturn
	}
	if expected, ok := m.passwords[email]; ok && expected == password {
		for _, u := range m.users {
			if u.Email == email && u.IsActive {
				return u, nil
			}
		}
	}
	return nil, internal.ErrInvalidCredentials
}

func (m *mockDirectory) setError(err error) {
	m.returnError = true
	m.errorToReturn = err
}

// Mock session recorder capturing the calls the authenticator makes
type mockSessionRecorder struct {
	createdFor     []int64
	createErr      error
	activityTokens []string
	endedTokens    []string
	endedReasons   []session.EndReason
}

func (m *mockSessionRecorder) CreateSession(userID int64, rawToken string, meta session.ClientMeta, loginMethod string) (*session.Session, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.createdFor = append(m.createdFor, userID)
	return &session.Session{ID: "test-session", UserID: userID}, nil
}

func (m *mockSessionRecorder) RecordActivity(rawToken string) {
	m.activityTokens = append(m.activityTokens, rawToken)
}

func (m *mockSessionRecorder) EndSession(rawToken string, reason session.EndReason) error {
	m.endedTokens = append(m.endedTokens, rawToken)
	m.endedReasons = append(m.endedReasons, reason)
	return nil
}

var _ = ginkgo.Describe("AuthService", func() {
	var (
		service   *Service
		directory *mockDirectory
		recorder  *mockSessionRecorder
		tokenGen  *JWTTokenGenerator
		secret    = "test-secret-that-is-long-enough-0123"
	)

	discardLogger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ginkgo.BeforeEach(func() {
		directory = newMockDirectory()
		recorder = &mockSessionRecorder{}
		tokenGen = NewJWTTokenGenerator(secret, 15*time.Minute, 24*time.Hour)
		service = NewService(tokenGen, directory, recorder, discardLogger)
	})

	ginkgo.Describe("ExtractBearer", func() {
		ginkgo.It("should extract the token from a well-formed header", func() {
			token, err := ExtractBearer("Bearer abc.def.ghi")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(token).To(gomega.Equal("abc.def.ghi"))
		})

		ginkgo.It("should report a missing header as no token", func() {
			_, err := ExtractBearer("")
			gomega.Expect(err).To(gomega.Equal(internal.ErrNoToken))
		})

		ginkgo.It("should report a non-bearer scheme as no token", func() {
			_, err := ExtractBearer("Basic dXNlcjpwYXNz")
			gomega.Expect(err).To(gomega.Equal(internal.ErrNoToken))
		})

		ginkgo.It("should report an empty bearer value as no token", func() {
			_, err := ExtractBearer("Bearer ")
			gomega.Expect(err).To(gomega.Equal(internal.ErrNoToken))
		})
	})

	ginkgo.Describe("Authenticate", func() {
		ginkgo.Context("when the token is valid", func() {
			ginkgo.It("should resolve the principal and bump session activity", func() {
				token, err := tokenGen.GenerateAccessToken(2, "admin@operio.local", "admin")
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				principal, err := service.Authenticate("Bearer "+token, session.ClientMeta{})

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(principal.ID).To(gomega.Equal(int64(2)))
				gomega.Expect(principal.Email).To(gomega.Equal("admin@operio.local"))
				gomega.Expect(principal.Role).To(gomega.Equal("admin"))
				gomega.Expect(recorder.activityTokens).To(gomega.HaveLen(1))
				gomega.Expect(recorder.activityTokens[0]).To(gomega.Equal(token))
			})
		})

		ginkgo.Context("when the header is absent", func() {
			ginkgo.It("should fail with the no-token error", func() {
				_, err := service.Authenticate("", session.ClientMeta{})
				gomega.Expect(err).To(gomega.Equal(internal.ErrNoToken))
				gomega.Expect(recorder.activityTokens).To(gomega.BeEmpty())
			})
		})

		ginkgo.Context("when the token is tampered", func() {
			ginkgo.It("should fail with invalid token", func() {
				token, err := tokenGen.GenerateAccessToken(1, "tech@operio.local", "technician")
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				tampered := token[:len(token)-4] + "AAAA"
				_, err = service.Authenticate("Bearer "+tampered, session.ClientMeta{})
				gomega.Expect(err).To(gomega.Equal(internal.ErrInvalidToken))
			})

			ginkgo.It("should report a wrong-secret token as invalid, never expired", func() {
				otherGen := &JWTTokenGenerator{
					Secret:          []byte("a-completely-different-secret-456789"),
					AccessTokenTTL:  -time.Minute,
					RefreshTokenTTL: -time.Minute,
				}
				expired, err := otherGen.GenerateAccessToken(1, "tech@operio.local", "technician")
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				_, err = service.Authenticate("Bearer "+expired, session.ClientMeta{})
				gomega.Expect(err).To(gomega.Equal(internal.ErrInvalidToken))
			})
		})

		ginkgo.Context("when the token is expired", func() {
			ginkgo.It("should fail with the distinct expiry error", func() {
				shortGen := NewJWTTokenGenerator(secret, time.Nanosecond, 24*time.Hour)
				token, err := shortGen.GenerateAccessToken(1, "tech@operio.local", "technician")
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				time.Sleep(10 * time.Millisecond)
				_, err = service.Authenticate("Bearer "+token, session.ClientMeta{})
				gomega.Expect(err).To(gomega.Equal(internal.ErrTokenExpired))
			})
		})

		ginkgo.Context("when the account is deactivated", func() {
			ginkgo.It("should fail with invalid user", func() {
				token, err := tokenGen.GenerateAccessToken(3, "former@operio.local", "agent")
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				_, err = service.Authenticate("Bearer "+token, session.ClientMeta{})
				gomega.Expect(err).To(gomega.Equal(internal.ErrInvalidUser))
			})
		})

		ginkgo.Context("when the account no longer exists", func() {
			ginkgo.It("should fail with invalid user", func() {
				token, err := tokenGen.GenerateAccessToken(999, "ghost@operio.local", "agent")
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				_, err = service.Authenticate("Bearer "+token, session.ClientMeta{})
				gomega.Expect(err).To(gomega.Equal(internal.ErrInvalidUser))
			})
		})

		ginkgo.Context("when the token carries a non-numeric user id", func() {
			ginkgo.It("should fail with invalid token", func() {
				claims := &Claims{
					UserID: "not-a-number",
					Email:  "tech@operio.local",
					Role:   "technician",
					RegisteredClaims: jwt.RegisteredClaims{
						ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
						IssuedAt:  jwt.NewNumericDate(time.Now()),
					},
				}
				signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				_, err = service.Authenticate("Bearer "+signed, session.ClientMeta{})
				gomega.Expect(err).To(gomega.Equal(internal.ErrInvalidToken))
			})
		})

		ginkgo.Context("when the directory lookup fails unexpectedly", func() {
			ginkgo.It("should wrap the failure as an internal error", func() {
				directory.setError(errors.New("database down"))
				token, err := tokenGen.GenerateAccessToken(1, "tech@operio.local", "technician")
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				_, err = service.Authenticate("Bearer "+token, session.ClientMeta{})
				gomega.Expect(err).To(gomega.HaveOccurred())
				appErr, ok := internal.IsAppError(err)
				gomega.Expect(ok).To(gomega.BeTrue())
				gomega.Expect(appErr.StatusCode).To(gomega.Equal(500))
			})
		})
	})

	ginkgo.Describe("Refresh", func() {
		ginkgo.It("should exchange an expired token for a fresh pair with identity preserved", func() {
			shortGen := NewJWTTokenGenerator(secret, time.Nanosecond, 24*time.Hour)
			shortService := NewService(shortGen, directory, recorder, discardLogger)
			expired, err := shortGen.GenerateAccessToken(2, "admin@operio.local", "admin")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			time.Sleep(10 * time.Millisecond)
			_, err = shortService.Authenticate("Bearer "+expired, session.ClientMeta{})
			gomega.Expect(err).To(gomega.Equal(internal.ErrTokenExpired))

			tokens, err := shortService.Refresh(expired)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(tokens.AccessToken).ToNot(gomega.BeEmpty())
			gomega.Expect(tokens.RefreshToken).ToNot(gomega.BeEmpty())

			claims, err := tokenGen.ValidateToken(tokens.RefreshToken)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(claims.UserID).To(gomega.Equal("2"))
			gomega.Expect(claims.Role).To(gomega.Equal("admin"))
		})

		ginkgo.It("should reject a tampered token", func() {
			token, err := tokenGen.GenerateRefreshToken(1, "tech@operio.local", "technician")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			_, err = service.Refresh(token[:len(token)-4] + "AAAA")
			gomega.Expect(err).To(gomega.Equal(internal.ErrInvalidToken))
		})

		ginkgo.It("should reject refresh for a deactivated account", func() {
			token, err := tokenGen.GenerateRefreshToken(3, "former@operio.local", "agent")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			_, err = service.Refresh(token)
			gomega.Expect(err).To(gomega.Equal(internal.ErrInvalidUser))
		})
	})

	ginkgo.Describe("Login", func() {
		ginkgo.It("should issue tokens and record a session", func() {
			tokens, err := service.Login(LoginDTO{Email: "tech@operio.local", Password: "correct_password"}, session.ClientMeta{})

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(tokens.AccessToken).ToNot(gomega.BeEmpty())
			gomega.Expect(tokens.RefreshToken).ToNot(gomega.BeEmpty())
			gomega.Expect(recorder.createdFor).To(gomega.Equal([]int64{1}))
		})

		ginkgo.It("should reject bad credentials", func() {
			_, err := service.Login(LoginDTO{Email: "tech@operio.local", Password: "wrong"}, session.ClientMeta{})
			gomega.Expect(err).To(gomega.Equal(internal.ErrInvalidCredentials))
		})

		ginkgo.It("should reject an empty email before touching the directory", func() {
			_, err := service.Login(LoginDTO{Password: "whatever"}, session.ClientMeta{})
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(err.Error()).To(gomega.ContainSubstring("email is required"))
		})

		ginkgo.It("should still succeed when session persistence fails", func() {
			recorder.createErr = errors.New("sessions table unavailable")

			tokens, err := service.Login(LoginDTO{Email: "admin@operio.local", Password: "correct_password"}, session.ClientMeta{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(tokens.AccessToken).ToNot(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("Logout", func() {
		ginkgo.It("should end the session behind a valid token", func() {
			token, err := tokenGen.GenerateAccessToken(1, "tech@operio.local", "technician")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			gomega.Expect(service.Logout(token)).To(gomega.Succeed())
			gomega.Expect(recorder.endedTokens).To(gomega.Equal([]string{token}))
			gomega.Expect(recorder.endedReasons).To(gomega.Equal([]session.EndReason{session.EndReasonLogout}))
		})

		ginkgo.It("should reject an invalid token", func() {
			err := service.Logout("not.a.token")
			gomega.Expect(err).To(gomega.Equal(internal.ErrInvalidToken))
			gomega.Expect(recorder.endedTokens).To(gomega.BeEmpty())
		})
	})
})
