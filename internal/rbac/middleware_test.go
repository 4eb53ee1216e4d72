package rbac

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/operio-app/operio/internal"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			Required string `json:"required"`
			Current  string `json:"current"`
		} `json:"details"`
	} `json:"error"`
}

func decodeError(rec *httptest.ResponseRecorder) errorBody {
	var body errorBody
	gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(gomega.Succeed())
	return body
}

func requestAs(role string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	ctx := internal.WithRequestContext(req.Context(), &internal.RequestContext{
		Principal: &internal.Principal{ID: 42, Email: role + "@operio.local", Role: role, IsActive: true},
	})
	return req.WithContext(ctx)
}

var _ = ginkgo.Describe("Authorization guards", func() {
	var (
		guards  *Guards
		okCalls int
		ok      http.Handler
	)

	ginkgo.BeforeEach(func() {
		guards = NewGuards(NewEngine(newTestMatrix()), slog.New(slog.NewTextHandler(io.Discard, nil)))
		okCalls = 0
		ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			okCalls++
			w.WriteHeader(http.StatusOK)
		})
	})

	ginkgo.Describe("RequireMinimumRole", func() {
		ginkgo.It("should reject a request without a principal as unauthenticated", func() {
			rec := httptest.NewRecorder()
			guards.RequireMinimumRole(RoleTechnician)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(decodeError(rec).Error.Code).To(gomega.Equal("UNAUTHENTICATED"))
			gomega.Expect(okCalls).To(gomega.BeZero())
		})

		ginkgo.It("should deny a lower role with the required and current roles in the body", func() {
			rec := httptest.NewRecorder()
			guards.RequireMinimumRole(RoleManager)(ok).ServeHTTP(rec, requestAs("sales"))

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusForbidden))
			body := decodeError(rec)
			gomega.Expect(body.Error.Code).To(gomega.Equal("INSUFFICIENT_ROLE_LEVEL"))
			gomega.Expect(body.Error.Details.Required).To(gomega.Equal("manager"))
			gomega.Expect(body.Error.Details.Current).To(gomega.Equal("sales"))
		})

		ginkgo.It("should admit the exact required role", func() {
			rec := httptest.NewRecorder()
			guards.RequireMinimumRole(RoleManager)(ok).ServeHTTP(rec, requestAs("manager"))

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(okCalls).To(gomega.Equal(1))
		})

		ginkgo.It("should admit a higher role", func() {
			rec := httptest.NewRecorder()
			guards.RequireMinimumRole(RoleManager)(ok).ServeHTTP(rec, requestAs("master"))

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		})
	})

	ginkgo.Describe("RequirePermission", func() {
		ginkgo.It("should admit a role on the allow-list", func() {
			rec := httptest.NewRecorder()
			guards.RequirePermission("sessions.admin")(ok).ServeHTTP(rec, requestAs("admin"))

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		})

		ginkgo.It("should deny a high-ranked role absent from the allow-list", func() {
			rec := httptest.NewRecorder()
			guards.RequirePermission("permissions.manage")(ok).ServeHTTP(rec, requestAs("admin"))

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusForbidden))
			gomega.Expect(decodeError(rec).Error.Code).To(gomega.Equal("INSUFFICIENT_PERMISSION"))
		})

		ginkgo.It("should reject a request without a principal", func() {
			rec := httptest.NewRecorder()
			guards.RequirePermission("sessions.admin")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
		})
	})

	ginkgo.Describe("RequireRoleForMethod", func() {
		var guard func(http.Handler) http.Handler

		ginkgo.BeforeEach(func() {
			guard = guards.RequireRoleForMethod(map[string]Role{
				"get":    RoleSales,
				"DELETE": RoleManager,
			})
		})

		ginkgo.It("should match verbs case-insensitively", func() {
			rec := httptest.NewRecorder()
			guard(ok).ServeHTTP(rec, requestAs("sales"))

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		})

		ginkgo.It("should apply the per-verb minimum", func() {
			req := requestAs("sales")
			req.Method = http.MethodDelete

			rec := httptest.NewRecorder()
			guard(ok).ServeHTTP(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusForbidden))
			gomega.Expect(decodeError(rec).Error.Details.Required).To(gomega.Equal("manager"))
		})

		ginkgo.It("should reject an unmapped verb with method not allowed", func() {
			req := requestAs("master")
			req.Method = http.MethodPatch

			rec := httptest.NewRecorder()
			guard(ok).ServeHTTP(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusMethodNotAllowed))
			gomega.Expect(decodeError(rec).Error.Code).To(gomega.Equal("METHOD_NOT_ALLOWED"))
		})
	})

	ginkgo.Describe("Resource guards with data scoping", func() {
		scopeOf := func(guard func(http.Handler) http.Handler, role string) (int, internal.DataScope) {
			var scope internal.DataScope
			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				scope = internal.DataScopeFrom(r.Context())
				w.WriteHeader(http.StatusOK)
			})
			rec := httptest.NewRecorder()
			guard(inner).ServeHTTP(rec, requestAs(role))
			return rec.Code, scope
		}

		ginkgo.It("should scope sales to their own CRM records", func() {
			code, scope := scopeOf(guards.RequireCRMAccess(), "sales")
			gomega.Expect(code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(scope.OwnDataOnly).To(gomega.BeTrue())
		})

		ginkgo.It("should give managers unscoped CRM access", func() {
			code, scope := scopeOf(guards.RequireCRMAccess(), "manager")
			gomega.Expect(code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(scope.OwnDataOnly).To(gomega.BeFalse())
		})

		ginkgo.It("should deny agents CRM access entirely", func() {
			code, _ := scopeOf(guards.RequireCRMAccess(), "agent")
			gomega.Expect(code).To(gomega.Equal(http.StatusForbidden))
		})

		ginkgo.It("should scope technicians to their own visits", func() {
			code, scope := scopeOf(guards.RequireVisitsAccess(), "technician")
			gomega.Expect(code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(scope.OwnDataOnly).To(gomega.BeTrue())
		})

		ginkgo.It("should give agents unscoped visit access", func() {
			code, scope := scopeOf(guards.RequireVisitsAccess(), "agent")
			gomega.Expect(code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(scope.OwnDataOnly).To(gomega.BeFalse())
		})
	})
})
