package internal

import (
	"context"
	"time"
)

// Principal is the authenticated identity attached to a request after
// token verification succeeds.
type Principal struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

// DataScope narrows what a downstream query layer may return for the
// current request. Guards set OwnDataOnly for the lowest operational tier;
// this package only carries the flag, it does not filter anything itself.
type DataScope struct {
	OwnDataOnly bool
}

// RequestContext is the typed value threaded through the middleware chain
// in place of ad hoc per-request decoration.
type RequestContext struct {
	Principal *Principal
	DataScope DataScope
}

type ctxKey string

const requestContextKey ctxKey = "requestContext"

func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

func RequestContextFrom(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey).(*RequestContext)
	return rc, ok
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	rc, ok := RequestContextFrom(ctx)
	if !ok || rc.Principal == nil {
		return nil, false
	}
	return rc.Principal, true
}

// WithDataScope replaces the data scope on the request context, keeping the
// principal. A missing request context yields one with no principal so the
// scope is never silently dropped.
func WithDataScope(ctx context.Context, scope DataScope) context.Context {
	rc, ok := RequestContextFrom(ctx)
	if !ok {
		return WithRequestContext(ctx, &RequestContext{DataScope: scope})
	}
	return WithRequestContext(ctx, &RequestContext{Principal: rc.Principal, DataScope: scope})
}

func DataScopeFrom(ctx context.Context) DataScope {
	if rc, ok := RequestContextFrom(ctx); ok {
		return rc.DataScope
	}
	return DataScope{}
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
