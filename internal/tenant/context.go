package tenant

import (
	"context"
)

type contextKey string

const (
	tenantKey contextKey = "tenant"
	adminKey  contextKey = "admin"
)

// WithID scopes ctx to the tenant named in the caller's credentials.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, tenantKey, id)
}

func IDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(tenantKey).(string)
	return id
}

// WithAdmin marks the caller as allowed to act on any tenant.
func WithAdmin(ctx context.Context) context.Context {
	return context.WithValue(ctx, adminKey, true)
}

func IsAdmin(ctx context.Context) bool {
	ok, _ := ctx.Value(adminKey).(bool)
	return ok
}

// Allowed reports whether the caller in ctx may act on tenantID. A context
// without any tenant scope belongs to an unauthenticated deployment.
func Allowed(ctx context.Context, tenantID string) bool {
	if IsAdmin(ctx) {
		return true
	}
	scoped := IDFromContext(ctx)
	return scoped == "" || scoped == tenantID
}
