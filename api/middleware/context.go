package middleware

import (
	"context"

	"github.com/brickapparel/storefront-backend/pkg/enums"
)

type contextKey string

const (
	ctxAdminID     contextKey = "admin_id"
	ctxAdminRole   contextKey = "admin_role"
	ctxCartSession contextKey = "cart_session"
)

func AdminIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxAdminID).(string); ok {
		return v
	}
	return ""
}

func AdminRoleFromContext(ctx context.Context) enums.AdminRole {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxAdminRole).(enums.AdminRole); ok {
		return v
	}
	return ""
}

// CartSessionFromContext returns the guest cart token set by CartSession.
func CartSessionFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxCartSession).(string); ok {
		return v
	}
	return ""
}

// WithAdmin injects the verified admin identity into the context.
func WithAdmin(ctx context.Context, adminID string, role enums.AdminRole) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxAdminID, adminID)
	return context.WithValue(ctx, ctxAdminRole, role)
}

// WithCartSession injects the cart session token into the context.
func WithCartSession(ctx context.Context, token string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxCartSession, token)
}
