package auth

import (
	"context"
	"time"
)

// Roles understood by the workflow.
const (
	RoleReader       = "reader"
	RoleReviewer     = "reviewer"
	RoleOrganization = "organization"
	RoleAdmin        = "admin"
	RoleSystem       = "system"
	RoleGuest        = "guest"
)

type Context struct {
	UserID    string
	Roles     []string
	JWTID     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Authenticated reports whether the context carries a user id.
func (c *Context) Authenticated() bool {
	return c != nil && c.UserID != ""
}

// PrimaryRole returns the most privileged role the user holds.
func (c *Context) PrimaryRole() string {
	if c == nil {
		return RoleGuest
	}
	for _, r := range []string{RoleSystem, RoleAdmin, RoleOrganization, RoleReviewer, RoleReader} {
		if HasRole(c, r) {
			return r
		}
	}
	return RoleGuest
}

// HasRole checks if the current user has the given role.
func HasRole(auth *Context, role string) bool {
	if auth == nil {
		return false
	}
	for _, r := range auth.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type contextKey struct{}

// NewContext returns a new context with the given AuthContext.
func NewContext(ctx context.Context, authCtx *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, authCtx)
}

// FromContext returns the AuthContext stored by the middleware, or nil.
func FromContext(ctx context.Context) *Context {
	if a, ok := ctx.Value(contextKey{}).(*Context); ok {
		return a
	}
	return nil
}
