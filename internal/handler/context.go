package handler

import (
	"context"
	"net/http"
	"strings"
)

// Headers set by the authenticating proxy in front of the service. Their
// values are trusted as already verified.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderActorID  = "X-Actor-ID"
)

type principalKey struct{}

// Principal identifies the verified caller of a request.
type Principal struct {
	TenantID string
	ActorID  string
}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// RequireTenant rejects requests without a tenant header and stores the
// caller's principal in the request context.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(r.Header.Get(HeaderTenantID))
		if tenantID == "" {
			respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing tenant"})
			return
		}
		p := Principal{
			TenantID: tenantID,
			ActorID:  strings.TrimSpace(r.Header.Get(HeaderActorID)),
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}
