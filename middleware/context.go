package middleware

import (
	"context"
	"net"
	"net/http"
	"slices"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/activity-pipeline/models"
)

type contextKey string

// ClaimsKey is the context key for token claims
const ClaimsKey contextKey = "claims"

// RoleAdmin grants access to the administration endpoints
const RoleAdmin = "admin"

// Claims represents the token claims the API works with
type Claims struct {
	Sub         string   `json:"sub"`
	Name        string   `json:"name"`
	Roles       []string `json:"roles"`
	ApplicantID string   `json:"applicant_id"`
}

// HasRole reports whether the claims carry role
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// GetRequestIDFromContext returns the chi request id, if any
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// GetClaimsFromContext retrieves the claims from context
func GetClaimsFromContext(ctx context.Context) *Claims {
	if claims, ok := ctx.Value(ClaimsKey).(*Claims); ok {
		return claims
	}
	return nil
}

// WithClaims adds claims to the context
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// ActionUserFromRequest builds the acting identity of an authenticated API request.
// Actions reported over HTTP arrive on the query socket.
func ActionUserFromRequest(r *http.Request) *models.ActionUser {
	claims := GetClaimsFromContext(r.Context())
	if claims == nil {
		return nil
	}
	return &models.ActionUser{
		ID:   claims.Sub,
		Name: claims.Name,
		Origin: models.UserOrigin{
			Socket:      models.SocketQuery,
			IP:          clientIP(r),
			UserAgent:   r.UserAgent(),
			Referer:     r.Referer(),
			ApplicantID: claims.ApplicantID,
		},
	}
}

// clientIP strips the port from RemoteAddr; chi's RealIP middleware has already
// applied X-Forwarded-For / X-Real-IP when mounted
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
