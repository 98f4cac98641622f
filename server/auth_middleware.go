package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/acadnet/acadnet/token"
	"github.com/acadnet/acadnet/users"
)

type contextKey string

const claimsContextKey contextKey = "authClaims"

// ClaimsFromContext returns the access-token claims set by
// RequireAccessToken, or nil when the request was not authenticated.
func ClaimsFromContext(ctx context.Context) *token.Claims {
	claims, _ := ctx.Value(claimsContextKey).(*token.Claims)
	return claims
}

// RequireAccessToken authenticates the request from the accessToken cookie.
// Expired tokens are distinguished from malformed ones so the frontend knows
// whether a refresh attempt is worthwhile.
func (s *Server) RequireAccessToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CookieAccessToken)
		if err != nil || cookie.Value == "" {
			jsonRes(w, http.StatusUnauthorized, false, "Unauthorized Access")
			return
		}

		claims, err := s.service.VerifyAccess(cookie.Value)
		if err != nil {
			if errors.Is(err, token.ErrExpiredToken) {
				jsonRes(w, http.StatusUnauthorized, false, "Token Expired")
				return
			}
			jsonRes(w, http.StatusForbidden, false, "Invalid Token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next(w, r.WithContext(ctx))
	}
}

// RequireCSRF matches the readable csrfToken cookie against the request
// header. Mismatch or absence is a hard rejection, independent of the access
// token.
func (s *Server) RequireCSRF(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CookieCSRFToken)
		header := r.Header.Get(CSRFHeader)
		if err != nil || cookie.Value == "" || header == "" || cookie.Value != header {
			jsonRes(w, http.StatusForbidden, false, "Invalid Token")
			return
		}
		next(w, r)
	}
}

// RequireAdmin gates admin-only endpoints on the role claim.
func (s *Server) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil || claims.Role != users.RoleAdmin {
			jsonRes(w, http.StatusForbidden, false, "Admin access required")
			return
		}
		next(w, r)
	}
}
