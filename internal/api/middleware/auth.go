package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/phrazzld/owl-api/internal/api/shared"
	"github.com/phrazzld/owl-api/internal/domain"
	"github.com/phrazzld/owl-api/internal/platform/logger"
	"github.com/phrazzld/owl-api/internal/redact"
	"github.com/phrazzld/owl-api/internal/service/auth"
)

// AuthMiddleware provides JWT authentication for routes.
type AuthMiddleware struct {
	jwtService auth.JWTService
}

// NewAuthMiddleware creates a new AuthMiddleware with the given dependencies.
func NewAuthMiddleware(jwtService auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
	}
}

// Authenticate validates the bearer token and stores the resulting principal
// in the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims, err := m.jwtService.ValidateToken(r.Context(), strings.TrimSpace(token))
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
			case errors.Is(err, auth.ErrInvalidToken),
				errors.Is(err, auth.ErrTokenNotYetValid),
				errors.Is(err, auth.ErrMissingToken),
				errors.Is(err, auth.ErrMissingSubject):
				shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Invalid token", err,
					shared.WithElevatedLogLevel())
			default:
				logger.FromContext(r.Context()).Error("failed to validate token", redact.Attr(err))
				shared.RespondWithError(w, r, http.StatusInternalServerError, "Authentication error")
			}
			return
		}

		principal := claims.Principal()
		log := logger.FromContext(r.Context()).With("principal_id", principal.ID)
		ctx := shared.WithPrincipal(logger.WithLogger(r.Context(), log), principal)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects principals without an administrative role. It must run
// after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := GetPrincipal(r)
		if !ok {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !p.IsAdmin() {
			shared.RespondWithErrorAndLog(w, r, http.StatusForbidden, "Administrator role required", nil,
				shared.WithElevatedLogLevel())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetPrincipal extracts the authenticated principal from the request context.
func GetPrincipal(r *http.Request) (domain.Principal, bool) {
	return shared.PrincipalFrom(r.Context())
}
