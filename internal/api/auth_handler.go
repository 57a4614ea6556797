package api

import (
	"net/http"

	"github.com/phrazzld/owl-api/internal/api/shared"
)

// AuthHandler serves identity endpoints. Tokens are issued by the external
// identity provider, so there is no login here.
type AuthHandler struct{}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := getPrincipal(w, r)
	if !ok {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, PrincipalResponse{
		ID:      p.ID,
		Email:   p.Email,
		Role:    p.Role,
		IsAdmin: p.IsAdmin(),
	})
}
