package api

import (
	"net/http"
	"time"

	"github.com/example/storefront-orders/internal/api/middleware"
)

// AuthHandlers exposes the caller's identity. Tokens are issued elsewhere
// and only verified here.
type AuthHandlers struct{}

func NewAuthHandlers() *AuthHandlers {
	return &AuthHandlers{}
}

type meResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Me returns the claims of the authenticated caller.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Message: "authentication required"})
		return
	}

	resp := meResponse{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	respondJSON(w, http.StatusOK, resp)
}
