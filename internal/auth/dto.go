package auth

import (
	"github.com/angelmondragon/fieldops-backend/internal/representatives"
)

// LoginRequest captures the representative credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse contains the token pair and the authenticated representative.
type LoginResponse struct {
	AccessToken    string                            `json:"access_token"`
	RefreshToken   string                            `json:"refresh_token"`
	Representative representatives.RepresentativeDTO `json:"representative"`
}

// RefreshRequest carries the refresh token paired with the presented access token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// TokenPair is returned after a successful rotation.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
