package dto

import "time"

type RegisterRequest struct {
	Username      string `json:"username" validate:"required,min=3,max=32,username"`
	Password      string `json:"password" validate:"required,min=8,max=72"`
	DisplayName   string `json:"displayName" validate:"required,max=64"`
	Contact1Name  string `json:"contact1Name,omitempty" validate:"max=64"`
	Contact1Phone string `json:"contact1Phone,omitempty" validate:"omitempty,min=5,max=32,phone"`
	Contact2Name  string `json:"contact2Name,omitempty" validate:"max=64"`
	Contact2Phone string `json:"contact2Phone,omitempty" validate:"omitempty,min=5,max=32,phone"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// AuthResponse carries the refresh token in the body as well as the cookie so
// that non-browser clients can keep a session.
type AuthResponse struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresAt    time.Time   `json:"expiresAt"`
	User         OwnerRecord `json:"user"`
}
