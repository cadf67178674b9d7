package models

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	User         UserSummary `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// RefreshTokenResponse carries the new access token. The refresh token is not rotated.
type RefreshTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

// LogoutRequest is assembled by the handler from the Authorization header.
type LogoutRequest struct {
	AccessToken string
	IP          string
	UserAgent   string
}

// MeResponse wraps the authenticated user's summary.
type MeResponse struct {
	User UserSummary `json:"user"`
}
