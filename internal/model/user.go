package model

type UserID string

// Session is issued to a user by the auth endpoint.
type Session struct {
	ID        string `json:"id"`
	UserID    UserID `json:"user_id"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

type CreateSessionParams struct {
	UserID   UserID `json:"user_id" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}
