package auth

import "time"

// User represents an account as seen by authentication.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Enabled      bool
	Locked       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  *time.Time
}

// CanAuthenticate reports whether the account may log in or refresh.
func (u User) CanAuthenticate() bool {
	return u.Enabled && !u.Locked
}

// RefreshToken is the persisted form of a refresh token. Only the hash of
// the opaque value is stored.
type RefreshToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Revoked reports whether the token was already consumed or logged out.
func (t RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// ExpiredAt reports whether the token is no longer valid at now.
func (t RefreshToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IssuedToken is a freshly minted credential handed to the client.
type IssuedToken struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken           string    `json:"accessToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshToken          string    `json:"refreshToken"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
	TokenType             string    `json:"tokenType"`
}

// Claims are the verified contents of an access token.
type Claims struct {
	ID        string
	UserID    int64
	Username  string
	Roles     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
