package users

import "time"

// User represents a user account for management. The password hash never
// leaves the repository.
type User struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email,omitempty"`
	Enabled     bool       `json:"enabled"`
	Locked      bool       `json:"locked"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// NewUser is the input for creating an account.
type NewUser struct {
	Username string `json:"username" validate:"required,max=64"`
	Email    string `json:"email" validate:"omitempty,email,max=256"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// Status toggles whether an account may authenticate.
type Status struct {
	Enabled bool `json:"enabled"`
	Locked  bool `json:"locked"`
}

// PasswordChange is the input for replacing an account password.
type PasswordChange struct {
	Password string `json:"password" validate:"required,min=8,max=72"`
}
