package domain

import "time"

// Role is the authorization role carried by a user and their tokens.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is a registered account. PasswordHash never leaves the service layer.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserSummary is the public projection of a user.
type UserSummary struct {
	ID       int64
	Username string
	Email    string
	Role     Role
}

// Summary drops credential material.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}
