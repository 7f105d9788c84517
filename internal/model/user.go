package model

import "time"

// Role decides which views a user may act in.
type Role string

const (
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
)

// User is a member of the studio team.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IsManager reports whether the user may approve bookings.
func (u *User) IsManager() bool {
	return u.Role == RoleManager
}
