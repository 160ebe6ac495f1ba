package model

import (
	"fmt"
	"time"
)

// Role is a user's permission level.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("invalid role: %q", s)
	}
}

// User is a customer or an administrator.
type User struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"externalId"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone,omitempty"`
	ImageURL   string    `json:"imageUrl,omitempty"`
	Role       Role      `json:"role"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// UserSummary is the public part of a user shown next to a booking.
type UserSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}
