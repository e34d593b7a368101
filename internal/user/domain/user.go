package domain

import (
	"errors"
	"strings"
	"time"
)

// User is a person who can request or host meetings. Accounts are managed elsewhere; this
// service only needs the display name shown in rooms.
type User struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
}

// Validate validates the user for persistence and trims its fields.
func (u *User) Validate() error {
	u.Email = strings.TrimSpace(u.Email)
	u.DisplayName = strings.TrimSpace(u.DisplayName)
	if u.ID == "" {
		return errors.New("id is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.DisplayName == "" {
		return errors.New("display name is required")
	}
	return nil
}
