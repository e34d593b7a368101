package domain

import "time"

// Policy is an operator-supplied Rego module that replaces the built-in room access policy.
// Enabled modules must declare package emeet.room.
type Policy struct {
	ID        string
	Name      string
	Rules     string
	Enabled   bool
	CreatedAt time.Time
}
