package domain

import "time"

// User is an account that can act on requests.
type User struct {
	ID        string
	Name      string
	Email     string
	Roles     RoleSet
	CreatedAt time.Time
}

// Actor returns the engine identity for the user.
func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Roles: u.Roles}
}
