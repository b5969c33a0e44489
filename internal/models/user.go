// Package models provides data models for the portal entity store.
package models

// User represents a portal account.
// Password is an opaque credential string and is never serialized.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"`
	Name     string `json:"name"`
}

// NewUser is the insert payload for a user
type NewUser struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=72"`
	Name     string `json:"name" validate:"required,max=128"`
}

// PublicUser is the user view returned by the auth endpoints
type PublicUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Public strips the credential from u
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username, Name: u.Name}
}
