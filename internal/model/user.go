// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data: plain values with no inheritance.
// Behaviour lives in the service layer; these types only carry state.
package model

import "time"

// User is the owner of a namespace.
//
// Namespace holds the id of the user's root folder node. It is not a column on
// the users table: the root lives in the nodes table (parent_id IS NULL) and is
// resolved when the user is read, so there is exactly one source of truth.
//
// WHY `json:"-"` ON PasswordHash?
// The hash must never leave the process. The "-" tag tells encoding/json to skip
// the field entirely, so a handler that writes a User can't leak it by accident.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Bio          string    `json:"bio"`
	Namespace    string    `json:"namespace"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserPatch carries the mutable profile fields. A nil field is left unchanged.
type UserPatch struct {
	Bio *string `json:"bio,omitempty"`
}
