// Package model defines data structures for the chat platform.
package model

import "errors"

// ErrNotFound indicates a referenced row does not exist or is not
// accessible to the requesting user.
var ErrNotFound = errors.New("not found")

// ErrBlocked indicates a mutation was rejected because the
// conversation is blocked.
var ErrBlocked = errors.New("conversation blocked")

// User is a chat participant's public profile. Profiles are immutable
// from this system's perspective and cached per session.
type User struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
}
