package models

import (
	"encoding/json"
	"time"
)

// User is an account record. Password always holds a hash once the record
// has been read from storage. Profile is a reference to an asset stored
// outside the record; empty means none.
type User struct {
	ID        string          `json:"id"`
	Email     string          `json:"email"`
	Password  string          `json:"password,omitempty"`
	Profile   string          `json:"profile,omitempty"`
	Name      string          `json:"name,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// UsersPage is one page of a listing plus the total number of users.
type UsersPage struct {
	Users []*User `json:"users"`
	Total int64   `json:"total"`
}

// ListQuery carries raw, uncoerced listing parameters as received from a
// caller.
type ListQuery struct {
	Skip string
	Size string
}
